// Package validators rejects malformed credentials before they reach the
// network, so bad input spends neither rate-limit budget nor backend calls.
package validators

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateEmail reports whether value looks like local-part@domain with a
// dotted domain. It is a syntax check only and says nothing about delivery.
func ValidateEmail(value string) bool {
	if err := validate.Var(value, "required,email"); err != nil {
		return false
	}

	at := strings.LastIndexByte(value, '@')
	if at <= 0 {
		return false
	}
	domain := value[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && !strings.HasSuffix(domain, ".")
}
