package validators

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ValidationResult is the outcome of checking a password against a Policy.
// IsValid is true iff Errors is empty.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// Policy is the password rule set. Rules are always evaluated in the same
// order: length, uppercase, lowercase, digit, symbol.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires 8 characters and one of each character class.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Validate checks value against every rule and collects all violations.
func (p Policy) Validate(value string) ValidationResult {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	errs := make([]string, 0, 5)
	if p.MinLength > 0 && utf8.RuneCountInString(value) < p.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUpper && !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if p.RequireLower && !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		errs = append(errs, "Password must contain at least one number")
	}
	if p.RequireSymbol && !hasSymbol {
		errs = append(errs, "Password must contain at least one special character")
	}

	return ValidationResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
	}
}

// ValidatePassword checks value against DefaultPolicy.
func ValidatePassword(value string) ValidationResult {
	return DefaultPolicy().Validate(value)
}
