package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tt := []struct {
		value string
		want  bool
	}{
		{"a@b.co", true},
		{"learner.one+tag@school.example.org", true},
		{"not-an-email", false},
		{"", false},
		{"@b.co", false},
		{"a@", false},
		{"a@localhost", false},
		{"a@b.", false},
		{"a@.co", false},
		{"a b@c.co", false},
	}

	for _, ts := range tt {
		assert.Equal(t, ts.want, ValidateEmail(ts.value), "ValidateEmail(%q)", ts.value)
	}
}

func TestValidatePassword(t *testing.T) {
	tt := []struct {
		desc   string
		value  string
		errors []string
	}{
		{
			desc:   "strong password",
			value:  "Str0ng!pass",
			errors: []string{},
		},
		{
			desc:  "empty password reports every rule",
			value: "",
			errors: []string{
				"Password must be at least 8 characters long",
				"Password must contain at least one uppercase letter",
				"Password must contain at least one lowercase letter",
				"Password must contain at least one number",
				"Password must contain at least one special character",
			},
		},
		{
			desc:  "missing classes only",
			value: "alllowercase",
			errors: []string{
				"Password must contain at least one uppercase letter",
				"Password must contain at least one number",
				"Password must contain at least one special character",
			},
		},
		{
			desc:   "length counts characters not bytes",
			value:  "Ää1!ääää",
			errors: []string{},
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			res := ValidatePassword(ts.value)
			assert.Equal(t, ts.errors, res.Errors)
			assert.Equal(t, len(ts.errors) == 0, res.IsValid)
		})
	}
}

func TestValidatePassword_Deterministic(t *testing.T) {
	first := ValidatePassword("short")
	for _i := 0; _i < 20; _i++ {
		assert.Equal(t, first, ValidatePassword("short"))
	}
}

func TestPolicy_Custom(t *testing.T) {
	policy := Policy{MinLength: 12, RequireDigit: true}

	res := policy.Validate("abcdefghijk")
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{
		"Password must be at least 12 characters long",
		"Password must contain at least one number",
	}, res.Errors)

	assert.True(t, policy.Validate("abcdefghijk1").IsValid)
}
