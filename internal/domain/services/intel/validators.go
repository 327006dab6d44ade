package intel

import (
	"slices"
	"strings"
	"unicode"
)

// KnownUPIProviders are payment handle suffixes accepted without further checks
var KnownUPIProviders = []string{
	"paytm", "phonepe", "gpay", "ybl", "okaxis", "okicici", "oksbi", "upi",
}

// Validators holds the acceptance predicates applied to each candidate.
// The defaults are heuristics tuned for recall; any of them can be replaced.
type Validators struct {
	// UPI decides whether localpart@provider is a payment handle
	UPI func(local, provider string) bool
	// BankAccount decides whether a 9-18 digit run is an account number
	BankAccount func(digits string) bool
	// Phone canonicalizes a phone candidate, returning false to drop it
	Phone func(raw string) (string, bool)
	// ReferenceID decides whether a captured case/policy/order value is kept
	ReferenceID func(value string) bool
}

// DefaultValidators returns the stock heuristics
func DefaultValidators() Validators {
	return Validators{
		UPI:         ValidUPI,
		BankAccount: ValidBankAccount,
		Phone:       NormalizePhone,
		ReferenceID: ValidReferenceID,
	}
}

// withDefaults fills any nil predicate with its default
func (v Validators) withDefaults() Validators {
	d := DefaultValidators()
	if v.UPI == nil {
		v.UPI = d.UPI
	}
	if v.BankAccount == nil {
		v.BankAccount = d.BankAccount
	}
	if v.Phone == nil {
		v.Phone = d.Phone
	}
	if v.ReferenceID == nil {
		v.ReferenceID = d.ReferenceID
	}
	return v
}

// ValidUPI accepts a handle whose local part has at least 3 characters and
// whose provider is either a known PSP or at least 3 letters long. The length
// fallback lets unknown banks through at the cost of some false positives.
func ValidUPI(local, provider string) bool {
	if len(local) < 3 {
		return false
	}
	if slices.Contains(KnownUPIProviders, strings.ToLower(provider)) {
		return true
	}
	return len(provider) >= 3
}

// accountExcludedPrefixes look like epoch timestamps (16..., 17...) or dates (20...)
var accountExcludedPrefixes = []string{"16", "17", "20"}

// ValidBankAccount accepts 9-18 digit runs that do not start with a
// timestamp-like prefix. Real accounts with those prefixes are lost.
func ValidBankAccount(digits string) bool {
	if len(digits) < 9 || len(digits) > 18 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, prefix := range accountExcludedPrefixes {
		if strings.HasPrefix(digits, prefix) {
			return false
		}
	}
	return true
}

// NormalizePhone canonicalizes an Indian mobile number to +91XXXXXXXXXX.
// Accepted shapes after stripping non-digits: 10 digits starting 6-9,
// the same with a leading 0, or with a 91 country code.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '0':
		digits = digits[1:]
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	}

	if len(digits) != 10 || digits[0] < '6' || digits[0] > '9' {
		return "", false
	}
	return "+91" + digits, true
}

// ValidReferenceID keeps captured values of at least 4 characters. Label
// adjacency alone decides the match, so prose after a label ("case study")
// is captured too.
func ValidReferenceID(value string) bool {
	return len(value) >= 4
}

// ReferenceIDWithDigit is a stricter ReferenceID predicate that also requires
// a digit, dropping prose like "case study" along with all-letter ids.
// Install it with WithValidators.
func ReferenceIDWithDigit(value string) bool {
	return ValidReferenceID(value) && strings.ContainsFunc(value, unicode.IsDigit)
}
