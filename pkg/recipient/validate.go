// Package recipient holds the recipient list checks shared by every send
// path: address validation with new/existing tagging, and chunk planning.
package recipient

import (
	"regexp"
	"strings"
)

// local@domain.tld, no whitespace, a single @, a dot-separated domain with
// an alphabetic TLD of at least two characters.
var emailRegex = regexp.MustCompile(`^[A-Za-z0-9.!#$%&'*+/=?^_{|}~-]+@[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.[A-Za-z]{2,}$`)

const maxEmailLen = 254

type Email struct {
	Email string `json:"email"`
	IsNew bool   `json:"is_new"`
}

type Result struct {
	Valid           int      `json:"valid"`
	Invalid         int      `json:"invalid"`
	New             int      `json:"new"`
	Existing        int      `json:"existing"`
	InvalidEmails   []string `json:"invalid_emails"`
	ValidatedEmails []*Email `json:"validated_emails"`
}

// Emails returns the valid addresses in input order.
func (r *Result) Emails() []string {
	if r == nil {
		return nil
	}
	emails := make([]string, 0, len(r.ValidatedEmails))
	for _, e := range r.ValidatedEmails {
		emails = append(emails, e.Email)
	}
	return emails
}

// NewEmails returns the valid addresses that are not in the known set.
func (r *Result) NewEmails() []string {
	if r == nil {
		return nil
	}
	emails := make([]string, 0, r.New)
	for _, e := range r.ValidatedEmails {
		if e.IsNew {
			emails = append(emails, e.Email)
		}
	}
	return emails
}

// Split breaks free text into candidate addresses on commas, semicolons and
// whitespace.
func Split(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
}

func IsValid(email string) bool {
	return len(email) <= maxEmailLen && emailRegex.MatchString(email)
}

// Validate trims and deduplicates candidates case-insensitively, keeping the
// first spelling seen, and tags each address as valid/invalid and new/existing.
// known must hold lower-cased addresses.
func Validate(candidates []string, known map[string]struct{}) *Result {
	var (
		res = &Result{
			InvalidEmails:   make([]string, 0),
			ValidatedEmails: make([]*Email, 0, len(candidates)),
		}
		seen = make(map[string]struct{}, len(candidates))
	)

	for _, candidate := range candidates {
		for _, email := range Split(candidate) {
			key := strings.ToLower(email)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			if !IsValid(email) {
				res.Invalid++
				res.InvalidEmails = append(res.InvalidEmails, email)
				continue
			}

			_, exists := known[key]
			if exists {
				res.Existing++
			} else {
				res.New++
			}

			res.Valid++
			res.ValidatedEmails = append(res.ValidatedEmails, &Email{
				Email: email,
				IsNew: !exists,
			})
		}
	}

	return res
}
