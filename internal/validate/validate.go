// Package validate checks and sanitizes free-text input before it reaches
// the authentication path or the relational store.
package validate

import (
	"regexp"
	"strings"
)

// Kind names a validation rule.
type Kind string

const (
	KindUsername Kind = "username"
	KindEmail    Kind = "email"
	KindName     Kind = "name"
	KindPhone    Kind = "phone"
	KindDefault  Kind = "default"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	nameRe     = regexp.MustCompile(`^[A-Za-z ]{1,100}$`)
	phoneRe    = regexp.MustCompile(`^[0-9 +()\-]{10,15}$`)
)

const maxDefaultLen = 255

// Valid reports whether input satisfies the rule for kind. Unknown kinds use
// the default rule. Empty or all-whitespace input is invalid for every kind.
func Valid(input string, kind Kind) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}
	switch kind {
	case KindUsername:
		return usernameRe.MatchString(input)
	case KindEmail:
		return emailRe.MatchString(input)
	case KindName:
		return nameRe.MatchString(input)
	case KindPhone:
		return phoneRe.MatchString(input)
	default:
		return len(input) <= maxDefaultLen
	}
}

var sanitizeReplacer = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

// Sanitize strips the characters < > " ' & and trims surrounding whitespace.
// This is a blunt denylist, not contextual escaping; output headed for HTML
// or SQL still needs proper encoding at that boundary.
func Sanitize(input string) string {
	return strings.TrimSpace(sanitizeReplacer.Replace(input))
}
