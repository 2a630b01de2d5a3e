package validate

import (
	"strings"
	"testing"
)

func TestValidUsername(t *testing.T) {
	cases := map[string]bool{
		"ab":      false, // too short
		"ab_12":   true,
		"doctor1": true,
		"has space": false,
		"p@ssword":  false,
		strings.Repeat("a", 50): true,
		strings.Repeat("a", 51): false,
	}
	for input, want := range cases {
		if got := Valid(input, KindUsername); got != want {
			t.Fatalf("Valid(%q, username)=%v, want %v", input, got, want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"a@b":            false,
		"a@b.com":        true,
		"nurse.k@ward.hospital.org": true,
		"@b.com":         false,
		"a b@c.com":      false,
	}
	for input, want := range cases {
		if got := Valid(input, KindEmail); got != want {
			t.Fatalf("Valid(%q, email)=%v, want %v", input, got, want)
		}
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"Mary Jane":  true,
		"O'Neil":     false,
		"X":          true,
		"   ":        false,
		strings.Repeat("a", 101): false,
	}
	for input, want := range cases {
		if got := Valid(input, KindName); got != want {
			t.Fatalf("Valid(%q, name)=%v, want %v", input, got, want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	cases := map[string]bool{
		"+1 (555) 12345": true,
		"555-0123":       false, // under 10 chars
		"0123456789":     true,
		"01234567x9":     false,
		"+123456789012345": false, // 16 chars
	}
	for input, want := range cases {
		if got := Valid(input, KindPhone); got != want {
			t.Fatalf("Valid(%q, phone)=%v, want %v", input, got, want)
		}
	}
}

func TestValidDefaultRule(t *testing.T) {
	if !Valid("anything at all", Kind("note")) {
		t.Fatal("unknown kind should fall back to the default rule")
	}
	if Valid(strings.Repeat("x", 256), KindDefault) {
		t.Fatal("default rule must reject input over 255 chars")
	}
	if Valid("", KindDefault) || Valid("  \t ", KindDefault) {
		t.Fatal("blank input must be invalid for every kind")
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize(`  <script>alert("hi") & 'bye'  `)
	if strings.ContainsAny(got, `<>"'&`) {
		t.Fatalf("sanitized output still contains denylisted chars: %q", got)
	}
	if got != "scriptalert(hi)  bye" {
		t.Fatalf("unexpected sanitize output: %q", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"", "plain", `<a href="x">link</a>`, "  spaced  ", `&&&'''"""`}
	for _, s := range inputs {
		once := Sanitize(s)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent for %q: %q vs %q", s, once, twice)
		}
	}
}
