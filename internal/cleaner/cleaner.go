// Package cleaner strips boilerplate from extracted page text while keeping
// contact details that are short but useful to a support bot.
package cleaner

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinLineLength is the length under which a line is dropped unless it is important.
const MinLineLength = 25

var (
	boilerplatePatterns = []string{
		`(?:©|\(c\)|copyright)(?:\s*\d{4}(?:\s*[-–]\s*\d{4})?)?`,
		`all rights reserved`,
		`terms\s+(?:and|&)\s+conditions`,
		`privacy policy`,
		`cookie policy`,
		`newsletter`,
		`follow us`,
	}

	contactKeywords = []string{
		"contact", "email", "e-mail", "phone", "support", "call", "help", "address",
		"reach us", "get in touch", "chat", "whatsapp", "message us",
	}

	// Whitespace, newlines included, is collapsed before splitting.
	lineSplit    = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	emailPattern = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)
	phonePattern = regexp.MustCompile(`\+?\d(?:[\s-]?\d){7,}`)

	defaultCleaner = mustNew()
)

// Cleaner removes boilerplate and duplicate lines from page text
type Cleaner struct {
	boilerplate   []*regexp.Regexp
	minLineLength int
}

// New creates a cleaner with the built-in boilerplate patterns plus extra ones.
// Patterns are matched case-insensitively.
func New(extraPatterns ...string) (*Cleaner, error) {
	c := &Cleaner{minLineLength: MinLineLength}
	patterns := append(append([]string{}, boilerplatePatterns...), extraPatterns...)
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid boilerplate pattern %q: %w", p, err)
		}
		c.boilerplate = append(c.boilerplate, re)
	}
	return c, nil
}

func mustNew() *Cleaner {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Clean cleans raw text with the default cleaner
func Clean(raw string) string {
	return defaultCleaner.Clean(raw)
}

// Clean returns the surviving lines of raw joined with ". ".
// Clean(Clean(x)) == Clean(x) for any x.
func (c *Cleaner) Clean(raw string) string {
	text := collapse(raw)
	if text == "" {
		return ""
	}
	text = c.stripBoilerplate(text)

	seen := make(map[string]struct{})
	var kept []string
	for _, line := range lineSplit.Split(text, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) < c.minLineLength && !IsImportant(line) {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, line)
	}

	return strings.Join(kept, ". ")
}

// stripBoilerplate removes patterns until none match, since a removal can
// join the halves of another occurrence.
func (c *Cleaner) stripBoilerplate(text string) string {
	for {
		prev := text
		for _, re := range c.boilerplate {
			text = re.ReplaceAllString(text, " ")
		}
		text = collapse(text)
		if text == prev {
			return text
		}
	}
}

// IsImportant reports whether a line carries contact information
func IsImportant(line string) bool {
	if emailPattern.MatchString(line) || phonePattern.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range contactKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
