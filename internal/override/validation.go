package override

import (
	"fmt"
	"strings"
)

// Categories is the closed set of labels an override may produce.
var Categories = []string{"Food", "Transportation", "Utilities", "Shopping", "Entertainment", "Health"}

// ValidateRules checks a rule table: every category belongs to Categories
// and appears once, and every rule has at least one non-blank keyword.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("rule table is empty")
	}

	allowed := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		allowed[normalizeCategory(c)] = true
	}

	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		norm := normalizeCategory(r.Category)
		if !allowed[norm] {
			return fmt.Errorf("rule %d: invalid category %q (allowed: %v)", i+1, r.Category, Categories)
		}
		if seen[norm] {
			return fmt.Errorf("rule %d: duplicate category %q", i+1, r.Category)
		}
		seen[norm] = true

		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %d (%s): no keywords", i+1, r.Category)
		}
		for _, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("rule %d (%s): blank keyword", i+1, r.Category)
			}
		}
	}
	return nil
}

// normalizeCategory converts to uppercase and trims whitespace for
// case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
