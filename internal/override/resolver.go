// Package override applies deterministic keyword rules on top of a
// statistical category prediction.
package override

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/smart-budget/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule maps a category to the keywords that force it.
type Rule struct {
	Category string   `yaml:"category" json:"category"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns a fresh copy of the embedded rule table.
func DefaultRules() []Rule {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("override: embedded rules.yaml is invalid: %v", err))
	}
	return rules
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseRules: unmarshal: %w", err)
	}
	if err := ValidateRules(f.Rules); err != nil {
		return nil, fmt.Errorf("ParseRules: %w", err)
	}
	return f.Rules, nil
}

// LoadRules reads a rule table from path, or returns the embedded table when
// path is empty.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: %w", err)
	}
	return ParseRules(data)
}

// Resolver applies an ordered rule table. The first rule with any keyword
// contained in the haystack wins.
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver over rules. Keywords are lower-cased once
// here; the table order is kept as given.
func NewResolver(rules []Rule) *Resolver {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, k := range r.Keywords {
			kws[j] = strings.ToLower(k)
		}
		normalized[i] = Rule{Category: r.Category, Keywords: kws}
	}
	return &Resolver{rules: normalized}
}

// Rules returns the rule table in evaluation order.
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Resolve returns the category of the first matching rule, or predicted
// unchanged when no rule matches.
func (r *Resolver) Resolve(fs domain.FeatureSet, predicted string) string {
	haystack := Haystack(fs)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Category
			}
		}
	}
	return predicted
}

// Haystack joins the text, merchant and description slots, in that order,
// lower-cased. A feature set carries only text, so the other two are empty
// and keywords never match across a merchant/description boundary.
func Haystack(fs domain.FeatureSet) string {
	return strings.ToLower(strings.Join([]string{fs.Text, "", ""}, " "))
}

// Labels lists the distinct categories of the table in order, followed by
// fallback when it is not already present.
func Labels(rules []Rule, fallback string) []string {
	seen := make(map[string]bool, len(rules)+1)
	var out []string
	for _, r := range rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	if fallback != "" && !seen[fallback] {
		out = append(out, fallback)
	}
	return out
}
