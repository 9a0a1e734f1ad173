// Package rules holds the provisioning rule table: the ordered mapping from
// an identity's email or domain to a role, a set of direct permissions and a
// set of group memberships. A Table is built once at startup and never
// changes afterwards.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-bexpr"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/validation"
)

//go:embed schema.json
var schemaJSON string

//go:embed default.yaml
var defaultRules []byte

// Wildcard is the match_domain value of the catch-all rule.
const Wildcard = "*"

// Identity is what the federated identity provider tells us about a user.
type Identity struct {
	Email       string
	DisplayName string
	ProviderID  string
	Provider    string
}

// NormalizedEmail returns the trimmed, lower-cased email.
func (id Identity) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(id.Email))
}

// Domain returns the part of the email after the last '@', lower-cased.
func (id Identity) Domain() string {
	email := id.NormalizedEmail()
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

func (id Identity) datum() map[string]any {
	return map[string]any{
		"email":        id.NormalizedEmail(),
		"domain":       id.Domain(),
		"provider":     id.Provider,
		"provider_id":  id.ProviderID,
		"display_name": id.DisplayName,
	}
}

// Rule is one entry of the table.
type Rule struct {
	Name        string   `mapstructure:"name"`
	MatchEmail  string   `mapstructure:"match_email"`
	MatchDomain string   `mapstructure:"match_domain"`
	Role        string   `mapstructure:"role"`
	Permissions []string `mapstructure:"permissions"`
	Groups      []string `mapstructure:"groups"`
	// Condition is an optional go-bexpr expression over email, domain,
	// provider, provider_id and display_name. A rule whose condition does not
	// hold is skipped.
	Condition string `mapstructure:"condition"`

	evaluator *bexpr.Evaluator
}

// IsWildcard reports whether r is the catch-all rule.
func (r Rule) IsWildcard() bool {
	return r.MatchDomain == Wildcard
}

func (r Rule) holds(datum map[string]any) bool {
	if r.evaluator == nil {
		return true
	}
	ok, err := r.evaluator.Evaluate(datum)
	return err == nil && ok
}

func (r Rule) clone() Rule {
	r.Permissions = append([]string(nil), r.Permissions...)
	r.Groups = append([]string(nil), r.Groups...)
	return r
}

// Table is the ordered, immutable rule set.
type Table struct {
	rules    []Rule
	wildcard int
}

// Match returns the rule that applies to id: the first exact email match,
// else the first domain match, else the wildcard rule. Exactly one rule
// always applies to an identity with a well-formed email.
func (t *Table) Match(id Identity) (Rule, error) {
	email := id.NormalizedEmail()
	domain := id.Domain()
	if email == "" || domain == "" {
		return Rule{}, iamerr.Invalid("email", "identity has no usable email address (%q)", id.Email)
	}

	datum := id.datum()
	for _, r := range t.rules {
		if r.MatchEmail != "" && r.MatchEmail == email && r.holds(datum) {
			return r.clone(), nil
		}
	}
	for _, r := range t.rules {
		if r.MatchDomain != "" && !r.IsWildcard() && r.MatchDomain == domain && r.holds(datum) {
			return r.clone(), nil
		}
	}
	return t.rules[t.wildcard].clone(), nil
}

// Rules returns a copy of the table in order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.clone()
	}
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }

// PermissionCodes returns every permission code any rule names, deduplicated.
func (t *Table) PermissionCodes() []string {
	seen := map[string]struct{}{}
	var codes []string
	for _, r := range t.rules {
		for _, c := range r.Permissions {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				codes = append(codes, c)
			}
		}
	}
	return codes
}

// Loader parses rule documents. It is safe for concurrent use.
type Loader struct {
	validator *validation.SchemaValidator
}

// NewLoader creates a loader that validates documents with validator.
func NewLoader(validator *validation.SchemaValidator) *Loader {
	return &Loader{validator: validator}
}

var defaultLoader = sync.OnceValues(func() (*Loader, error) {
	v, err := validation.NewSchemaValidator(8)
	if err != nil {
		return nil, err
	}
	return NewLoader(v), nil
})

// Parse parses data with the package default loader.
func Parse(data []byte) (*Table, error) {
	l, err := defaultLoader()
	if err != nil {
		return nil, err
	}
	return l.Parse(data)
}

// Load reads a rules file with the package default loader. An empty path
// selects the embedded default table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Parse(defaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded default table.
func Default() (*Table, error) {
	return Parse(defaultRules)
}

// DefaultDocument returns the embedded default YAML.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultRules...)
}

// Parse validates a YAML rules document and builds a Table.
func (l *Loader) Parse(data []byte) (*Table, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, iamerr.Invalid("$", "rules document is not valid YAML: %v", err)
	}
	if err := l.validator.Validate(schemaJSON, raw); err != nil {
		return nil, err
	}

	var doc struct {
		Rules []Rule `mapstructure:"rules"`
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &doc,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create rules decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, iamerr.Invalid("$", "decode rules: %v", err)
	}

	return build(doc.Rules)
}

func build(in []Rule) (*Table, error) {
	t := &Table{rules: make([]Rule, 0, len(in)), wildcard: -1}
	emails := map[string]int{}

	for i, r := range in {
		field := func(name string) string { return fmt.Sprintf("rules[%d].%s", i, name) }

		r.MatchEmail = strings.ToLower(strings.TrimSpace(r.MatchEmail))
		r.MatchDomain = strings.ToLower(strings.TrimSpace(r.MatchDomain))
		r.Role = strings.TrimSpace(r.Role)
		r.Permissions = dedupe(r.Permissions)
		r.Groups = dedupe(r.Groups)
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}

		switch {
		case r.MatchEmail == "" && r.MatchDomain == "":
			return nil, iamerr.Invalid(field("match_email"), "rule %q needs match_email or match_domain", r.Name)
		case r.MatchEmail != "" && r.MatchDomain != "":
			return nil, iamerr.Invalid(field("match_domain"), "rule %q sets both match_email and match_domain", r.Name)
		case r.Role == "":
			return nil, iamerr.Invalid(field("role"), "rule %q has no role", r.Name)
		}

		if r.MatchEmail != "" {
			if prev, dup := emails[r.MatchEmail]; dup && in[prev].Condition == "" && r.Condition == "" {
				return nil, iamerr.Invalid(field("match_email"), "rule %q repeats email %s from rules[%d]", r.Name, r.MatchEmail, prev)
			}
			emails[r.MatchEmail] = i
		}

		if r.IsWildcard() {
			if t.wildcard >= 0 {
				return nil, iamerr.Invalid(field("match_domain"), "rule %q is a second wildcard rule; only one is allowed", r.Name)
			}
			if r.Condition != "" {
				return nil, iamerr.Invalid(field("condition"), "wildcard rule %q cannot have a condition", r.Name)
			}
			t.wildcard = len(t.rules)
		}

		if strings.TrimSpace(r.Condition) != "" {
			eval, err := bexpr.CreateEvaluator(r.Condition)
			if err != nil {
				return nil, iamerr.Invalid(field("condition"), "rule %q: %v", r.Name, err)
			}
			r.evaluator = eval
		}

		t.rules = append(t.rules, r)
	}

	if t.wildcard < 0 {
		return nil, iamerr.Invalid("rules", "a wildcard rule (match_domain: %q) is required", Wildcard)
	}
	return t, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
