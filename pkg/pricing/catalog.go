package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// rowKey identifies a catalog row.
type rowKey struct {
	Provider string
	Model    string
}

// prefixRule maps a model-name prefix to a canonical row within a provider.
type prefixRule struct {
	Provider string `yaml:"provider"`
	Prefix   string `yaml:"prefix"`
	Model    string `yaml:"model"`
}

// Catalog resolves (provider, model) pairs to pricing rows. Lookups read an
// immutable snapshot; overrides build and swap a new snapshot, so readers
// never see a partially applied update.
type Catalog struct {
	mu   sync.RWMutex
	snap *snapshot
}

// snapshot is one immutable build of the catalog data.
type snapshot struct {
	rows      map[rowKey]*ModelPricing
	byModel   map[string]*ModelPricing
	aliases   map[string]rowKey
	prefixes  map[string][]prefixRule
	providers []string
	order     []rowKey
	fallback  *ModelPricing
}

// NewCatalog builds a catalog from the builtin table.
func NewCatalog() *Catalog {
	snap, err := buildSnapshot(builtinRows, builtinAliases, builtinPrefixes, builtinFallback)
	if err != nil {
		// The builtin table is validated by tests; a bad build here is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("pricing: builtin table invalid: %v", err))
	}
	return &Catalog{snap: snap}
}

// buildSnapshot validates and indexes a row set.
func buildSnapshot(rows []ModelPricing, aliases map[string]rowKey, prefixes []prefixRule, fallback ModelPricing) (*snapshot, error) {
	s := &snapshot{
		rows:     make(map[rowKey]*ModelPricing, len(rows)),
		byModel:  make(map[string]*ModelPricing, len(rows)),
		aliases:  make(map[string]rowKey, len(aliases)),
		prefixes: make(map[string][]prefixRule),
	}

	for i := range rows {
		row := rows[i]
		if row.Provider == "" || row.Model == "" {
			return nil, fmt.Errorf("row %d: provider and model are required", i)
		}
		if row.InputPerMTok < 0 || row.OutputPerMTok < 0 {
			return nil, fmt.Errorf("%s/%s: prices must be non-negative", row.Provider, row.Model)
		}
		key := rowKey{normalize(row.Provider), normalize(row.Model)}
		if _, dup := s.rows[key]; dup {
			return nil, fmt.Errorf("%s/%s: duplicate row", row.Provider, row.Model)
		}
		s.rows[key] = &row
		s.order = append(s.order, key)
		// First declared row wins for model-only lookups.
		if _, ok := s.byModel[key.Model]; !ok {
			s.byModel[key.Model] = &row
		}
		if !containsString(s.providers, key.Provider) {
			s.providers = append(s.providers, key.Provider)
		}
	}

	for alias, key := range aliases {
		norm := rowKey{normalize(key.Provider), normalize(key.Model)}
		if _, ok := s.rows[norm]; !ok {
			return nil, fmt.Errorf("alias %q targets unknown row %s/%s", alias, key.Provider, key.Model)
		}
		s.aliases[normalize(alias)] = norm
	}

	for _, rule := range prefixes {
		provider := normalize(rule.Provider)
		target := rowKey{provider, normalize(rule.Model)}
		if _, ok := s.rows[target]; !ok {
			return nil, fmt.Errorf("prefix %q targets unknown row %s/%s", rule.Prefix, rule.Provider, rule.Model)
		}
		s.prefixes[provider] = append(s.prefixes[provider], prefixRule{
			Provider: provider,
			Prefix:   normalize(rule.Prefix),
			Model:    target.Model,
		})
	}
	// Longest prefix wins within a provider.
	for provider := range s.prefixes {
		rules := s.prefixes[provider]
		sort.SliceStable(rules, func(i, j int) bool {
			return len(rules[i].Prefix) > len(rules[j].Prefix)
		})
	}

	fb := fallback
	fb.Provider = normalize(fb.Provider)
	fb.Model = normalize(fb.Model)
	if fb.Provider == "" || fb.Model == "" {
		return nil, fmt.Errorf("fallback row requires provider and model")
	}
	s.fallback = &fb

	return s, nil
}

// Resolve finds the pricing row for a (provider, model) pair. It never
// fails: a complete miss returns the fallback row with MatchFallback, which
// downstream demotes to low confidence.
//
// Lookup order: exact (provider, model); exact model across providers (first
// declared wins); alias table; provider prefix rules, longest first; fallback.
func (c *Catalog) Resolve(provider, model string) (*ModelPricing, Match) {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()

	provider = normalize(provider)
	model = normalize(model)

	if row, ok := s.rows[rowKey{provider, model}]; ok {
		return row, MatchExact
	}
	if row, ok := s.byModel[model]; ok {
		return row, MatchModel
	}
	if key, ok := s.aliases[model]; ok {
		return s.rows[key], MatchAlias
	}
	if row := s.prefixMatch(provider, model); row != nil {
		return row, MatchPrefix
	}
	return s.fallback, MatchFallback
}

// prefixMatch applies prefix rules for the given provider, or for every
// provider in declaration order when the provider is unknown or has no rules.
func (s *snapshot) prefixMatch(provider, model string) *ModelPricing {
	if rules, ok := s.prefixes[provider]; ok {
		if row := applyRules(s, rules, model); row != nil {
			return row
		}
	}
	if provider == "" || s.prefixes[provider] == nil {
		for _, p := range s.providers {
			if p == provider {
				continue
			}
			if row := applyRules(s, s.prefixes[p], model); row != nil {
				return row
			}
		}
	}
	return nil
}

func applyRules(s *snapshot, rules []prefixRule, model string) *ModelPricing {
	for _, rule := range rules {
		if strings.HasPrefix(model, rule.Prefix) {
			return s.rows[rowKey{rule.Provider, rule.Model}]
		}
	}
	return nil
}

// Rows returns all rows in declaration order. The slice is a copy; rows are
// shared and must not be mutated.
func (c *Catalog) Rows() []ModelPricing {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()

	out := make([]ModelPricing, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.rows[key])
	}
	return out
}

// Fallback returns a copy of the designated fallback row.
func (c *Catalog) Fallback() ModelPricing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.snap.fallback
}

// Cheapest returns the non-deprecated row with the lowest combined per-token
// price for a provider, or for any provider when provider is empty.
func (c *Catalog) Cheapest(provider string) (*ModelPricing, bool) {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()

	provider = normalize(provider)
	var best *ModelPricing
	for _, key := range s.order {
		row := s.rows[key]
		if row.Deprecated {
			continue
		}
		if provider != "" && key.Provider != provider {
			continue
		}
		if best == nil || row.InputPerMTok+row.OutputPerMTok < best.InputPerMTok+best.OutputPerMTok {
			best = row
		}
	}
	if best == nil {
		return nil, false
	}
	out := *best
	return &out, true
}

// RoundUSD rounds a dollar amount half-up to six decimals. Apply only at
// exposure points; internal arithmetic stays unrounded.
func RoundUSD(v float64) float64 {
	return math.Floor(v*1e6+0.5) / 1e6
}

// FormatUSD renders a dollar amount for headers and JSON string fields with
// six-decimal precision.
func FormatUSD(v float64) string {
	return fmt.Sprintf("%.6f", RoundUSD(v))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
