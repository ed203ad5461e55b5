package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agext/levenshtein"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// params holds the evaluated attributes of a KindBlock body
type params struct {
	block  string
	values map[string]cty.Value
	err    error
}

// newParams evaluates every attribute in body and rejects names outside
// allowed. Expressions are evaluated without variables, so only literals
// and built-in operators are accepted.
func newParams(block string, body hcl.Body, allowed []string) (*params, error) {
	p := &params{block: block, values: make(map[string]cty.Value)}
	if body == nil {
		return p, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %s", block, diags.Error())
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !contains(allowed, name) {
			msg := fmt.Sprintf("%s: unsupported argument %q", block, name)
			if s := suggest(name, allowed); s != "" {
				msg += fmt.Sprintf("; did you mean %q?", s)
			}
			return nil, errors.New(msg)
		}
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s.%s: %s", block, name, diags.Error())
		}
		if val.IsNull() || !val.IsWhollyKnown() {
			return nil, fmt.Errorf("%s.%s: value must be a known, non-null literal", block, name)
		}
		p.values[name] = val
	}
	return p, nil
}

// float returns the attribute as a number, or def when it is absent
func (p *params) float(name string, def float64) float64 {
	var out float64
	if !p.decode(name, cty.Number, &out) {
		return def
	}
	return out
}

// int is float for whole numbers
func (p *params) int(name string, def int) int {
	var out int
	if !p.decode(name, cty.Number, &out) {
		return def
	}
	return out
}

func (p *params) bool(name string, def bool) bool {
	var out bool
	if !p.decode(name, cty.Bool, &out) {
		return def
	}
	return out
}

func (p *params) string(name string, def string) string {
	var out string
	if !p.decode(name, cty.String, &out) {
		return def
	}
	return out
}

// decode converts the attribute to ty and stores it in target. It reports
// false when the attribute is missing or a previous conversion failed; the
// first failure is kept in p.err.
func (p *params) decode(name string, ty cty.Type, target any) bool {
	val, ok := p.values[name]
	if !ok || p.err != nil {
		return false
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		p.err = fmt.Errorf("%s.%s: %w", p.block, name, err)
		return false
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		p.err = fmt.Errorf("%s.%s: %w", p.block, name, err)
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// suggest returns the closest candidate within an edit distance of 3, the
// same threshold HCL uses for its own suggestions
func suggest(given string, candidates []string) string {
	best := ""
	bestDist := 3
	for _, c := range candidates {
		if d := levenshtein.Distance(given, c, nil); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func unknownKind(block, kind string, known []string) error {
	err := fmt.Errorf("%s %q: %w", block, kind, ErrUnknownKind)
	if s := suggest(kind, known); s != "" {
		return fmt.Errorf("%w; did you mean %q?", err, s)
	}
	return fmt.Errorf("%w; expected one of %v", err, known)
}
