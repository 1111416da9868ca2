package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyExpression is returned by Compile for a blank expression.
var ErrEmptyExpression = errors.New("filter: empty expression")

type node interface {
	eval(fields map[string]any) bool
}

type orNode struct{ left, right node }

func (n orNode) eval(f map[string]any) bool { return n.left.eval(f) || n.right.eval(f) }

type andNode struct{ left, right node }

func (n andNode) eval(f map[string]any) bool { return n.left.eval(f) && n.right.eval(f) }

type notNode struct{ inner node }

func (n notNode) eval(f map[string]any) bool { return !n.inner.eval(f) }

type compareNode struct {
	left, right operand
	cmp         comparator
}

func (n compareNode) eval(f map[string]any) bool {
	return n.cmp(n.left.resolve(f), n.right.resolve(f))
}

type truthNode struct{ operand operand }

func (n truthNode) eval(f map[string]any) bool { return truthy(n.operand.resolve(f)) }

// operand is a literal or a field reference.
type operand struct {
	field   string
	literal any
}

func (o operand) resolve(fields map[string]any) any {
	if o.field == "" {
		return o.literal
	}
	return fields[o.field]
}

// operators are tried in order; two-character forms come first so that
// ">=" is not read as ">".
var operators = []struct {
	token string
	cmp   comparator
}{
	{"==", equal},
	{"!=", func(l, r any) bool { return !equal(l, r) }},
	{">=", numeric(func(l, r float64) bool { return l >= r })},
	{"<=", numeric(func(l, r float64) bool { return l <= r })},
	{">", numeric(func(l, r float64) bool { return l > r })},
	{"<", numeric(func(l, r float64) bool { return l < r })},
	{" contains ", contains},
}

func parse(s string) (node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyExpression
	}

	if l, r, ok := cutOutsideQuotes(s, " or "); ok {
		return parseBinary(l, r, func(a, b node) node { return orNode{a, b} })
	}
	if l, r, ok := cutOutsideQuotes(s, " and "); ok {
		return parseBinary(l, r, func(a, b node) node { return andNode{a, b} })
	}

	if rest, ok := strings.CutPrefix(s, "not "); ok {
		inner, err := parse(rest)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	if rest, ok := strings.CutPrefix(s, "!"); ok && !strings.HasPrefix(rest, "=") {
		inner, err := parse(rest)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}

	for _, op := range operators {
		if l, r, ok := cutOutsideQuotes(s, op.token); ok {
			left, err := parseOperand(l)
			if err != nil {
				return nil, err
			}
			right, err := parseOperand(r)
			if err != nil {
				return nil, err
			}
			return compareNode{left: left, right: right, cmp: op.cmp}, nil
		}
	}

	o, err := parseOperand(s)
	if err != nil {
		return nil, err
	}
	return truthNode{o}, nil
}

func parseBinary(l, r string, combine func(a, b node) node) (node, error) {
	left, err := parse(l)
	if err != nil {
		return nil, err
	}
	right, err := parse(r)
	if err != nil {
		return nil, err
	}
	return combine(left, right), nil
}

func parseOperand(s string) (operand, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return operand{}, fmt.Errorf("filter: missing operand")
	}

	if q := s[0]; q == '\'' || q == '"' {
		if len(s) < 2 || s[len(s)-1] != q {
			return operand{}, fmt.Errorf("filter: unterminated string %s", s)
		}
		return operand{literal: s[1 : len(s)-1]}, nil
	}

	switch strings.ToLower(s) {
	case "true":
		return operand{literal: true}, nil
	case "false":
		return operand{literal: false}, nil
	case "null", "nil":
		return operand{literal: nil}, nil
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		f, err := num.Float64()
		if err != nil {
			return operand{}, fmt.Errorf("filter: number %s: %w", s, err)
		}
		return operand{literal: f}, nil
	}

	if strings.ContainsAny(s, " \t'\"") {
		return operand{}, fmt.Errorf("filter: invalid field name %q", s)
	}
	return operand{field: s}, nil
}

// cutOutsideQuotes splits s around the first sep that is not inside a
// quoted string.
func cutOutsideQuotes(s, sep string) (string, string, bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}
