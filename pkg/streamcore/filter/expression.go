package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Predicate is a compiled filter expression.
type Predicate interface {
	// Matches evaluates the predicate against an event.
	Matches(evt Event) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(evt Event) bool

// Matches calls f(evt).
func (f PredicateFunc) Matches(evt Event) bool {
	return f(evt)
}

// matchAll is the predicate of an empty expression.
var matchAll = PredicateFunc(func(Event) bool { return true })

// Compile parses a filter expression.
//
// Syntax:
//
//	<expr>    := <and> ('or' <and>)*
//	<and>     := <unary> ('and' <unary>)*
//	<unary>   := ('not' | '!') <unary> | '(' <expr> ')' | <cmp>
//	<cmp>     := <operand> [<op> <operand>]
//	<op>      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
//	<operand> := 'string' | "string" | number | true | false | null | property
//
// Equality compares the %v rendering of both sides, ordering compares
// numerically. A bare operand is tested for truthiness. Properties absent
// from the event resolve to nil.
//
// An empty expression matches every event.
func Compile(expression string) (Predicate, error) {
	if strings.TrimSpace(expression) == "" {
		return matchAll, nil
	}
	toks, err := tokenize(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("filter: unexpected %q at end of expression", p.toks[p.pos].text)
	}
	return n, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expression string) Predicate {
	p, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return p
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexRune(s[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("filter: unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>", c):
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, s[i : i+2]})
				i += 2
				continue
			}
			if c == '=' {
				return nil, fmt.Errorf("filter: single '=' at offset %d", i)
			}
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '-' || c == '.' || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.' || s[j] == 'e' || s[j] == 'E') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("filter: unexpected character %q at offset %d", c, i)
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = PredicateFunc(func(evt Event) bool { return l.Matches(evt) || r.Matches(evt) })
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = PredicateFunc(func(evt Event) bool { return l.Matches(evt) && r.Matches(evt) })
	}
	return left, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if t, ok := p.peek(); ok && t.kind == tokOp && t.text == "!" {
		p.pos++
		return p.negate()
	}
	if p.keyword("not") {
		return p.negate()
	}
	if t, ok := p.peek(); ok && t.kind == tokLParen {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return nil, fmt.Errorf("filter: missing ')'")
		}
		p.pos++
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) negate() (Predicate, error) {
	inner, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return PredicateFunc(func(evt Event) bool { return !inner.Matches(evt) }), nil
}

func (p *parser) parseComparison() (Predicate, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t, ok := p.peek()
	var cmp func(l, r any) bool
	switch {
	case ok && t.kind == tokOp:
		cmp = comparators[t.text]
		if cmp == nil {
			return nil, fmt.Errorf("filter: unknown operator %q", t.text)
		}
	case ok && t.kind == tokIdent && strings.EqualFold(t.text, "contains"):
		cmp = comparators["contains"]
	default:
		return PredicateFunc(func(evt Event) bool { return isTruthy(left(evt)) }), nil
	}
	p.pos++

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return PredicateFunc(func(evt Event) bool { return cmp(left(evt), right(evt)) }), nil
}

// operand resolves one side of a comparison for an event.
type operand func(evt Event) any

func (p *parser) parseOperand() (operand, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("filter: unexpected end of expression")
	}
	p.pos++

	switch t.kind {
	case tokString:
		s := t.text
		return func(Event) any { return s }, nil
	case tokNumber:
		var num json.Number
		if err := json.Unmarshal([]byte(t.text), &num); err != nil {
			return nil, fmt.Errorf("filter: invalid number %q", t.text)
		}
		var v any
		if i, err := num.Int64(); err == nil {
			v = i
		} else if f, err := num.Float64(); err == nil {
			v = f
		}
		return func(Event) any { return v }, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return func(Event) any { return true }, nil
		case "false":
			return func(Event) any { return false }, nil
		case "null", "nil":
			return func(Event) any { return nil }, nil
		}
		name := t.text
		return func(evt Event) any {
			v, _ := evt.Get(name)
			return v
		}, nil
	default:
		return nil, fmt.Errorf("filter: unexpected %q", t.text)
	}
}

var comparators = map[string]func(l, r any) bool{
	"==":       func(l, r any) bool { return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r) },
	"!=":       func(l, r any) bool { return fmt.Sprintf("%v", l) != fmt.Sprintf("%v", r) },
	">=":       func(l, r any) bool { return toFloat64(l) >= toFloat64(r) },
	"<=":       func(l, r any) bool { return toFloat64(l) <= toFloat64(r) },
	">":        func(l, r any) bool { return toFloat64(l) > toFloat64(r) },
	"<":        func(l, r any) bool { return toFloat64(l) < toFloat64(r) },
	"contains": func(l, r any) bool { return strings.Contains(fmt.Sprintf("%v", l), fmt.Sprintf("%v", r)) },
}

// isTruthy: nil, false, "" and numeric zero are false.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	default:
		return true
	}
}

// toFloat64 converts numeric values and numeric strings; anything else is 0.
func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case string:
		var f float64
		_, _ = fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
