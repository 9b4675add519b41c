package ratio

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// evalExpression evaluates a simple arithmetic formula such as
// "current_assets / current_liabilities" over named decimal values.
// Supported: + - * /, parentheses, numeric literals, and identifiers
// (letters, digits, underscore). Division by zero and unknown identifiers
// are errors.
func evalExpression(expr string, values map[string]decimal.Decimal) (decimal.Decimal, error) {
	p := &exprParser{input: expr, values: values}
	v, err := p.parseExpr()
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return decimal.Decimal{}, fmt.Errorf("unexpected %q at offset %d in %q", p.input[p.pos:], p.pos, expr)
	}
	return v, nil
}

type exprParser struct {
	input  string
	pos    int
	values map[string]decimal.Decimal
}

func (p *exprParser) parseExpr() (decimal.Decimal, error) {
	left, err := p.parseTerm()
	if err != nil {
		return decimal.Decimal{}, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Decimal{}, err
			}
			left = left.Add(right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Decimal{}, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (decimal.Decimal, error) {
	left, err := p.parseFactor()
	if err != nil {
		return decimal.Decimal{}, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Decimal{}, err
			}
			left = left.Mul(right)
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Decimal{}, err
			}
			if right.IsZero() {
				return decimal.Decimal{}, fmt.Errorf("division by zero in %q", p.input)
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseFactor() (decimal.Decimal, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return decimal.Decimal{}, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return decimal.Decimal{}, fmt.Errorf("missing closing parenthesis in %q", p.input)
		}
		p.pos++
		return v, nil
	case c == '-':
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return v.Neg(), nil
	case c >= '0' && c <= '9':
		return p.parseNumber()
	case isIdentChar(c):
		return p.parseIdent()
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected character %q in %q", c, p.input)
	}
}

func (p *exprParser) parseNumber() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	d, err := decimal.NewFromString(p.input[start:p.pos])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad number %q in %q", p.input[start:p.pos], p.input)
	}
	return d, nil
}

func (p *exprParser) parseIdent() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
		p.pos++
	}
	name := p.input[start:p.pos]
	v, ok := p.values[name]
	if !ok {
		return decimal.Decimal{}, &missingInputError{name: name}
	}
	return v, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// missingInputError marks a formula identifier with no fact value, so the
// calculator can skip the ratio instead of failing the batch.
type missingInputError struct {
	name string
}

func (e *missingInputError) Error() string {
	return fmt.Sprintf("missing required input fact %q", e.name)
}

// identifiers lists the distinct identifiers an expression references.
func identifiers(expr string) []string {
	var names []string
	seen := make(map[string]bool)
	i := 0
	for i < len(expr) {
		c := expr[i]
		if isIdentChar(c) && !(c >= '0' && c <= '9') {
			start := i
			for i < len(expr) && isIdentChar(expr[i]) {
				i++
			}
			name := expr[start:i]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			continue
		}
		i++
	}
	return names
}
