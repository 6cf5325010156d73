package rules

import (
	"fmt"
	"strconv"
)

// Placeholder is a ${Component.Key} reference inside an expression
type Placeholder struct {
	Component string `json:"component"`
	Key       string `json:"key"`
}

// Expression is a parsed rule expression
type Expression struct {
	Source       string
	Root         *Node
	Placeholders []Placeholder
}

// Parse reads a single expression. Parse only checks syntax; use
// Limits.Validate before trusting an expression for evaluation.
func Parse(src string) (*Expression, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, refs: make(map[Placeholder]int)}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", tok, tok.pos)
	}

	return &Expression{Source: src, Root: root, Placeholders: p.placeholders}, nil
}

type parser struct {
	tokens       []token
	pos          int
	placeholders []Placeholder
	refs         map[Placeholder]int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(text string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == text
}

func (p *parser) isKeyword(text string) bool {
	tok := p.peek()
	return tok.kind == tokKeyword && tok.text == text
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		tok := p.peek()
		return fmt.Errorf("expected %q, found %s at offset %d", text, tok, tok.pos)
	}
	p.next()
	return nil
}

func (p *parser) parseExpression() (*Node, error) {
	return p.parseBoolOp("or", p.parseAnd)
}

func (p *parser) parseAnd() (*Node, error) {
	return p.parseBoolOp("and", p.parseNot)
}

func (p *parser) parseBoolOp(op string, operand func() (*Node, error)) (*Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(op) {
		return first, nil
	}

	node := &Node{Kind: KindBoolOp, Op: op, Pos: first.Pos, Children: []*Node{first}}
	for p.isKeyword(op) {
		p.next()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, next)
	}
	return node, nil
}

func (p *parser) parseNot() (*Node, error) {
	if p.isKeyword("not") {
		tok := p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindNot, Op: "not", Pos: tok.pos, Children: []*Node{operand}}, nil
	}
	return p.parseComparison()
}

// comparisonOp consumes a comparison operator if one follows.
func (p *parser) comparisonOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokOp:
		switch tok.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()
			return tok.text, true
		}
	case tok.kind == tokKeyword && tok.text == "in":
		p.next()
		return "in", true
	case tok.kind == tokKeyword && tok.text == "not":
		after := p.peekAt(1)
		if after.kind == tokKeyword && after.text == "in" {
			p.next()
			p.next()
			return "not in", true
		}
	case tok.kind == tokKeyword && tok.text == "is":
		p.next()
		if p.isKeyword("not") {
			p.next()
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) parseComparison() (*Node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	node := &Node{Kind: KindCompare, Pos: left.Pos, Children: []*Node{left}}
	for {
		op, ok := p.comparisonOp()
		if !ok {
			break
		}
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		node.Ops = append(node.Ops, op)
		node.Children = append(node.Children, right)
	}

	if len(node.Ops) == 0 {
		return left, nil
	}
	return node, nil
}

func (p *parser) parseBinary(ops []string, operand func() (*Node, error)) (*Node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}

	for {
		matched := ""
		for _, op := range ops {
			if p.isOp(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Op: matched, Pos: left.Pos, Children: []*Node{left, right}}
	}
}

func (p *parser) parseSum() (*Node, error) {
	return p.parseBinary([]string{"+", "-"}, p.parseTerm)
}

func (p *parser) parseTerm() (*Node, error) {
	return p.parseBinary([]string{"*", "//", "/", "%"}, p.parseFactor)
}

func (p *parser) parseFactor() (*Node, error) {
	if p.isOp("-") || p.isOp("+") {
		tok := p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnary, Op: tok.text, Pos: tok.pos, Children: []*Node{operand}}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (*Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exponent, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindBinary, Op: "**", Pos: base.Pos, Children: []*Node{base, exponent}}, nil
}

func (p *parser) parsePrimary() (*Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.isOp("."):
			p.next()
			name := p.next()
			if name.kind != tokName {
				return nil, fmt.Errorf("expected attribute name, found %s at offset %d", name, name.pos)
			}
			node = &Node{Kind: KindAttribute, Text: name.text, Pos: node.Pos, Children: []*Node{node}}

		case p.isOp("["):
			p.next()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			node = &Node{Kind: KindSubscript, Pos: node.Pos, Children: []*Node{node, index}}

		case p.isOp("("):
			p.next()
			args, _, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			node = &Node{Kind: KindCall, Pos: node.Pos, Children: append([]*Node{node}, args...)}

		default:
			return node, nil
		}
	}
}

// parseList reads comma separated expressions up to and including the
// closing token. trailing reports whether a comma preceded the close.
func (p *parser) parseList(closing string) ([]*Node, bool, error) {
	var items []*Node
	trailing := false
	for !p.isOp(closing) {
		item, err := p.parseExpression()
		if err != nil {
			return nil, false, err
		}
		items = append(items, item)
		trailing = false
		if !p.isOp(",") {
			break
		}
		p.next()
		trailing = true
	}
	if err := p.expectOp(closing); err != nil {
		return nil, false, err
	}
	return items, trailing, nil
}

func (p *parser) parseAtom() (*Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.next()
		num, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at offset %d", tok.text, tok.pos)
		}
		return &Node{Kind: KindNumber, Number: num, Text: tok.text, Pos: tok.pos}, nil

	case tokString:
		p.next()
		text := tok.text
		// adjacent literals concatenate
		for p.peek().kind == tokString {
			text += p.next().text
		}
		return &Node{Kind: KindString, Text: text, Pos: tok.pos}, nil

	case tokName:
		p.next()
		return &Node{Kind: KindName, Text: tok.text, Pos: tok.pos}, nil

	case tokPlaceholder:
		p.next()
		ref := Placeholder{Component: tok.component, Key: tok.key}
		idx, ok := p.refs[ref]
		if !ok {
			idx = len(p.placeholders)
			p.placeholders = append(p.placeholders, ref)
			p.refs[ref] = idx
		}
		return &Node{Kind: KindPlaceholder, Text: tok.text, Ref: idx, Pos: tok.pos}, nil

	case tokKeyword:
		switch tok.text {
		case "True", "False", "None":
			p.next()
			return &Node{Kind: KindConstant, Text: tok.text, Pos: tok.pos}, nil
		}

	case tokOp:
		switch tok.text {
		case "(":
			p.next()
			items, trailing, err := p.parseList(")")
			if err != nil {
				return nil, err
			}
			if len(items) == 1 && !trailing {
				return items[0], nil
			}
			return &Node{Kind: KindTuple, Pos: tok.pos, Children: items}, nil

		case "[":
			p.next()
			items, _, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return &Node{Kind: KindList, Pos: tok.pos, Children: items}, nil

		case "{":
			p.next()
			return p.parseBraces(tok.pos)
		}
	}

	return nil, fmt.Errorf("unexpected %s at offset %d", tok, tok.pos)
}

// parseBraces reads a set or dict literal after the opening brace.
func (p *parser) parseBraces(pos int) (*Node, error) {
	if p.isOp("}") {
		p.next()
		return &Node{Kind: KindDict, Pos: pos}, nil
	}

	first, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.isOp(":") {
		items := []*Node{first}
		if p.isOp(",") {
			p.next()
			rest, _, err := p.parseList("}")
			if err != nil {
				return nil, err
			}
			items = append(items, rest...)
		} else if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return &Node{Kind: KindSet, Pos: pos, Children: items}, nil
	}

	node := &Node{Kind: KindDict, Pos: pos}
	key := first
	for {
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, key, value)

		if !p.isOp(",") {
			if err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return node, nil
		}
		p.next()
		if p.isOp("}") {
			p.next()
			return node, nil
		}
		if key, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
}
