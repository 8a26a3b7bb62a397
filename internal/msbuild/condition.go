package msbuild

import (
	"math"
	"os"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokProperty
	tokItem
	tokMetadata
	tokWord
	tokLParen
	tokRParen
	tokComma
	tokNot
	tokEq
	tokNeq
	tokLt
	tokGt
	tokLte
	tokGte
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lexCondition(cond string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(cond) {
		c := cond[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '\'':
			end := strings.IndexByte(cond[i+1:], '\'')
			if end < 0 {
				return nil, &ConditionError{Condition: cond, Pos: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: cond[i+1 : i+1+end], pos: i})
			i += end + 2
		case (c == '$' || c == '@' || c == '%') && i+1 < len(cond) && cond[i+1] == '(':
			end := matchParen(cond, i+1)
			if end < 0 {
				return nil, &ConditionError{Condition: cond, Pos: i, Msg: "unterminated reference"}
			}
			kind := tokProperty
			if c == '@' {
				kind = tokItem
			} else if c == '%' {
				kind = tokMetadata
			}
			toks = append(toks, token{kind: kind, text: cond[i : end+1], pos: i})
			i = end + 1
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '=':
			if i+1 < len(cond) && cond[i+1] == '=' {
				toks = append(toks, token{kind: tokEq, text: "==", pos: i})
				i += 2
				continue
			}
			return nil, &ConditionError{Condition: cond, Pos: i, Msg: "expected '=='"}
		case c == '!':
			if i+1 < len(cond) && cond[i+1] == '=' {
				toks = append(toks, token{kind: tokNeq, text: "!=", pos: i})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokNot, text: "!", pos: i})
			i++
		case c == '<' || c == '>':
			kind, text := tokLt, "<"
			if c == '>' {
				kind, text = tokGt, ">"
			}
			if i+1 < len(cond) && cond[i+1] == '=' {
				kind += 2
				text += "="
				i++
			}
			toks = append(toks, token{kind: kind, text: text, pos: i})
			i++
		default:
			start := i
			for i < len(cond) && !strings.ContainsRune(" \t\r\n()',=!<>", rune(cond[i])) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: cond[start:i], pos: start})
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(cond)}), nil
}

// matchParen returns the index of the ')' closing the '(' at open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type condNode interface{}

type binaryNode struct {
	op          tokenKind
	left, right condNode
}

type andNode struct{ left, right condNode }

type orNode struct{ left, right condNode }

type notNode struct{ operand condNode }

type funcNode struct {
	name string
	args []condNode
}

type operandNode struct {
	kind tokenKind
	text string
}

type condParser struct {
	cond string
	toks []token
	pos  int
}

func parseCondition(cond string) (condNode, error) {
	toks, err := lexCondition(cond)
	if err != nil {
		return nil, err
	}
	p := &condParser{cond: cond, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected "+strconv.Quote(t.text))
	}
	return n, nil
}

func (p *condParser) peek() token { return p.toks[p.pos] }

func (p *condParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) errorf(t token, msg string) error {
	return &ConditionError{Condition: p.cond, Pos: t.pos, Msg: msg}
}

func (p *condParser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (p *condParser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *condParser) parseComparison() (condNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch op := p.peek().kind; op {
	case tokEq, tokNeq, tokLt, tokGt, tokLte, tokGte:
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *condParser) parseUnary() (condNode, error) {
	t := p.next()
	switch t.kind {
	case tokNot:
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{operand}, nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, p.errorf(c, "expected ')'")
		}
		return n, nil
	case tokWord:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return operandNode{kind: tokWord, text: t.text}, nil
	case tokString, tokProperty, tokItem, tokMetadata:
		return operandNode{kind: t.kind, text: t.text}, nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of condition")
	}
	return nil, p.errorf(t, "unexpected "+strconv.Quote(t.text))
}

func (p *condParser) parseCall(name token) (condNode, error) {
	p.next() // (
	fn := funcNode{name: name.text}
	if p.peek().kind == tokRParen {
		p.next()
		return fn, nil
	}
	for {
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRParen:
			return fn, nil
		default:
			return nil, p.errorf(t, "expected ',' or ')'")
		}
	}
}

// StringEqualOperands reports whether cond is a single '==' comparison
// between two quoted strings and returns the unexpanded operands, for
// example ("$(Configuration)|$(Platform)", "Debug|AnyCPU").
func StringEqualOperands(cond string) (left, right string, ok bool) {
	if strings.TrimSpace(cond) == "" {
		return "", "", false
	}
	n, err := parseCondition(cond)
	if err != nil {
		return "", "", false
	}
	b, isBinary := n.(binaryNode)
	if !isBinary || b.op != tokEq {
		return "", "", false
	}
	l, lok := b.left.(operandNode)
	r, rok := b.right.(operandNode)
	if !lok || !rok || l.kind != tokString || r.kind != tokString {
		return "", "", false
	}
	return l.text, r.text, true
}

// conditionEvaluator evaluates parsed conditions against an expander.
type conditionEvaluator struct {
	cond string
	exp  *expander
	dir  string
}

// evalCondition evaluates cond. An empty condition is true.
func evalCondition(cond string, exp *expander, dir string) (bool, error) {
	if strings.TrimSpace(cond) == "" {
		return true, nil
	}
	n, err := parseCondition(cond)
	if err != nil {
		return false, err
	}
	ce := &conditionEvaluator{cond: cond, exp: exp, dir: dir}
	return ce.bool(n)
}

func (ce *conditionEvaluator) fail(msg string) error {
	return &ConditionError{Condition: ce.cond, Pos: -1, Msg: msg}
}

func (ce *conditionEvaluator) bool(n condNode) (bool, error) {
	switch n := n.(type) {
	case andNode:
		l, err := ce.bool(n.left)
		if err != nil || !l {
			return false, err
		}
		return ce.bool(n.right)
	case orNode:
		l, err := ce.bool(n.left)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return ce.bool(n.right)
	case notNode:
		v, err := ce.bool(n.operand)
		return !v, err
	case binaryNode:
		return ce.compare(n)
	case funcNode:
		return ce.call(n)
	case operandNode:
		s, err := ce.str(n)
		if err != nil {
			return false, err
		}
		if v, ok := parseBool(s); ok {
			return v, nil
		}
		return false, ce.fail("expected boolean, got " + strconv.Quote(s))
	}
	return false, ce.fail("unsupported expression")
}

func (ce *conditionEvaluator) str(n condNode) (string, error) {
	op, ok := n.(operandNode)
	if !ok {
		return "", ce.fail("expected a value")
	}
	if op.kind == tokWord {
		return op.text, nil
	}
	return ce.exp.expand(op.text), nil
}

func (ce *conditionEvaluator) compare(n binaryNode) (bool, error) {
	l, err := ce.str(n.left)
	if err != nil {
		return false, err
	}
	r, err := ce.str(n.right)
	if err != nil {
		return false, err
	}
	ln, lok := parseNumber(l)
	rn, rok := parseNumber(r)
	switch n.op {
	case tokEq:
		if lok && rok {
			return ln == rn, nil
		}
		return strings.EqualFold(l, r), nil
	case tokNeq:
		if lok && rok {
			return ln != rn, nil
		}
		return !strings.EqualFold(l, r), nil
	}
	if !lok || !rok {
		return false, ce.fail("numeric comparison of " + strconv.Quote(l) + " and " + strconv.Quote(r))
	}
	switch n.op {
	case tokLt:
		return ln < rn, nil
	case tokGt:
		return ln > rn, nil
	case tokLte:
		return ln <= rn, nil
	default:
		return ln >= rn, nil
	}
}

func (ce *conditionEvaluator) call(n funcNode) (bool, error) {
	if len(n.args) != 1 {
		return false, ce.fail(n.name + " takes one argument")
	}
	arg, err := ce.str(n.args[0])
	if err != nil {
		return false, err
	}
	switch strings.ToLower(n.name) {
	case "exists":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return false, nil
		}
		_, err := os.Stat(resolveIn(ce.dir, arg))
		return err == nil, nil
	case "hastrailingslash":
		return strings.HasSuffix(arg, "/") || strings.HasSuffix(arg, `\`), nil
	}
	return false, ce.fail("unknown function " + strconv.Quote(n.name))
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "!false", "!off", "!no":
		return true, true
	case "false", "off", "no", "!true", "!on", "!yes":
		return false, true
	}
	return false, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return float64(v), err == nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
