package rules

import (
	"errors"
	"fmt"

	valueparser "github.com/petnica-meteor-group/meteornet-server/pkg/parser"
)

// ErrUnresolved is returned by Evaluate when a placeholder has no value.
var ErrUnresolved = errors.New("placeholder has no current value")

// Lookup resolves a placeholder to the raw measurement value it refers to
type Lookup interface {
	Value(component, key string) (string, bool)
}

// Evaluate substitutes the placeholders and reports the truth value of the
// expression. A value that parses as a number is substituted as its numeric
// magnitude; anything else is substituted as a string. When a placeholder
// cannot be resolved the result wraps ErrUnresolved.
func (e *Expression) Evaluate(values Lookup) (bool, error) {
	bound := make([]value, len(e.Placeholders))
	for i, ph := range e.Placeholders {
		raw, ok := values.Value(ph.Component, ph.Key)
		if !ok {
			return false, fmt.Errorf("${%s.%s}: %w", ph.Component, ph.Key, ErrUnresolved)
		}
		if num, _, numeric := valueparser.ParseValue(raw); numeric {
			bound[i] = numberValue(num)
		} else {
			bound[i] = stringValue(raw)
		}
	}

	ev := &evaluator{bound: bound, budget: evalBudget}
	v, err := ev.eval(e.Root)
	if err != nil {
		return false, err
	}
	return v.truthy(), nil
}

// ErrTooExpensive is returned by Evaluate when an expression builds more
// container elements than one evaluation may.
var ErrTooExpensive = errors.New("expression exceeds evaluation budget")

// evalBudget is the number of elements one evaluation may build across all
// strings, sequences and dicts.
const evalBudget = 1 << 16

type evaluator struct {
	bound  []value
	budget int
}

// charge draws the size of a freshly built value from the budget.
func (ev *evaluator) charge(v value) (value, error) {
	ev.budget -= v.size
	if ev.budget < 0 {
		return value{}, ErrTooExpensive
	}
	return v, nil
}

func (ev *evaluator) eval(n *Node) (value, error) {
	switch n.Kind {
	case KindNumber:
		return numberValue(n.Number), nil

	case KindString:
		return stringValue(n.Text), nil

	case KindConstant:
		switch n.Text {
		case "True":
			return boolValue(true), nil
		case "False":
			return boolValue(false), nil
		}
		return noneValue(), nil

	case KindPlaceholder:
		return ev.bound[n.Ref], nil

	case KindName:
		return value{}, fmt.Errorf("name %q is not defined", n.Text)

	case KindBoolOp:
		var v value
		for _, c := range n.Children {
			var err error
			if v, err = ev.eval(c); err != nil {
				return value{}, err
			}
			if v.truthy() == (n.Op == "or") {
				return v, nil
			}
		}
		return v, nil

	case KindNot:
		v, err := ev.eval(n.Children[0])
		if err != nil {
			return value{}, err
		}
		return boolValue(!v.truthy()), nil

	case KindUnary:
		v, err := ev.eval(n.Children[0])
		if err != nil {
			return value{}, err
		}
		if !v.numeric() {
			return value{}, fmt.Errorf("bad operand type for unary %s: %s", n.Op, v.kind)
		}
		if n.Op == "-" {
			return numberValue(-v.asNumber()), nil
		}
		return numberValue(v.asNumber()), nil

	case KindBinary:
		left, err := ev.eval(n.Children[0])
		if err != nil {
			return value{}, err
		}
		right, err := ev.eval(n.Children[1])
		if err != nil {
			return value{}, err
		}
		v, err := arithmetic(n.Op, left, right)
		if err != nil {
			return value{}, err
		}
		if v.kind == valNumber {
			return v, nil
		}
		return ev.charge(v)

	case KindCompare:
		return ev.evalCompare(n)

	case KindList, KindTuple, KindSet:
		items := make([]value, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := ev.eval(c)
			if err != nil {
				return value{}, err
			}
			if n.Kind == KindSet && contains(items, v) {
				continue
			}
			items = append(items, v)
		}
		kind := map[NodeKind]valueKind{KindList: valList, KindTuple: valTuple, KindSet: valSet}[n.Kind]
		return ev.charge(seqValue(kind, items))

	case KindDict:
		var d value
		for i := 0; i+1 < len(n.Children); i += 2 {
			k, err := ev.eval(n.Children[i])
			if err != nil {
				return value{}, err
			}
			v, err := ev.eval(n.Children[i+1])
			if err != nil {
				return value{}, err
			}
			if j := index(d.keys, k); j >= 0 {
				d.items[j] = v
				continue
			}
			d.keys = append(d.keys, k)
			d.items = append(d.items, v)
		}
		return ev.charge(dictValue(d.keys, d.items))

	case KindSubscript:
		container, err := ev.eval(n.Children[0])
		if err != nil {
			return value{}, err
		}
		idx, err := ev.eval(n.Children[1])
		if err != nil {
			return value{}, err
		}
		return subscript(container, idx)

	case KindAttribute:
		v, err := ev.eval(n.Children[0])
		if err != nil {
			return value{}, err
		}
		return value{}, fmt.Errorf("%s has no attribute %q", v.kind, n.Text)
	}

	return value{}, fmt.Errorf("%s cannot be evaluated", n.Kind)
}

// evalCompare evaluates a comparison chain: a < b < c means a < b and b < c,
// with each operand evaluated at most once.
func (ev *evaluator) evalCompare(n *Node) (value, error) {
	left, err := ev.eval(n.Children[0])
	if err != nil {
		return value{}, err
	}

	for i, op := range n.Ops {
		right, err := ev.eval(n.Children[i+1])
		if err != nil {
			return value{}, err
		}

		var ok bool
		switch op {
		case "==":
			ok = equal(left, right)
		case "!=":
			ok = !equal(left, right)
		case "is":
			ok = identical(left, right)
		case "is not":
			ok = !identical(left, right)
		case "in", "not in":
			if ok, err = member(left, right); err != nil {
				return value{}, err
			}
			if op == "not in" {
				ok = !ok
			}
		default:
			c, err := compare(left, right)
			if err != nil {
				return value{}, err
			}
			switch op {
			case "<":
				ok = c < 0
			case "<=":
				ok = c <= 0
			case ">":
				ok = c > 0
			case ">=":
				ok = c >= 0
			}
		}

		if !ok {
			return boolValue(false), nil
		}
		left = right
	}

	return boolValue(true), nil
}
