package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type valueKind int

const (
	valNone valueKind = iota
	valBool
	valNumber
	valString
	valList
	valTuple
	valSet
	valDict
)

var valueKindNames = map[valueKind]string{
	valNone:   "None",
	valBool:   "bool",
	valNumber: "number",
	valString: "str",
	valList:   "list",
	valTuple:  "tuple",
	valSet:    "set",
	valDict:   "dict",
}

func (k valueKind) String() string {
	return valueKindNames[k]
}

// value is a runtime value of the expression language. Dicts keep keys and
// values in parallel slices. size counts the value itself plus every nested
// element, so that the cost of walking it is known without walking it.
type value struct {
	kind  valueKind
	b     bool
	num   float64
	str   string
	items []value
	keys  []value
	size  int
}

func boolValue(b bool) value { return value{kind: valBool, b: b, size: 1} }

func numberValue(n float64) value { return value{kind: valNumber, num: n, size: 1} }

func stringValue(s string) value { return value{kind: valString, str: s, size: 1 + len(s)} }

func noneValue() value { return value{kind: valNone, size: 1} }

func seqValue(k valueKind, items []value) value {
	v := value{kind: k, items: items, size: 1}
	for _, item := range items {
		v.size += item.size
	}
	return v
}

func dictValue(keys, items []value) value {
	v := value{kind: valDict, keys: keys, items: items, size: 1}
	for i := range keys {
		v.size += keys[i].size + items[i].size
	}
	return v
}

func (v value) numeric() bool {
	return v.kind == valNumber || v.kind == valBool
}

func (v value) asNumber() float64 {
	if v.kind == valBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.num
}

func (v value) truthy() bool {
	switch v.kind {
	case valBool:
		return v.b
	case valNumber:
		return v.num != 0
	case valString:
		return v.str != ""
	case valList, valTuple, valSet, valDict:
		return len(v.items) > 0
	default:
		return false
	}
}

func (v value) String() string {
	switch v.kind {
	case valNone:
		return "None"
	case valBool:
		if v.b {
			return "True"
		}
		return "False"
	case valNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case valString:
		return strconv.Quote(v.str)
	case valDict:
		parts := make([]string, len(v.items))
		for i := range v.items {
			parts[i] = v.keys[i].String() + ": " + v.items[i].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		left, right := "[", "]"
		switch v.kind {
		case valTuple:
			left, right = "(", ")"
		case valSet:
			left, right = "{", "}"
		}
		return left + strings.Join(parts, ", ") + right
	}
}

func equal(a, b value) bool {
	if a.numeric() && b.numeric() {
		return a.asNumber() == b.asNumber()
	}
	if a.kind != b.kind {
		return false
	}

	switch a.kind {
	case valNone:
		return true
	case valString:
		return a.str == b.str
	case valList, valTuple:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case valSet:
		if len(a.items) != len(b.items) {
			return false
		}
		for _, item := range a.items {
			if !contains(b.items, item) {
				return false
			}
		}
		return true
	case valDict:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for i, k := range a.keys {
			j := index(b.keys, k)
			if j < 0 || !equal(a.items[i], b.items[j]) {
				return false
			}
		}
		return true
	}
	return false
}

func index(items []value, v value) int {
	for i, item := range items {
		if equal(item, v) {
			return i
		}
	}
	return -1
}

func contains(items []value, v value) bool {
	return index(items, v) >= 0
}

// compare orders two values, returning -1, 0 or 1.
func compare(a, b value) (int, error) {
	switch {
	case a.numeric() && b.numeric():
		x, y := a.asNumber(), b.asNumber()
		if math.IsNaN(x) || math.IsNaN(y) {
			return 0, fmt.Errorf("cannot order NaN")
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil

	case a.kind == valString && b.kind == valString:
		return strings.Compare(a.str, b.str), nil

	case a.kind == b.kind && (a.kind == valList || a.kind == valTuple):
		for i := 0; i < len(a.items) && i < len(b.items); i++ {
			if equal(a.items[i], b.items[i]) {
				continue
			}
			return compare(a.items[i], b.items[i])
		}
		switch {
		case len(a.items) < len(b.items):
			return -1, nil
		case len(a.items) > len(b.items):
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("cannot order %s and %s", a.kind, b.kind)
}

func member(needle, haystack value) (bool, error) {
	switch haystack.kind {
	case valString:
		if needle.kind != valString {
			return false, fmt.Errorf("'in <str>' requires str as left operand, not %s", needle.kind)
		}
		return strings.Contains(haystack.str, needle.str), nil
	case valList, valTuple, valSet:
		return contains(haystack.items, needle), nil
	case valDict:
		return contains(haystack.keys, needle), nil
	}
	return false, fmt.Errorf("argument of type %s is not iterable", haystack.kind)
}

// identical implements "is". Only None, True and False have identity in
// this language; every other operand pair is distinct.
func identical(a, b value) bool {
	switch {
	case a.kind == valNone && b.kind == valNone:
		return true
	case a.kind == valBool && b.kind == valBool:
		return a.b == b.b
	}
	return false
}

// maxRepeat caps the size of a sequence built by repetition, nested
// elements included.
const maxRepeat = 1 << 14

func repeat(seq value, times value) (value, error) {
	if times.kind == valNumber && times.num != math.Trunc(times.num) {
		return value{}, fmt.Errorf("can't multiply sequence by non-integer")
	}
	count := math.Max(times.asNumber(), 0)
	if count*float64(seq.size) > maxRepeat {
		return value{}, fmt.Errorf("repeated %s too long: %w", seq.kind, ErrTooExpensive)
	}
	n := int(count)
	if seq.kind == valString {
		return stringValue(strings.Repeat(seq.str, n)), nil
	}
	items := make([]value, 0, n*len(seq.items))
	for i := 0; i < n; i++ {
		items = append(items, seq.items...)
	}
	return seqValue(seq.kind, items), nil
}

func arithmetic(op string, a, b value) (value, error) {
	if a.numeric() && b.numeric() {
		x, y := a.asNumber(), b.asNumber()
		switch op {
		case "+":
			return numberValue(x + y), nil
		case "-":
			return numberValue(x - y), nil
		case "*":
			return numberValue(x * y), nil
		case "/":
			if y == 0 {
				return value{}, fmt.Errorf("division by zero")
			}
			return numberValue(x / y), nil
		case "//":
			if y == 0 {
				return value{}, fmt.Errorf("integer division by zero")
			}
			return numberValue(math.Floor(x / y)), nil
		case "%":
			if y == 0 {
				return value{}, fmt.Errorf("modulo by zero")
			}
			return numberValue(x - y*math.Floor(x/y)), nil
		case "**":
			if x == 0 && y < 0 {
				return value{}, fmt.Errorf("zero cannot be raised to a negative power")
			}
			return numberValue(math.Pow(x, y)), nil
		}
	}

	switch op {
	case "+":
		switch {
		case a.kind == valString && b.kind == valString:
			return stringValue(a.str + b.str), nil
		case a.kind == b.kind && (a.kind == valList || a.kind == valTuple):
			items := append(append([]value{}, a.items...), b.items...)
			return seqValue(a.kind, items), nil
		}
	case "*":
		isSeq := func(v value) bool { return v.kind == valString || v.kind == valList || v.kind == valTuple }
		switch {
		case isSeq(a) && b.numeric():
			return repeat(a, b)
		case a.numeric() && isSeq(b):
			return repeat(b, a)
		}
	}

	return value{}, fmt.Errorf("unsupported operand types for %s: %s and %s", op, a.kind, b.kind)
}

func subscript(container, idx value) (value, error) {
	switch container.kind {
	case valDict:
		i := index(container.keys, idx)
		if i < 0 {
			return value{}, fmt.Errorf("key %s not found", idx)
		}
		return container.items[i], nil

	case valString, valList, valTuple:
		if !idx.numeric() || (idx.kind == valNumber && idx.num != math.Trunc(idx.num)) {
			return value{}, fmt.Errorf("%s indices must be integers", container.kind)
		}
		n := len(container.items)
		if container.kind == valString {
			n = len(container.str)
		}
		i := int(idx.asNumber())
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return value{}, fmt.Errorf("%s index out of range", container.kind)
		}
		if container.kind == valString {
			return stringValue(container.str[i : i+1]), nil
		}
		return container.items[i], nil
	}

	return value{}, fmt.Errorf("%s is not subscriptable", container.kind)
}
