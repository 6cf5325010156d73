package rules

// NodeKind identifies the syntactic form of a Node
type NodeKind int

const (
	KindBoolOp NodeKind = iota
	KindNot
	KindUnary
	KindBinary
	KindCompare
	KindNumber
	KindString
	KindConstant
	KindName
	KindPlaceholder
	KindAttribute
	KindSubscript
	KindList
	KindTuple
	KindSet
	KindDict
	KindCall
)

var kindNames = map[NodeKind]string{
	KindBoolOp:      "boolean operation",
	KindNot:         "not",
	KindUnary:       "unary operation",
	KindBinary:      "binary operation",
	KindCompare:     "comparison",
	KindNumber:      "number",
	KindString:      "string",
	KindConstant:    "constant",
	KindName:        "name",
	KindPlaceholder: "placeholder",
	KindAttribute:   "attribute",
	KindSubscript:   "subscript",
	KindList:        "list",
	KindTuple:       "tuple",
	KindSet:         "set",
	KindDict:        "dict",
	KindCall:        "function call",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown node"
}

// Node is one node of a parsed expression.
//
// Children depend on Kind: BoolOp has two or more operands; Compare has
// len(Ops)+1 operands; Binary has two; Not, Unary and Attribute have one;
// Subscript has the value and the index; Dict alternates key and value; Call
// has the callee followed by the arguments.
type Node struct {
	Kind     NodeKind
	Op       string
	Ops      []string
	Children []*Node
	Number   float64
	Text     string
	Pos      int
	// Ref is the placeholder index for KindPlaceholder
	Ref int
}

// allowedKinds is the complete set of node kinds an expression may contain.
var allowedKinds = map[NodeKind]bool{
	KindBoolOp:      true,
	KindNot:         true,
	KindUnary:       true,
	KindBinary:      true,
	KindCompare:     true,
	KindNumber:      true,
	KindString:      true,
	KindConstant:    true,
	KindName:        true,
	KindPlaceholder: true,
	KindAttribute:   true,
	KindSubscript:   true,
	KindList:        true,
	KindTuple:       true,
	KindSet:         true,
	KindDict:        true,
}

// allowedOps lists the operators permitted per node kind.
var allowedOps = map[NodeKind]map[string]bool{
	KindBoolOp: {"and": true, "or": true},
	KindUnary:  {"-": true, "+": true},
	KindBinary: {"+": true, "-": true, "*": true, "/": true, "//": true, "%": true, "**": true},
	KindCompare: {
		"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
		"in": true, "not in": true, "is": true, "is not": true,
	},
}

// walk visits n and all of its descendants depth first, stopping at the
// first error returned by fn.
func walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
