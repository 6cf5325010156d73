package rules

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Default length limits for rule text, in characters.
const (
	MaxExpressionLength = 256
	MaxMessageLength    = 128
)

// ErrValidation is wrapped by every rule validation failure.
var ErrValidation = errors.New("invalid status rule")

// ValidationError describes why a rule was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bounds the size of rule text
type Limits struct {
	MaxExpression int `yaml:"max_expression"`
	MaxMessage    int `yaml:"max_message"`
}

// DefaultLimits returns the stock rule size limits.
func DefaultLimits() Limits {
	return Limits{MaxExpression: MaxExpressionLength, MaxMessage: MaxMessageLength}
}

// Validate checks a rule with the default limits.
func Validate(expression, message string) (*Expression, error) {
	return DefaultLimits().Validate(expression, message)
}

// Validate checks that a rule is safe to store and evaluate and returns the
// parsed expression. The expression must parse as a single expression, name
// at least one placeholder and consist only of allow-listed nodes and
// operators.
func (l Limits) Validate(expression, message string) (*Expression, error) {
	if n := utf8.RuneCountInString(expression); n > l.MaxExpression {
		return nil, invalid("expression is %d characters, the limit is %d", n, l.MaxExpression)
	}
	if n := utf8.RuneCountInString(message); n > l.MaxMessage {
		return nil, invalid("message is %d characters, the limit is %d", n, l.MaxMessage)
	}

	expr, err := Parse(expression)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if len(expr.Placeholders) == 0 {
		return nil, invalid("expression references no ${Component.Key} placeholder")
	}

	if err := checkAllowed(expr.Root); err != nil {
		return nil, err
	}

	return expr, nil
}

func checkAllowed(root *Node) error {
	return walk(root, func(n *Node) error {
		if !allowedKinds[n.Kind] {
			return invalid("%s at offset %d is not allowed", n.Kind, n.Pos)
		}
		ops, restricted := allowedOps[n.Kind]
		if !restricted {
			return nil
		}
		if n.Op != "" && !ops[n.Op] {
			return invalid("operator %q at offset %d is not allowed", n.Op, n.Pos)
		}
		for _, op := range n.Ops {
			if !ops[op] {
				return invalid("operator %q at offset %d is not allowed", op, n.Pos)
			}
		}
		return nil
	})
}
