// Package ast defines the abstract syntax tree produced by the decompile
// pipeline. A single mutable tree is shared by every stage: the builder
// (lang/builder) produces the first warped shape, and each later stage
// rewrites parts of it in place.
//
// Unlike a parser's AST, this tree does not claim to preserve the original
// source text; it reconstructs a structurally equivalent Lua 5.1 program
// from the bytecode's instruction stream and (when present) its debug
// section.
package ast

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies the concrete type of a Node without a type switch. It is
// mostly useful for diagnostics and for the serialized tagged-dict form
// (see ToDict/LoadDict).
type Kind int

const (
	KindFunctionDefinition Kind = iota
	KindStatementsList
	KindIdentifiersList
	KindExpressionsList
	KindVariablesList
	KindRecordsList
	KindBlock
	KindIf
	KindElseIf
	KindWhile
	KindRepeatUntil
	KindNumericFor
	KindIteratorFor
	KindReturn
	KindBreak
	KindAssignment
	KindFunctionCall
	KindNoOp
	KindBinaryOperator
	KindUnaryOperator
	KindGetItem
	KindTableConstructor
	KindArrayRecord
	KindTableRecord
	KindIdentifier
	KindConstant
	KindPrimitive
	KindVararg
	KindMultres
	KindUnconditionalWarp
	KindConditionalWarp
	KindIteratorWarp
	KindNumericLoopWarp
	KindEndWarp
)

var kindNames = [...]string{
	KindFunctionDefinition:  "FunctionDefinition",
	KindStatementsList:      "StatementsList",
	KindIdentifiersList:     "IdentifiersList",
	KindExpressionsList:     "ExpressionsList",
	KindVariablesList:       "VariablesList",
	KindRecordsList:         "RecordsList",
	KindBlock:               "Block",
	KindIf:                  "If",
	KindElseIf:              "ElseIf",
	KindWhile:               "While",
	KindRepeatUntil:         "RepeatUntil",
	KindNumericFor:          "NumericFor",
	KindIteratorFor:         "IteratorFor",
	KindReturn:              "Return",
	KindBreak:               "Break",
	KindAssignment:          "Assignment",
	KindFunctionCall:        "FunctionCall",
	KindNoOp:                "NoOp",
	KindBinaryOperator:      "BinaryOperator",
	KindUnaryOperator:       "UnaryOperator",
	KindGetItem:             "GetItem",
	KindTableConstructor:    "TableConstructor",
	KindArrayRecord:         "ArrayRecord",
	KindTableRecord:         "TableRecord",
	KindIdentifier:          "Identifier",
	KindConstant:            "Constant",
	KindPrimitive:           "Primitive",
	KindVararg:              "Vararg",
	KindMultres:             "MULTRES",
	KindUnconditionalWarp:   "UnconditionalWarp",
	KindConditionalWarp:     "ConditionalWarp",
	KindIteratorWarp:        "IteratorWarp",
	KindNumericLoopWarp:     "NumericLoopWarp",
	KindEndWarp:             "EndWarp",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is implemented by every AST node. Warp nodes (UnconditionalWarp,
// ConditionalWarp, IteratorWarp, NumericLoopWarp, EndWarp) also implement
// Node but are edges, not statements: they must never be present inside a
// StatementsList.Contents, and Accept must never recurse into a warp's
// target block fields.
type Node interface {
	fmt.Stringer

	// Kind reports the concrete node type.
	Kind() Kind

	// ID is a small, process-unique identifier assigned at construction time,
	// used by the tagged-dict serialization to detect shared references.
	ID() int

	// Accept dispatches to the matching pair of Enter/Leave methods on v, in
	// the node's own execution order, recursing into children as needed.
	Accept(v Visitor)
}

var nextNodeID atomic.Int64

// newID hands out a fresh node identifier. The counter is atomic because
// internal/batch builds the trees of several files on separate goroutines
// at the same time.
func newID() int {
	return int(nextNodeID.Add(1))
}

// base is embedded by every concrete node to provide ID() and a default
// Kind-driven String().
type base struct {
	id   int
	kind Kind
}

func newBase(kind Kind) base {
	return base{id: newID(), kind: kind}
}

func (b base) ID() int     { return b.id }
func (b base) Kind() Kind  { return b.kind }
func (b base) String() string {
	return b.kind.String()
}
