package ast

// Warp nodes model the outgoing control-flow edge of a Block. They are
// never statements and are never present in a StatementsList; a warp's
// Accept method visits only its own expression/variable children, never
// the target Block it points to (spec.md §9: warp targets are followed by
// index through the owning function's block vector, not by Go pointer, to
// keep the tree acyclic and cheap to walk).

// UnconditionalWarpKind distinguishes a plain fallthrough/goto edge from a
// LuaJIT UCLO (upvalue-close-and-jump) edge.
type UnconditionalWarpKind int

const (
	// WarpFlow is an ordinary fallthrough to the next block.
	WarpFlow UnconditionalWarpKind = iota
	// WarpJump is an edge produced by an explicit jump instruction (JMP,
	// LOOP or UCLO), whether or not its target is the next block.
	WarpJump
)

// UnconditionalWarp represents a single successor edge with no condition.
type UnconditionalWarp struct {
	base
	WarpKind UnconditionalWarpKind
	Target   int // index of the successor Block in the function's block vector

	// IsUCLO marks an edge produced by a UCLO instruction (closes upvalues
	// before jumping, typically at a loop's back edge or a break out of a
	// scope holding captured locals). lang/unwarp treats a UCLO edge
	// conservatively: it is never folded into a plain Flow edge even when
	// Target is the next block, because the close must still happen.
	IsUCLO bool
}

func NewUnconditionalWarp(kind UnconditionalWarpKind, target int) *UnconditionalWarp {
	return &UnconditionalWarp{base: newBase(KindUnconditionalWarp), WarpKind: kind, Target: target}
}

func (n *UnconditionalWarp) Accept(v Visitor) {
	v.EnterUnconditionalWarp(n)
	v.LeaveUnconditionalWarp(n)
}

// ConditionalWarp represents a two-way branch: TrueTarget when Condition
// is truthy, FalseTarget otherwise. lang/builder emits the block after the
// JMP as TrueTarget and the JMP's own target as FalseTarget, matching
// LuaJIT's comparison+JMP pair (the comparison skips the following JMP on
// a true result).
type ConditionalWarp struct {
	base
	Condition              Node
	TrueTarget, FalseTarget int
}

func NewConditionalWarp(condition Node, trueTarget, falseTarget int) *ConditionalWarp {
	return &ConditionalWarp{
		base:        newBase(KindConditionalWarp),
		Condition:   condition,
		TrueTarget:  trueTarget,
		FalseTarget: falseTarget,
	}
}

func (n *ConditionalWarp) Accept(v Visitor) {
	v.EnterConditionalWarp(n)
	n.Condition.Accept(v)
	v.LeaveConditionalWarp(n)
}

// IteratorWarp represents the control edge of a generic for loop (ITERC):
// on each iteration the Controls are passed to the iterator function and
// its results are assigned to Variables; BodyTarget is entered while the
// first result is non-nil, WayOutTarget once it is nil.
type IteratorWarp struct {
	base
	Variables  *VariablesList
	Controls   *ExpressionsList // the f, s, var triple
	BodyTarget int
	WayOutTarget int
}

func NewIteratorWarp() *IteratorWarp {
	return &IteratorWarp{
		base:       newBase(KindIteratorWarp),
		Variables:  NewVariablesList(),
		Controls:   NewExpressionsList(),
	}
}

func (n *IteratorWarp) Accept(v Visitor) {
	v.EnterIteratorWarp(n)
	n.Controls.Accept(v)
	n.Variables.Accept(v)
	v.LeaveIteratorWarp(n)
}

// NumericLoopWarp represents the control edge of a numeric for loop
// (FORI/FORL): Variable is bound from Expressions (start, limit[, step])
// on entry and re-tested each iteration.
type NumericLoopWarp struct {
	base
	Variable     *Identifier
	Expressions  *ExpressionsList
	BodyTarget   int
	WayOutTarget int
}

func NewNumericLoopWarp() *NumericLoopWarp {
	return &NumericLoopWarp{base: newBase(KindNumericLoopWarp), Expressions: NewExpressionsList()}
}

func (n *NumericLoopWarp) Accept(v Visitor) {
	v.EnterNumericLoopWarp(n)
	n.Expressions.Accept(v)
	if n.Variable != nil {
		n.Variable.Accept(v)
	}
	v.LeaveNumericLoopWarp(n)
}

// EndWarp marks a block with no successor: the function falls off its end
// (an implicit `return` LuaJIT always appends to a prototype's bytecode).
type EndWarp struct{ base }

func NewEndWarp() *EndWarp { return &EndWarp{base: newBase(KindEndWarp)} }

func (n *EndWarp) Accept(v Visitor) {
	v.EnterEndWarp(n)
	v.LeaveEndWarp(n)
}
