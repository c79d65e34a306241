package ast

// StatementsList wraps an ordered sequence of statements so that visitors
// can traverse it like any other node instead of special-casing []Node
// slices. IdentifiersList, ExpressionsList, VariablesList and RecordsList
// are the same wrapper specialized to a narrower element type, again so
// that each one dispatches through its own Enter/Leave pair.
type StatementsList struct {
	base
	Contents []Node
}

func NewStatementsList(contents ...Node) *StatementsList {
	return &StatementsList{base: newBase(KindStatementsList), Contents: contents}
}

func (n *StatementsList) Len() int { return len(n.Contents) }

func (n *StatementsList) Accept(v Visitor) {
	v.EnterStatementsList(n)
	for _, c := range n.Contents {
		c.Accept(v)
	}
	v.LeaveStatementsList(n)
}

// IdentifiersList is used for a FunctionDefinition's argument names.
type IdentifiersList struct {
	base
	Contents []*Identifier
}

func NewIdentifiersList(contents ...*Identifier) *IdentifiersList {
	return &IdentifiersList{base: newBase(KindIdentifiersList), Contents: contents}
}

func (n *IdentifiersList) Accept(v Visitor) {
	v.EnterIdentifiersList(n)
	for _, c := range n.Contents {
		c.Accept(v)
	}
	v.LeaveIdentifiersList(n)
}

// ExpressionsList is used for call arguments, return values, assignment
// right-hand sides and loop controls.
type ExpressionsList struct {
	base
	Contents []Node
}

func NewExpressionsList(contents ...Node) *ExpressionsList {
	return &ExpressionsList{base: newBase(KindExpressionsList), Contents: contents}
}

func (n *ExpressionsList) Len() int { return len(n.Contents) }

func (n *ExpressionsList) Accept(v Visitor) {
	v.EnterExpressionsList(n)
	for _, c := range n.Contents {
		c.Accept(v)
	}
	v.LeaveExpressionsList(n)
}

// VariablesList is used for assignment destinations and for-loop variables.
type VariablesList struct {
	base
	Contents []Node
}

func NewVariablesList(contents ...Node) *VariablesList {
	return &VariablesList{base: newBase(KindVariablesList), Contents: contents}
}

func (n *VariablesList) Accept(v Visitor) {
	v.EnterVariablesList(n)
	for _, c := range n.Contents {
		c.Accept(v)
	}
	v.LeaveVariablesList(n)
}

// RecordsList holds the array or keyed records of a TableConstructor.
type RecordsList struct {
	base
	Contents []Node
}

func NewRecordsList(contents ...Node) *RecordsList {
	return &RecordsList{base: newBase(KindRecordsList), Contents: contents}
}

func (n *RecordsList) Accept(v Visitor) {
	v.EnterRecordsList(n)
	for _, c := range n.Contents {
		c.Accept(v)
	}
	v.LeaveRecordsList(n)
}
