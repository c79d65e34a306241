package ast

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes an indented s-expression-like tree of n to w, one node per
// line. It is a debug aid for inspecting the tree between pipeline stages
// and is not related to lang/luawriter, which renders actual Lua 5.1
// source.
func Fprint(w io.Writer, n Node) {
	p := &printer{w: w}
	p.walk(n, 0)
}

// Sprint is Fprint into a string, convenient for tests and log lines.
func Sprint(n Node) string {
	var b strings.Builder
	Fprint(&b, n)
	return b.String()
}

type printer struct {
	w io.Writer
}

func (p *printer) line(depth int, format string, args ...any) {
	fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (p *printer) walk(n Node, depth int) {
	if n == nil {
		p.line(depth, "<nil>")
		return
	}
	switch t := n.(type) {
	case *FunctionDefinition:
		p.line(depth, "FunctionDefinition source=%q vararg=%v args=%d upvalues=%d",
			t.SourceName, t.IsVararg, len(t.Arguments.Contents), len(t.Upvalues))
		if t.Error != nil {
			p.line(depth+1, "lift-error: %v", t.Error)
			return
		}
		p.walk(t.Body, depth+1)
	case *StatementsList:
		p.line(depth, "StatementsList len=%d", len(t.Contents))
		for _, c := range t.Contents {
			p.walk(c, depth+1)
		}
	case *Block:
		p.line(depth, "Block#%d [%d,%d] loop=%v warpins=%d", t.Index, t.FirstAddress, t.LastAddress, t.Loop, t.WarpinsCount)
		p.walk(t.Contents, depth+1)
		p.walk(t.Warp, depth+1)
	case *If:
		p.line(depth, "If")
		p.walk(t.Expression, depth+1)
		p.line(depth, "then")
		p.walk(t.Then, depth+1)
		for _, e := range t.ElseIfs {
			p.walk(e, depth)
		}
		p.line(depth, "else")
		p.walk(t.Else, depth+1)
	case *ElseIf:
		p.line(depth, "elseif")
		p.walk(t.Expression, depth+1)
		p.walk(t.Then, depth+1)
	case *While:
		p.line(depth, "While")
		p.walk(t.Expression, depth+1)
		p.walk(t.Body, depth+1)
	case *RepeatUntil:
		p.line(depth, "RepeatUntil")
		p.walk(t.Body, depth+1)
		p.walk(t.Expression, depth+1)
	case *NumericFor:
		p.line(depth, "NumericFor")
		if t.Variable != nil {
			p.walk(t.Variable, depth+1)
		}
		p.walk(t.Expressions, depth+1)
		p.walk(t.Body, depth+1)
	case *IteratorFor:
		p.line(depth, "IteratorFor")
		p.walk(t.Identifiers, depth+1)
		p.walk(t.Expressions, depth+1)
		p.walk(t.Body, depth+1)
	case *Return:
		p.line(depth, "Return")
		p.walk(t.Values, depth+1)
	case *Break:
		p.line(depth, "Break")
	case *Assignment:
		p.line(depth, "Assignment kind=%v", t.Kind)
		p.walk(t.Destinations, depth+1)
		p.walk(t.Expressions, depth+1)
	case *FunctionCall:
		p.line(depth, "FunctionCall method=%v", t.IsMethod)
		p.walk(t.Function, depth+1)
		p.walk(t.Arguments, depth+1)
	case *NoOp:
		p.line(depth, "NoOp")
	case *BinaryOperator:
		p.line(depth, "BinaryOperator %s", t.Op)
		p.walk(t.Left, depth+1)
		p.walk(t.Right, depth+1)
	case *UnaryOperator:
		p.line(depth, "UnaryOperator %s", t.Op)
		p.walk(t.Operand, depth+1)
	case *GetItem:
		p.line(depth, "GetItem")
		p.walk(t.Table, depth+1)
		p.walk(t.Key, depth+1)
	case *TableConstructor:
		p.line(depth, "TableConstructor")
		p.walk(t.Array, depth+1)
		p.walk(t.Records, depth+1)
	case *ArrayRecord:
		p.line(depth, "ArrayRecord")
		p.walk(t.Value, depth+1)
	case *TableRecord:
		p.line(depth, "TableRecord")
		p.walk(t.Key, depth+1)
		p.walk(t.Value, depth+1)
	case *Identifier:
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("slot%d", t.Slot)
		}
		p.line(depth, "Identifier %s kind=%v", name, t.Kind)
	case *Constant:
		p.line(depth, "Constant kind=%v value=%v", t.Kind, t.Value)
	case *Primitive:
		p.line(depth, "Primitive kind=%v", t.Kind)
	case *Vararg:
		p.line(depth, "Vararg")
	case *Multres:
		p.line(depth, "MULTRES")
	case *UnconditionalWarp:
		p.line(depth, "UnconditionalWarp kind=%v target=#%d uclo=%v", t.WarpKind, t.Target, t.IsUCLO)
	case *ConditionalWarp:
		p.line(depth, "ConditionalWarp true=#%d false=#%d", t.TrueTarget, t.FalseTarget)
		p.walk(t.Condition, depth+1)
	case *IteratorWarp:
		p.line(depth, "IteratorWarp body=#%d wayout=#%d", t.BodyTarget, t.WayOutTarget)
		p.walk(t.Variables, depth+1)
		p.walk(t.Controls, depth+1)
	case *NumericLoopWarp:
		p.line(depth, "NumericLoopWarp body=#%d wayout=#%d", t.BodyTarget, t.WayOutTarget)
		p.walk(t.Expressions, depth+1)
	case *EndWarp:
		p.line(depth, "EndWarp")
	default:
		p.line(depth, "%s", n)
	}
}
