// Package luawriter implements C11: a tree-walking emitter that renders a
// fully structured, warp-free ast.FunctionDefinition as Lua 5.1 source
// text. It runs last in the pipeline, after lang/validator has confirmed
// the tree carries no more warps.
package luawriter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AzurLaneTools/ljd/lang/ast"
)

// Write renders fn as a top-level Lua chunk: `function(...) ... end`,
// with no newline after the final `end`. Indentation is two spaces per
// spec.md §6's external interface description.
func Write(w io.Writer, fn *ast.FunctionDefinition) error {
	p := &printer{w: w}
	p.functionBody(fn)
	return p.err
}

// Sprint is Write into a string, convenient for tests and golden-file
// comparisons.
func Sprint(fn *ast.FunctionDefinition) string {
	var b strings.Builder
	_ = Write(&b, fn)
	return b.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) indent(depth int) {
	p.printf("%s", strings.Repeat("  ", depth))
}

func (p *printer) functionBody(fn *ast.FunctionDefinition) {
	p.printf("function(")
	p.identifierList(fn.Arguments)
	if fn.IsVararg {
		if len(fn.Arguments.Contents) > 0 {
			p.printf(", ")
		}
		p.printf("...")
	}
	p.printf(")\n")
	if fn.Error != nil {
		p.indent(1)
		p.printf("-- decompilation failed: %v\n", fn.Error)
	} else {
		p.statements(fn.Body, 1)
	}
	p.printf("end")
}

func (p *printer) identifierList(list *ast.IdentifiersList) {
	for i, id := range list.Contents {
		if i > 0 {
			p.printf(", ")
		}
		p.printf("%s", identName(id))
	}
}

func (p *printer) statements(list *ast.StatementsList, depth int) {
	for _, n := range list.Contents {
		p.statement(n, depth)
	}
}

func (p *printer) statement(n ast.Node, depth int) {
	switch t := n.(type) {
	case *ast.If:
		p.ifStatement(t, depth)
	case *ast.While:
		p.indent(depth)
		p.printf("while ")
		p.expr(t.Expression, 0)
		p.printf(" do\n")
		p.statements(t.Body, depth+1)
		p.indent(depth)
		p.printf("end\n")
	case *ast.RepeatUntil:
		p.indent(depth)
		p.printf("repeat\n")
		p.statements(t.Body, depth+1)
		p.indent(depth)
		p.printf("until ")
		p.expr(t.Expression, 0)
		p.printf("\n")
	case *ast.NumericFor:
		p.indent(depth)
		p.printf("for %s = ", identName(t.Variable))
		for i, e := range t.Expressions.Contents {
			if i > 0 {
				p.printf(", ")
			}
			p.expr(e, 0)
		}
		p.printf(" do\n")
		p.statements(t.Body, depth+1)
		p.indent(depth)
		p.printf("end\n")
	case *ast.IteratorFor:
		p.indent(depth)
		p.printf("for ")
		for i, id := range t.Identifiers.Contents {
			if i > 0 {
				p.printf(", ")
			}
			p.printf("%s", identName(id.(*ast.Identifier)))
		}
		p.printf(" in ")
		for i, e := range t.Expressions.Contents {
			if i > 0 {
				p.printf(", ")
			}
			p.expr(e, 0)
		}
		p.printf(" do\n")
		p.statements(t.Body, depth+1)
		p.indent(depth)
		p.printf("end\n")
	case *ast.Return:
		p.indent(depth)
		p.printf("return")
		if len(t.Values.Contents) > 0 {
			p.printf(" ")
			for i, e := range t.Values.Contents {
				if i > 0 {
					p.printf(", ")
				}
				p.expr(e, 0)
			}
		}
		p.printf("\n")
	case *ast.Break:
		p.indent(depth)
		p.printf("break\n")
	case *ast.Assignment:
		p.assignment(t, depth)
	case *ast.FunctionCall:
		p.indent(depth)
		p.expr(t, 0)
		p.printf("\n")
	case *ast.NoOp:
		// A no-op statement marks an instruction lang/builder could not
		// classify; nothing to emit, spec.md §7's Lift-error tolerance
		// already logged it at the enclosing FunctionDefinition.
	default:
		p.indent(depth)
		p.printf("-- unrenderable statement %T\n", n)
	}
}

func (p *printer) ifStatement(n *ast.If, depth int) {
	p.indent(depth)
	p.printf("if ")
	p.expr(n.Expression, 0)
	p.printf(" then\n")
	p.statements(n.Then, depth+1)
	for _, e := range n.ElseIfs {
		p.indent(depth)
		p.printf("elseif ")
		p.expr(e.Expression, 0)
		p.printf(" then\n")
		p.statements(e.Then, depth+1)
	}
	if len(n.Else.Contents) > 0 {
		p.indent(depth)
		p.printf("else\n")
		p.statements(n.Else, depth+1)
	}
	p.indent(depth)
	p.printf("end\n")
}

func (p *printer) assignment(n *ast.Assignment, depth int) {
	p.indent(depth)
	if n.Kind == ast.LocalDefinition {
		p.printf("local ")
	}
	for i, d := range n.Destinations.Contents {
		if i > 0 {
			p.printf(", ")
		}
		p.expr(d, 0)
	}
	if len(n.Expressions.Contents) > 0 {
		p.printf(" = ")
		for i, e := range n.Expressions.Contents {
			if i > 0 {
				p.printf(", ")
			}
			p.expr(e, 0)
		}
	}
	p.printf("\n")
}

// expr renders n, parenthesizing it when its own precedence is lower than
// outerPrec demands; pass 0 for a context with no surrounding operator.
func (p *printer) expr(n ast.Node, outerPrec int) {
	switch t := n.(type) {
	case nil:
		p.printf("nil")
	case *ast.BinaryOperator:
		prec := t.Op.Precedence()
		paren := prec < outerPrec
		if paren {
			p.printf("(")
		}
		leftPrec, rightPrec := prec, prec
		if t.Op.IsRightAssociative() {
			leftPrec = prec + 1
		} else {
			rightPrec = prec + 1
		}
		p.expr(t.Left, leftPrec)
		p.printf(" %s ", t.Op)
		p.expr(t.Right, rightPrec)
		if paren {
			p.printf(")")
		}
	case *ast.UnaryOperator:
		if t.Op == ast.OpToString || t.Op == ast.OpToNumber {
			// LuaJIT's bytecode-revision-2.1 coercion ops have no prefix
			// syntax in Lua 5.1; they read back as the library call that
			// would produce the same coercion.
			p.printf("%s(", t.Op)
			p.expr(t.Operand, 0)
			p.printf(")")
			return
		}
		paren := ast.PrecedenceUnary < outerPrec
		if paren {
			p.printf("(")
		}
		if t.Op == ast.OpNot {
			p.printf("not ")
		} else {
			p.printf("%s", t.Op)
		}
		p.expr(t.Operand, ast.PrecedenceUnary)
		if paren {
			p.printf(")")
		}
	case *ast.GetItem:
		p.expr(t.Table, maxPrecedence)
		if key, ok := t.Key.(*ast.Constant); ok && key.Kind == ast.ConstString && isIdentifierName(key.Value.(string)) {
			p.printf(".%s", key.Value.(string))
			return
		}
		p.printf("[")
		p.expr(t.Key, 0)
		p.printf("]")
	case *ast.FunctionCall:
		p.expr(t.Function, maxPrecedence)
		p.printf("(")
		for i, a := range t.Arguments.Contents {
			if i > 0 {
				p.printf(", ")
			}
			p.expr(a, 0)
		}
		p.printf(")")
	case *ast.TableConstructor:
		p.tableConstructor(t)
	case *ast.Identifier:
		p.printf("%s", identName(t))
	case *ast.Constant:
		p.constant(t)
	case *ast.Primitive:
		p.printf("%s", primitiveName(t.Kind))
	case *ast.Vararg:
		p.printf("...")
	case *ast.Multres:
		p.printf("...")
	case *ast.FunctionDefinition:
		p.functionBody(t)
	default:
		p.printf("--[[ unrenderable expression %T ]]", n)
	}
}

// maxPrecedence forces a paren around any binary/unary operator expression
// used as the base of an index or call, matching Lua's own grammar
// restriction that a prefixexp's base must already be primary.
const maxPrecedence = 1 << 30

func (p *printer) tableConstructor(t *ast.TableConstructor) {
	p.printf("{")
	first := true
	for _, n := range t.Array.Contents {
		if !first {
			p.printf(", ")
		}
		first = false
		p.expr(n.(*ast.ArrayRecord).Value, 0)
	}
	for _, n := range t.Records.Contents {
		if !first {
			p.printf(", ")
		}
		first = false
		rec := n.(*ast.TableRecord)
		if key, ok := rec.Key.(*ast.Constant); ok && key.Kind == ast.ConstString && isIdentifierName(key.Value.(string)) {
			p.printf("%s = ", key.Value.(string))
		} else {
			p.printf("[")
			p.expr(rec.Key, 0)
			p.printf("] = ")
		}
		p.expr(rec.Value, 0)
	}
	p.printf("}")
}

func (p *printer) constant(c *ast.Constant) {
	switch c.Kind {
	case ast.ConstInteger:
		p.printf("%s", strconv.FormatInt(c.Value.(int64), 10))
	case ast.ConstFloat:
		p.printf("%s", strconv.FormatFloat(c.Value.(float64), 'g', -1, 64))
	case ast.ConstString:
		p.printf("%s", quoteLuaString(c.Value.(string)))
	case ast.ConstCData:
		p.printf("%v", c.Value)
	default:
		p.printf("%v", c.Value)
	}
}

// quoteLuaString re-quotes s with double quotes and Lua's own escape set.
// strconv.Quote is close but uses Go's escapes (\x escapes for non-ASCII,
// no \a); spec.md §6 asks for "standard escape sequences", so the control
// characters Lua names get their short form and everything else falls
// back to a numeric \ddd escape, matching the reference emitter's
// behavior for non-printable bytes.
func quoteLuaString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03d`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

func primitiveName(k ast.PrimitiveKind) string {
	switch k {
	case ast.PrimNil:
		return "nil"
	case ast.PrimTrue:
		return "true"
	case ast.PrimFalse:
		return "false"
	default:
		return "nil"
	}
}

func identName(id *ast.Identifier) string {
	if id.Name != "" {
		return id.Name
	}
	return fmt.Sprintf("slot%d", id.Slot)
}

// isIdentifierName reports whether s can be written as `.name` / `name =`
// instead of `["name"]`, matching Lua 5.1's identifier grammar.
func isIdentifierName(s string) bool {
	if s == "" || luaKeywords[s] {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true, "until": true,
	"while": true,
}
