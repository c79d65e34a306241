package luawriter_test

import (
	"testing"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/luawriter"
	"github.com/stretchr/testify/assert"
)

func local(name string) *ast.Identifier {
	id := ast.NewSlotIdentifier(0)
	id.Kind = ast.IdentLocal
	id.Name = name
	return id
}

func TestWriteLocalAssignment(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	a := ast.NewAssignment()
	a.Kind = ast.LocalDefinition
	a.Destinations.Contents = append(a.Destinations.Contents, local("x"))
	a.Expressions.Contents = append(a.Expressions.Contents, ast.NewConstant(ast.ConstInteger, int64(3)))
	fn.Body.Contents = append(fn.Body.Contents, a)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  local x = 3\nend", got)
}

func TestWriteIfElse(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	ifNode := ast.NewIf()
	ifNode.Expression = local("cond")
	ret1 := ast.NewReturn()
	ret1.Values.Contents = append(ret1.Values.Contents, ast.NewPrimitive(ast.PrimTrue))
	ifNode.Then.Contents = append(ifNode.Then.Contents, ret1)
	ret2 := ast.NewReturn()
	ret2.Values.Contents = append(ret2.Values.Contents, ast.NewPrimitive(ast.PrimFalse))
	ifNode.Else.Contents = append(ifNode.Else.Contents, ret2)
	fn.Body.Contents = append(fn.Body.Contents, ifNode)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  if cond then\n    return true\n  else\n    return false\n  end\nend", got)
}

func TestWriteBinaryOperatorPrecedence(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	// (1 + 2) * 3 needs parens; 1 + 2 * 3 does not.
	mul := ast.NewBinaryOperator(ast.OpMultiply,
		ast.NewBinaryOperator(ast.OpAdd, ast.NewConstant(ast.ConstInteger, int64(1)), ast.NewConstant(ast.ConstInteger, int64(2))),
		ast.NewConstant(ast.ConstInteger, int64(3)),
	)
	ret := ast.NewReturn()
	ret.Values.Contents = append(ret.Values.Contents, mul)
	fn.Body.Contents = append(fn.Body.Contents, ret)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  return (1 + 2) * 3\nend", got)
}

func TestWriteTableConstructorWithDotKey(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	tc := ast.NewTableConstructor()
	tc.Array.Contents = append(tc.Array.Contents, ast.NewArrayRecord(ast.NewConstant(ast.ConstInteger, int64(1))))
	tc.Records.Contents = append(tc.Records.Contents, ast.NewTableRecord(
		ast.NewConstant(ast.ConstString, "name"),
		ast.NewConstant(ast.ConstString, "x"),
	))
	ret := ast.NewReturn()
	ret.Values.Contents = append(ret.Values.Contents, tc)
	fn.Body.Contents = append(fn.Body.Contents, ret)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  return {1, name = \"x\"}\nend", got)
}

func TestWriteGetItemDotSugar(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	g := ast.NewGetItem(ast.NewBuiltinIdentifier("t"), ast.NewConstant(ast.ConstString, "field"))
	ret := ast.NewReturn()
	ret.Values.Contents = append(ret.Values.Contents, g)
	fn.Body.Contents = append(fn.Body.Contents, ret)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  return t.field\nend", got)
}

func TestWriteNumericForAndBreak(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	nf := ast.NewNumericFor()
	nf.Variable = local("i")
	nf.Expressions.Contents = []ast.Node{
		ast.NewConstant(ast.ConstInteger, int64(1)),
		ast.NewConstant(ast.ConstInteger, int64(10)),
	}
	nf.Body.Contents = append(nf.Body.Contents, ast.NewBreak())
	fn.Body.Contents = append(fn.Body.Contents, nf)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  for i = 1, 10 do\n    break\n  end\nend", got)
}

func TestWriteStringEscaping(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	ret := ast.NewReturn()
	ret.Values.Contents = append(ret.Values.Contents, ast.NewConstant(ast.ConstString, "a\nb\"c"))
	fn.Body.Contents = append(fn.Body.Contents, ret)

	got := luawriter.Sprint(fn)
	assert.Equal(t, "function()\n  return \"a\\nb\\\"c\"\nend", got)
}
