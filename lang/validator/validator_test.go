package validator_test

import (
	"testing"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localIdent(name string) *ast.Identifier {
	id := ast.NewSlotIdentifier(0)
	id.Kind = ast.IdentLocal
	id.Name = name
	return id
}

func callStmt(fn ast.Node, args ...ast.Node) *ast.FunctionCall {
	c := ast.NewFunctionCall()
	c.Function = fn
	c.Arguments.Contents = append(c.Arguments.Contents, args...)
	return c
}

func localDef(name string, expr ast.Node) *ast.Assignment {
	a := ast.NewAssignment()
	a.Kind = ast.LocalDefinition
	a.Destinations.Contents = append(a.Destinations.Contents, localIdent(name))
	a.Expressions.Contents = append(a.Expressions.Contents, expr)
	return a
}

func warpedFn(blocks ...*ast.Block) *ast.FunctionDefinition {
	fn := ast.NewFunctionDefinition()
	for _, b := range blocks {
		fn.Body.Contents = append(fn.Body.Contents, b)
	}
	return fn
}

func TestValidateWarpedAcceptsWellFormedGraph(t *testing.T) {
	b0 := ast.NewBlock(0)
	b0.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, 1)
	b1 := ast.NewBlock(1)
	b1.Warp = ast.NewEndWarp()

	assert.NoError(t, validator.Validate(warpedFn(b0, b1), true))
}

func TestValidateWarpedRejectsOutOfRangeTarget(t *testing.T) {
	b0 := ast.NewBlock(0)
	b0.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, 5)

	err := validator.Validate(warpedFn(b0), true)
	require.Error(t, err)
	var se *validator.StructuralError
	require.ErrorAs(t, err, &se)
}

func TestValidateWarpedRejectsMissingWarp(t *testing.T) {
	b0 := ast.NewBlock(0)

	err := validator.Validate(warpedFn(b0), true)
	require.Error(t, err)
}

func TestValidateWarpedRejectsWarpAsStatement(t *testing.T) {
	b0 := ast.NewBlock(0)
	b0.Warp = ast.NewEndWarp()
	b0.Contents.Contents = append(b0.Contents.Contents, ast.NewEndWarp())

	err := validator.Validate(warpedFn(b0), true)
	require.Error(t, err)
}

func TestValidateStructuredAcceptsWellFormedTree(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	def := localDef("x", ast.NewConstant(ast.ConstInteger, int64(1)))
	use := callStmt(ast.NewBuiltinIdentifier("print"), localIdent("x"))
	ret := ast.NewReturn()
	fn.Body.Contents = append(fn.Body.Contents, def, use, ret)

	assert.NoError(t, validator.Validate(fn, false))
}

func TestValidateStructuredRejectsUseBeforeDefinition(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	use := callStmt(ast.NewBuiltinIdentifier("print"), localIdent("x"))
	def := localDef("x", ast.NewConstant(ast.ConstInteger, int64(1)))
	fn.Body.Contents = append(fn.Body.Contents, use, def)

	err := validator.Validate(fn, false)
	require.Error(t, err)
}

func TestValidateStructuredRejectsBreakOutsideLoop(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	fn.Body.Contents = append(fn.Body.Contents, ast.NewBreak())

	err := validator.Validate(fn, false)
	require.Error(t, err)
}

func TestValidateStructuredAcceptsBreakInsideLoop(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	w := ast.NewWhile()
	w.Expression = ast.NewPrimitive(ast.PrimTrue)
	w.Body.Contents = append(w.Body.Contents, ast.NewBreak())
	fn.Body.Contents = append(fn.Body.Contents, w)

	assert.NoError(t, validator.Validate(fn, false))
}

func TestValidateStructuredRejectsReturnNotLast(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	ret := ast.NewReturn()
	trailing := callStmt(ast.NewBuiltinIdentifier("print"))
	fn.Body.Contents = append(fn.Body.Contents, ret, trailing)

	err := validator.Validate(fn, false)
	require.Error(t, err)
}

func TestValidateStructuredRejectsSurvivingBlock(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	fn.Body.Contents = append(fn.Body.Contents, ast.NewBlock(0))

	err := validator.Validate(fn, false)
	require.Error(t, err)
}

func TestValidateStructuredNumericForDefinesLoopVariable(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	nf := ast.NewNumericFor()
	nf.Variable = localIdent("i")
	nf.Expressions.Contents = []ast.Node{
		ast.NewConstant(ast.ConstInteger, int64(1)),
		ast.NewConstant(ast.ConstInteger, int64(10)),
	}
	nf.Body.Contents = append(nf.Body.Contents, callStmt(ast.NewBuiltinIdentifier("print"), localIdent("i")))
	fn.Body.Contents = append(fn.Body.Contents, nf)

	assert.NoError(t, validator.Validate(fn, false))
}

func TestValidateStructuredIfBranchesDoNotLeakDefinitions(t *testing.T) {
	fn := ast.NewFunctionDefinition()
	ifNode := ast.NewIf()
	ifNode.Expression = ast.NewPrimitive(ast.PrimTrue)
	ifNode.Then.Contents = append(ifNode.Then.Contents, localDef("x", ast.NewConstant(ast.ConstInteger, int64(1))))
	fn.Body.Contents = append(fn.Body.Contents,
		ifNode,
		callStmt(ast.NewBuiltinIdentifier("print"), localIdent("x")),
	)

	err := validator.Validate(fn, false)
	require.Error(t, err, "a local defined inside one branch must not be visible after the if")
}
