package slotworks_test

import (
	"testing"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/slotworks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slotAssign builds `slotN = expr` as a NormalAssignment statement.
func slotAssign(n int, expr ast.Node) *ast.Assignment {
	a := ast.NewAssignment()
	a.Kind = ast.NormalAssignment
	a.Destinations.Contents = append(a.Destinations.Contents, ast.NewSlotIdentifier(n))
	a.Expressions.Contents = append(a.Expressions.Contents, expr)
	return a
}

func callStmt(fn ast.Node, args ...ast.Node) *ast.FunctionCall {
	c := ast.NewFunctionCall()
	c.Function = fn
	c.Arguments.Contents = append(c.Arguments.Contents, args...)
	return c
}

func oneBlockFunction(stmts ...ast.Node) *ast.FunctionDefinition {
	fn := ast.NewFunctionDefinition()
	blk := ast.NewBlock(0)
	blk.Contents.Contents = append(blk.Contents.Contents, stmts...)
	blk.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, 1)
	fn.Body.Contents = append(fn.Body.Contents, blk)
	return fn
}

func TestEliminateTemporaryFusesSingleUse(t *testing.T) {
	sum := ast.NewBinaryOperator(ast.OpAdd, ast.NewSlotIdentifier(0), ast.NewSlotIdentifier(1))
	def := slotAssign(2, sum)
	use := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(2))

	fn := oneBlockFunction(def, use)
	slotworks.EliminateTemporary(fn, true)

	blk := fn.Body.Contents[0].(*ast.Block)
	require.Len(t, blk.Contents.Contents, 1, "the defining assignment should have been swept")

	call := blk.Contents.Contents[0].(*ast.FunctionCall)
	arg, ok := call.Arguments.Contents[0].(*ast.BinaryOperator)
	require.True(t, ok, "the use should now hold the substituted expression")
	assert.Equal(t, ast.OpAdd, arg.Op)
}

func TestEliminateTemporarySkipsMultipleUses(t *testing.T) {
	def := slotAssign(2, ast.NewConstant(ast.ConstInteger, int64(7)))
	use1 := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(2))
	use2 := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(2))

	fn := oneBlockFunction(def, use1, use2)
	slotworks.EliminateTemporary(fn, false)

	blk := fn.Body.Contents[0].(*ast.Block)
	require.Len(t, blk.Contents.Contents, 3, "a slot read twice must not be fused away")
}

func TestEliminateTemporarySkipsAliasedReadAcrossCall(t *testing.T) {
	get := ast.NewGetItem(ast.NewBuiltinIdentifier("t"), ast.NewConstant(ast.ConstString, "k"))
	def := slotAssign(2, get)
	sideEffect := callStmt(ast.NewBuiltinIdentifier("mutate"))
	use := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(2))

	fn := oneBlockFunction(def, sideEffect, use)
	slotworks.EliminateTemporary(fn, false)

	blk := fn.Body.Contents[0].(*ast.Block)
	require.Len(t, blk.Contents.Contents, 3, "a table read must survive an intervening call that could invalidate it")
}

func TestEliminateTemporaryIsIdempotent(t *testing.T) {
	sum := ast.NewBinaryOperator(ast.OpAdd, ast.NewSlotIdentifier(0), ast.NewSlotIdentifier(1))
	def := slotAssign(2, sum)
	use := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(2))

	fn := oneBlockFunction(def, use)
	slotworks.EliminateTemporary(fn, true)
	before := ast.Sprint(fn.Body.Contents[0].(*ast.Block))

	slotworks.EliminateTemporary(fn, true)
	after := ast.Sprint(fn.Body.Contents[0].(*ast.Block))

	assert.Equal(t, before, after, "a second pass at fixpoint must not change the tree")
}

func TestEliminateTemporaryDemotesUnusedCall(t *testing.T) {
	call := callStmt(ast.NewBuiltinIdentifier("f"))
	def := slotAssign(0, call)

	fn := oneBlockFunction(def)
	slotworks.EliminateTemporary(fn, false)

	blk := fn.Body.Contents[0].(*ast.Block)
	require.Len(t, blk.Contents.Contents, 1, "the unused call must survive as a bare statement, not vanish")
	_, ok := blk.Contents.Contents[0].(*ast.FunctionCall)
	require.True(t, ok, "an Assignment whose slot is never read demotes back to the bare call")
}

func TestEliminateTemporaryKeepsUnusedNonCallAssignment(t *testing.T) {
	def := slotAssign(0, ast.NewConstant(ast.ConstInteger, int64(7)))

	fn := oneBlockFunction(def)
	slotworks.EliminateTemporary(fn, false)

	blk := fn.Body.Contents[0].(*ast.Block)
	require.Len(t, blk.Contents.Contents, 1, "a pure unused assignment is left in place, not swept")
	_, ok := blk.Contents.Contents[0].(*ast.Assignment)
	require.True(t, ok, "only a FunctionCall demotes; a bare constant assignment is left for a later dead-store pass")
}

func TestIdentifySlotsDistinguishesDisjointLifetimes(t *testing.T) {
	// Each definition is read twice, which blocks fusion (spec.md §4.6
	// step 2 requires exactly one use) so both Assignments survive for
	// identify to number.
	first := slotAssign(3, ast.NewConstant(ast.ConstInteger, int64(1)))
	firstUseA := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(3))
	firstUseB := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(3))
	second := slotAssign(3, ast.NewConstant(ast.ConstInteger, int64(2)))
	secondUseA := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(3))
	secondUseB := callStmt(ast.NewBuiltinIdentifier("print"), ast.NewSlotIdentifier(3))

	fn := oneBlockFunction(first, firstUseA, firstUseB, second, secondUseA, secondUseB)

	slotworks.EliminateTemporary(fn, true)

	firstID := first.Destinations.Contents[0].(*ast.Identifier).ID
	secondID := second.Destinations.Contents[0].(*ast.Identifier).ID
	assert.NotEqual(t, firstID, secondID, "disjoint lifetimes of the same slot must not share an id")

	firstReadID := firstUseA.Arguments.Contents[0].(*ast.Identifier).ID
	secondReadID := secondUseA.Arguments.Contents[0].(*ast.Identifier).ID
	assert.Equal(t, firstID, firstReadID, "a read before the redefinition must carry the first lifetime's id")
	assert.Equal(t, secondID, secondReadID, "a read after the redefinition must carry the second lifetime's id")
}
