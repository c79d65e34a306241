package builder_test

import (
	"testing"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/builder"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/stretchr/testify/require"
)

func opFor(t *testing.T, table *opcode.Table, name string) uint8 {
	t.Helper()
	for op := 0; op < 256; op++ {
		if e, ok := table.Lookup(uint8(op)); ok && e.Name == name {
			return uint8(op)
		}
	}
	t.Fatalf("opcode %q not found in table", name)
	return 0
}

func newCtx(t *testing.T) *opcode.VersionedContext {
	t.Helper()
	ctx, err := opcode.NewVersionedContext(opcode.Version20)
	require.NoError(t, err)
	return ctx
}

// findReturn scans every block the builder produced for one carrying a
// *ast.Return, returning the block and the statement, rather than assuming
// a particular block count or index.
func findReturn(t *testing.T, fn *ast.FunctionDefinition) (*ast.Block, *ast.Return) {
	t.Helper()
	for _, n := range fn.Body.Contents {
		blk := n.(*ast.Block)
		for _, s := range blk.Contents.Contents {
			if ret, ok := s.(*ast.Return); ok {
				return blk, ret
			}
		}
	}
	t.Fatal("no block contains a Return statement")
	return nil, nil
}

func TestBuildLiftsSimpleReturn(t *testing.T) {
	ctx := newCtx(t)
	table := ctx.Opcodes()

	proto := &rawdump.Prototype{
		FrameSize: 1,
		Numbers:   []rawdump.Number{{Kind: rawdump.NumberInt, Int: 7}},
		Instructions: []rawdump.Instruction{
			{Op: opFor(t, table, "KSHORT"), A: 0, D: 7},
			{Op: opFor(t, table, "RET1"), A: 0, D: 2},
		},
	}

	fn, err := builder.Build(ctx, proto, nil)
	require.NoError(t, err)

	blk, ret := findReturn(t, fn)

	// KSHORT lowers to its own Assignment statement, ahead of the Return;
	// folding it into the Return's operand is lang/slotworks' job, not the
	// builder's.
	require.Len(t, blk.Contents.Contents, 2)
	assign, ok := blk.Contents.Contents[0].(*ast.Assignment)
	require.True(t, ok, "KSHORT should lower to an Assignment")
	require.Len(t, assign.Destinations.Contents, 1)
	dest, ok := assign.Destinations.Contents[0].(*ast.Identifier)
	require.True(t, ok)
	require.Equal(t, ast.IdentSlot, dest.Kind)
	require.Equal(t, 0, dest.Slot)
	num, ok := assign.Expressions.Contents[0].(*ast.Constant)
	require.True(t, ok)
	require.Equal(t, int64(7), num.Value)

	require.Len(t, ret.Values.Contents, 1)
	read, ok := ret.Values.Contents[0].(*ast.Identifier)
	require.True(t, ok, "Return should read the bare slot, not the folded constant")
	require.Equal(t, ast.IdentSlot, read.Kind)
	require.Equal(t, 0, read.Slot)

	_, isEnd := blk.Warp.(*ast.EndWarp)
	require.True(t, isEnd, "the block ending in RET1 must warp to EndWarp")
}

func TestBuildSplitsBlocksOnJump(t *testing.T) {
	ctx := newCtx(t)
	table := ctx.Opcodes()

	// slot0 < slot1: JMP to the second RET0 on failure, fall through to the
	// first RET0 on success. Exercises that ISLT+JMP fuses into a
	// ConditionalWarp rather than two separate statements.
	proto := &rawdump.Prototype{
		FrameSize: 2,
		Instructions: []rawdump.Instruction{
			{Op: opFor(t, table, "ISLT"), A: 0, D: 1},
			{Op: opFor(t, table, "JMP"), A: 0, D: 0x8000 + 1},
			{Op: opFor(t, table, "RET0"), A: 0, D: 1},
			{Op: opFor(t, table, "RET0"), A: 0, D: 1},
		},
	}

	fn, err := builder.Build(ctx, proto, nil)
	require.NoError(t, err)
	require.NotEmpty(t, fn.Body.Contents)

	b0 := fn.Body.Contents[0].(*ast.Block)
	_, ok := b0.Warp.(*ast.ConditionalWarp)
	require.True(t, ok, "a comparison immediately followed by JMP should fuse into a ConditionalWarp")
}

func TestBuildResolvesFNEWAgainstBuiltChild(t *testing.T) {
	ctx := newCtx(t)
	table := ctx.Opcodes()

	child := ast.NewFunctionDefinition()

	proto := &rawdump.Prototype{
		FrameSize: 1,
		Constants: []rawdump.Constant{{Kind: rawdump.ConstChildProto}},
		Instructions: []rawdump.Instruction{
			{Op: opFor(t, table, "FNEW"), A: 0, D: 0},
			{Op: opFor(t, table, "RET1"), A: 0, D: 2},
		},
	}

	fn, err := builder.Build(ctx, proto, []*ast.FunctionDefinition{child})
	require.NoError(t, err)

	blk, ret := findReturn(t, fn)

	read, ok := ret.Values.Contents[0].(*ast.Identifier)
	require.True(t, ok, "Return should read the bare slot FNEW assigned into")
	require.Equal(t, ast.IdentSlot, read.Kind)

	var assign *ast.Assignment
	for _, s := range blk.Contents.Contents {
		if a, ok := s.(*ast.Assignment); ok {
			assign = a
			break
		}
	}
	require.NotNil(t, assign, "FNEW should lower to an Assignment")
	require.Same(t, child, assign.Expressions.Contents[0], "FNEW should bind the slot to the already-built child")
}
