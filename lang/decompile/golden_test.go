package decompile_test

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/AzurLaneTools/ljd/internal/filetest"
	"github.com/AzurLaneTools/ljd/lang/decompile"
	"github.com/AzurLaneTools/ljd/lang/luawriter"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/stretchr/testify/require"
)

var testUpdateGoldenTests = flag.Bool("test.update-golden-tests", false, "If set, replaces decompile golden files with actual output.")

// goldenCases maps a case name to the already-parsed prototype it decompiles.
// The matching file under testdata/in is just a marker that drives
// filetest.SourceFiles' enumeration and gives the case a name; there's no
// reason to round-trip through the wire format here when lang/decompile
// takes a *rawdump.Prototype directly.
func goldenCases(t *testing.T, ctx *opcode.VersionedContext) map[string]*rawdump.Prototype {
	table := ctx.Opcodes()
	op := func(name string) uint8 { return opFor(t, table, name) }

	child := &rawdump.Prototype{
		FrameSize: 1,
		Instructions: []rawdump.Instruction{
			{Op: op("KSHORT"), A: 0, D: 1},
			{Op: op("RET1"), A: 0, D: 2},
		},
	}

	return map[string]*rawdump.Prototype{
		"simple_return": {
			FrameSize: 1,
			Instructions: []rawdump.Instruction{
				{Op: op("KSHORT"), A: 0, D: 7},
				{Op: op("RET1"), A: 0, D: 2},
			},
		},
		"nested_closure": {
			FrameSize:    1,
			Constants:    []rawdump.Constant{{Kind: rawdump.ConstChildProto}},
			Protos:       []*rawdump.Prototype{child},
			Instructions: []rawdump.Instruction{
				{Op: op("FNEW"), A: 0, D: 0},
				{Op: op("RET1"), A: 0, D: 2},
			},
		},
		// local x = 1 + 2 * 3 — a chain of arithmetic feeding a single
		// slot, exercising VN/NV operand forms and slotworks folding the
		// whole chain back into the Return's operand.
		"local_definition": {
			FrameSize: 3,
			Instructions: []rawdump.Instruction{
				{Op: op("KSHORT"), A: 1, D: 2},
				{Op: op("KSHORT"), A: 2, D: 3},
				{Op: op("MULVV"), A: 1, B: 1, C: 2},
				{Op: op("KSHORT"), A: 2, D: 1},
				{Op: op("ADDVV"), A: 0, B: 2, C: 1},
				{Op: op("RET1"), A: 0, D: 2},
			},
		},
		// f() g() — two calls whose results are never read, each
		// demoted from an Assignment back to a bare FunctionCall
		// statement by slotworks.
		"multi_assign": {
			FrameSize: 2,
			Constants: []rawdump.Constant{{Kind: rawdump.ConstString, Str: "f"}, {Kind: rawdump.ConstString, Str: "g"}},
			Instructions: []rawdump.Instruction{
				{Op: op("GGET"), A: 0, D: 0},
				{Op: op("CALL"), A: 0, B: 1, C: 1},
				{Op: op("GGET"), A: 1, D: 1},
				{Op: op("CALL"), A: 1, B: 1, C: 1},
				{Op: op("RET0"), A: 0, D: 1},
			},
		},
		// if a < b then x = 1 else x = 2 end; return x — a two-way branch
		// that reconverges before the Return, exercising reduceIfElse's
		// tSimple&&fSimple merge rather than either break-out arm.
		"if_return": {
			NumParams: 2,
			FrameSize: 3,
			Instructions: []rawdump.Instruction{
				{Op: op("ISLT"), A: 0, D: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 + 2},
				{Op: op("KSHORT"), A: 2, D: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 + 2},
				{Op: op("KSHORT"), A: 2, D: 2},
				{Op: op("JMP"), A: 0, D: 0x8000 + 0},
				{Op: op("RET1"), A: 2, D: 2},
			},
		},
		// for i = a, b, c do f(i) end — FORI/JMP back-edge folded by
		// reduceNumericFor.
		"numeric_for": {
			FrameSize: 6,
			Constants: []rawdump.Constant{{Kind: rawdump.ConstString, Str: "f"}},
			Instructions: []rawdump.Instruction{
				{Op: op("FORI"), A: 0, D: 0x8000 + 4},
				{Op: op("GGET"), A: 4, D: 0},
				{Op: op("MOV"), A: 5, D: 3},
				{Op: op("CALL"), A: 4, B: 2, C: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 - 5},
				{Op: op("RET0"), A: 0, D: 1},
			},
		},
		// for k in a, b, c do print(k) end — same shape as numeric_for
		// but through ITERC, exercising the generic-for loop variables
		// the builder's FamilyIterator case binds off B's nresults+1.
		"iterator_for": {
			FrameSize: 6,
			Constants: []rawdump.Constant{{Kind: rawdump.ConstString, Str: "print"}},
			Instructions: []rawdump.Instruction{
				{Op: op("ITERC"), A: 0, B: 2, C: 3, D: 0x8000 + 4},
				{Op: op("GGET"), A: 4, D: 0},
				{Op: op("MOV"), A: 5, D: 3},
				{Op: op("CALL"), A: 4, B: 2, C: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 - 5},
				{Op: op("RET0"), A: 0, D: 1},
			},
		},
		// while a < b do if c < d then break end; step() end — a
		// conditional loop with a guarded break, the same block shape
		// lang/unwarp's TestUnwarpBreakInsideWhile covers at the Warp
		// level: header branches to body-or-exit, body branches to
		// break-to-exit-or-continue, continue jumps back to header.
		"while_break": {
			FrameSize: 5,
			Constants: []rawdump.Constant{{Kind: rawdump.ConstString, Str: "step"}},
			Instructions: []rawdump.Instruction{
				{Op: op("ISLT"), A: 0, D: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 + 2},
				{Op: op("ISLT"), A: 2, D: 3},
				{Op: op("JMP"), A: 0, D: 0x8000 + 1},
				{Op: op("RET0"), A: 0, D: 1},
				{Op: op("GGET"), A: 4, D: 0},
				{Op: op("CALL"), A: 4, B: 1, C: 1},
				{Op: op("JMP"), A: 0, D: 0x8000 - 8},
			},
		},
	}
}

func TestDecompileGolden(t *testing.T) {
	ctx := newCtx(t)
	cases := goldenCases(t, ctx)

	srcDir := filepath.Join("testdata", "in")
	resultDir := filepath.Join("testdata", "out")
	for _, fi := range filetest.SourceFiles(t, srcDir, ".case") {
		fi := fi
		key := fi.Name()[:len(fi.Name())-len(".case")]
		t.Run(key, func(t *testing.T) {
			proto, ok := cases[key]
			require.True(t, ok, "no in-test prototype registered for golden case %q", key)

			fn, err := decompile.Prototype(ctx, proto, nil)
			require.NoError(t, err)
			require.Nil(t, fn.Error)

			got := luawriter.Sprint(fn)
			filetest.DiffOutput(t, fi, got, resultDir, testUpdateGoldenTests)
		})
	}
}
