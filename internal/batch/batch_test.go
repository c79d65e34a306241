package batch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AzurLaneTools/ljd/internal/batch"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRename(t *testing.T) {
	assert.Equal(t, "foo.lua", batch.DefaultRename("foo.ljbc"))
	assert.Equal(t, "foo.lua", batch.DefaultRename("foo.dat"))
	assert.Equal(t, ".lua", batch.DefaultRename(""))
}

func TestFailed(t *testing.T) {
	assert.False(t, batch.Failed(nil))
	assert.False(t, batch.Failed([]batch.Result{{Path: "a"}, {Path: "b"}}))
	assert.True(t, batch.Failed([]batch.Result{{Path: "a"}, {Path: "b", Err: assertErr{}}}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

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

// minimalDump hand-assembles the smallest stripped LuaJIT 2.1 dump that
// decodes to a single top-level prototype returning the constant 7 — the
// same "return 7" program lang/builder's own tests exercise, but as raw
// wire bytes here so this test can drive the whole parse-through-write
// pipeline instead of starting from an already-parsed Prototype.
func minimalDump(t *testing.T, ctx *opcode.VersionedContext) []byte {
	t.Helper()
	table := ctx.Opcodes()

	var buf []byte
	buf = append(buf, rawdump.Magic[:]...)
	buf = append(buf, 2)                  // version byte, not interpreted by Parse
	buf = append(buf, rawdump.FlagStripped) // no chunk name, no debug section

	buf = append(buf, 1) // sizeTag: nonzero, only its zero-ness is checked

	buf = append(buf, 0) // Prototype.Flags
	buf = append(buf, 0) // NumParams
	buf = append(buf, 1) // FrameSize
	buf = append(buf, 0) // NumUpvalues
	buf = append(buf, 0) // numConsts
	buf = append(buf, 0) // numNumbers
	buf = append(buf, 2) // numInstructions

	kshort := opFor(t, table, "KSHORT")
	ret1 := opFor(t, table, "RET1")
	buf = append(buf, kshort, 0, 7, 0) // KSHORT A=0 D=7
	buf = append(buf, ret1, 0, 2, 0)   // RET1 A=0 D=2

	buf = append(buf, 0) // terminating zero-length sizeTag
	return buf
}

func TestRunDecompilesDirectoryTree(t *testing.T) {
	ctx, err := opcode.NewVersionedContext(opcode.Version21)
	require.NoError(t, err)

	inDir := t.TempDir()
	outDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(inDir, "sub"), 0o755))
	dump := minimalDump(t, ctx)
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.ljbc"), dump, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "sub", "b.ljbc"), dump, 0o644))

	results, err := batch.Run(context.Background(), ctx, inDir, outDir, batch.Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, batch.Failed(results))

	got, err := os.ReadFile(filepath.Join(outDir, "a.lua"))
	require.NoError(t, err)
	assert.Equal(t, "function()\n  return 7\nend", string(got[:len(got)-1]), "Run appends exactly one trailing newline")

	_, err = os.ReadFile(filepath.Join(outDir, "sub", "b.lua"))
	require.NoError(t, err, "the input tree's subdirectory must be mirrored under outDir")
}

func TestRunToleratesOneBadFileAmongMany(t *testing.T) {
	ctx, err := opcode.NewVersionedContext(opcode.Version21)
	require.NoError(t, err)

	inDir := t.TempDir()
	outDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(inDir, "good.ljbc"), minimalDump(t, ctx), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "bad.ljbc"), []byte("not a dump"), 0o644))

	results, err := batch.Run(context.Background(), ctx, inDir, outDir, batch.Options{Workers: 2})
	require.NoError(t, err, "Run itself must not fail just because one file did")
	assert.True(t, batch.Failed(results))

	_, err = os.ReadFile(filepath.Join(outDir, "good.lua"))
	assert.NoError(t, err, "a sibling failure must not stop the good file from being written")
}
