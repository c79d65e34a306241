package cliapp_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/AzurLaneTools/ljd/internal/cliapp"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
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

// minimalDump mirrors internal/batch's helper of the same purpose: the
// smallest stripped LuaJIT 2.1 dump that decodes to a single top-level
// prototype returning the constant 7.
func minimalDump(t *testing.T) []byte {
	t.Helper()
	ctx, err := opcode.NewVersionedContext(opcode.Version21)
	require.NoError(t, err)
	table := ctx.Opcodes()

	var buf []byte
	buf = append(buf, rawdump.Magic[:]...)
	buf = append(buf, 2)
	buf = append(buf, rawdump.FlagStripped)
	buf = append(buf, 1) // sizeTag

	buf = append(buf, 0) // Flags
	buf = append(buf, 0) // NumParams
	buf = append(buf, 1) // FrameSize
	buf = append(buf, 0) // NumUpvalues
	buf = append(buf, 0) // numConsts
	buf = append(buf, 0) // numNumbers
	buf = append(buf, 2) // numInstructions

	kshort := opFor(t, table, "KSHORT")
	ret1 := opFor(t, table, "RET1")
	buf = append(buf, kshort, 0, 7, 0)
	buf = append(buf, ret1, 0, 2, 0)

	buf = append(buf, 0) // terminating sizeTag
	return buf
}

func newStdio() (mainer.Stdio, *bytes.Buffer, *bytes.Buffer) {
	var out, errb bytes.Buffer
	return mainer.Stdio{Stdout: &out, Stderr: &errb}, &out, &errb
}

func TestMainHelp(t *testing.T) {
	c := &cliapp.Cmd{}
	stdio, out, _ := newStdio()
	code := c.Main([]string{"ljd", "--help"}, stdio)
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "usage: ljd")
}

func TestMainVersion(t *testing.T) {
	c := &cliapp.Cmd{BuildVersion: "1.2.3", BuildDate: "2026-01-01"}
	stdio, out, _ := newStdio()
	code := c.Main([]string{"ljd", "--version"}, stdio)
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out.String(), "1.2.3")
}

func TestMainNoCommandIsInvalidArgs(t *testing.T) {
	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd"}, stdio)
	assert.Equal(t, mainer.InvalidArgs, code)
	assert.NotEmpty(t, errb.String())
}

func TestMainUnknownCommandIsInvalidArgs(t *testing.T) {
	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd", "bogus", "in"}, stdio)
	assert.Equal(t, mainer.InvalidArgs, code)
	assert.NotEmpty(t, errb.String())
}

func TestMainDecompileSingleFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.ljbc")
	out := filepath.Join(dir, "a.lua")
	require.NoError(t, os.WriteFile(in, minimalDump(t), 0o644))

	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd", "decompile", in, out}, stdio)
	assert.Equal(t, mainer.Success, code, "stderr: %s", errb.String())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "function()\n  return 7\nend", string(got))
}

func TestMainDecompileSingleFileToStdout(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.ljbc")
	require.NoError(t, os.WriteFile(in, minimalDump(t), 0o644))

	c := &cliapp.Cmd{}
	stdio, out, errb := newStdio()
	code := c.Main([]string{"ljd", "decompile", in}, stdio)
	assert.Equal(t, mainer.Success, code, "stderr: %s", errb.String())
	assert.Equal(t, "function()\n  return 7\nend", out.String())
}

func TestMainDecompileDirectoryTree(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.ljbc"), minimalDump(t), 0o644))

	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd", "decompile", "--workers", "2", inDir, outDir}, stdio)
	assert.Equal(t, mainer.Success, code, "stderr: %s", errb.String())

	got, err := os.ReadFile(filepath.Join(outDir, "a.lua"))
	require.NoError(t, err)
	assert.Equal(t, "function()\n  return 7\nend\n", string(got))
}

func TestMainDecompileDirectoryWithoutOutputIsFailure(t *testing.T) {
	inDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "a.ljbc"), minimalDump(t), 0o644))

	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd", "decompile", inDir}, stdio)
	assert.Equal(t, mainer.Failure, code)
	assert.Contains(t, errb.String(), "output directory is required")
}

func TestMainDecompileMissingInputIsFailure(t *testing.T) {
	c := &cliapp.Cmd{}
	stdio, _, errb := newStdio()
	code := c.Main([]string{"ljd", "decompile", filepath.Join(t.TempDir(), "missing.ljbc")}, stdio)
	assert.Equal(t, mainer.Failure, code)
	assert.NotEmpty(t, errb.String())
}
