package cliapp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AzurLaneTools/ljd/internal/batch"
	"github.com/AzurLaneTools/ljd/lang/decompile"
	"github.com/AzurLaneTools/ljd/lang/luawriter"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/mna/mainer"
)

// Decompile implements the `decompile <in> [<out>]` command: a single
// bytecode file goes straight through lang/decompile to stdout or <out>;
// a directory goes through internal/batch and mirrors into <out>.
func (c *Cmd) Decompile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	in := args[0]
	out := ""
	if len(args) > 1 {
		out = args[1]
	}

	logger := c.logger(stdio)
	octx, err := c.opcodeContext()
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	info, err := os.Stat(in)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	if !info.IsDir() {
		return decompileFile(octx, stdio, in, out)
	}

	if out == "" {
		err := fmt.Errorf("decompile: an output directory is required when <in> is a directory")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	results, err := batch.Run(ctx, octx, in, out, batch.Options{
		Workers: c.Workers,
		Rename:  renameWithExt(c.RenameExt),
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(stdio.Stderr, "FAILED %s: %s\n", r.Path, r.Err)
		}
	}
	if batch.Failed(results) {
		return fmt.Errorf("decompile: %d file(s) failed", countFailed(results))
	}
	return nil
}

func renameWithExt(ext string) batch.RenameFunc {
	return func(name string) string {
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
			name = name[:dot]
		}
		return name + ext
	}
}

func countFailed(results []batch.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func decompileFile(octx *opcode.VersionedContext, stdio mainer.Stdio, in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	defer f.Close()

	fn, err := decompile.File(f, octx, nil)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	w := stdio.Stdout
	if out != "" {
		outFile, err := os.Create(out)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
		defer outFile.Close()
		w = outFile
	}
	return luawriter.Write(w, fn)
}
