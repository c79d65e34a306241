// Package batch implements C13: walking an input directory tree, mirroring
// it into an output tree, and decompiling every file found with a bounded
// worker pool. Per spec.md §6's external interface description, a failure
// on one file is logged and does not stop the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AzurLaneTools/ljd/lang/decompile"
	"github.com/AzurLaneTools/ljd/lang/luawriter"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
)

// Result reports the outcome of decompiling a single file, keyed by its
// path relative to the batch's input root.
type Result struct {
	Path string
	Err  error
}

// RenameFunc maps an input file's base name to an output base name; the
// default appends/replaces the extension with ".lua".
type RenameFunc func(name string) string

// DefaultRename replaces name's extension with ".lua".
func DefaultRename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".lua"
}

// Options configures Run.
type Options struct {
	Workers int // <= 0 means 1
	Rename  RenameFunc
	Logger  hclog.Logger
}

// Run walks inDir, decompiles every regular file it finds against ctx's
// selected opcode version, and writes the Lua source for each to the
// mirrored path under outDir. Up to opts.Workers files are decompiled
// concurrently; each worker only touches its own file, so no mutable
// state is shared beyond ctx's read-only opcode table (spec.md §5).
func Run(pctx context.Context, ctx *opcode.VersionedContext, inDir, outDir string, opts Options) ([]Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	rename := opts.Rename
	if rename == nil {
		rename = DefaultRename
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var relPaths []string
	err := filepath.WalkDir(inDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(inDir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: walking %s: %w", inDir, err)
	}

	results := make([]Result, len(relPaths))
	grp, grpCtx := errgroup.WithContext(pctx)
	grp.SetLimit(workers)

	for i, rel := range relPaths {
		i, rel := i, rel
		results[i] = Result{Path: rel}
		grp.Go(func() error {
			if grpCtx.Err() != nil {
				return nil
			}
			outRel := filepath.Join(filepath.Dir(rel), rename(filepath.Base(rel)))
			err := decompileOne(ctx, filepath.Join(inDir, rel), filepath.Join(outDir, outRel))
			if err != nil {
				logger.Error("decompile failed", "path", rel, "error", err)
			} else {
				logger.Debug("decompile succeeded", "path", rel)
			}
			results[i].Err = err
			return nil // per-file errors never abort the batch
		})
	}
	if err := grp.Wait(); err != nil {
		return results, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func decompileOne(ctx *opcode.VersionedContext, inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	fn, err := decompile.File(in, ctx, nil)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := luawriter.Write(out, fn); err != nil {
		return err
	}
	_, err = io.WriteString(out, "\n")
	return err
}

// Failed reports whether any result in results recorded an error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
