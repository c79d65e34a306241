// Package cliapp implements C12: the command-line driver. It wires
// argument parsing (github.com/mna/mainer, the same struct-tag/reflect
// dispatch the teacher's own CLI uses) to lang/decompile for a single
// file and to internal/batch for a directory tree.
package cliapp

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/hashicorp/go-hclog"
	"github.com/mna/mainer"
)

const binName = "ljd"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <in> [<out>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <in> [<out>]
       %[1]s -h|--help
       %[1]s -V|--version

LuaJIT bytecode to Lua 5.1 source decompiler.

The <command> can be one of:
       decompile <in> <out>     Decompile a bytecode file, or every file
                                 under a directory, to Lua source.

Valid flag options are:
       -h --help                 Show this help and exit.
       -V --version               Print version and exit.
       --bc-version N             LuaJIT bytecode version to expect, 20
                                  or 21 (default 21).
       --workers N                Number of files to decompile
                                  concurrently when <in> is a directory
                                  (default $LJD_WORKERS, or the number
                                  of CPUs when that is unset or 0).
       --log-level LEVEL          Logging verbosity: trace, debug, info,
                                  warn, error (default warn).
       --rename-ext EXT           Output file extension, including the
                                  leading dot (default .lua).
`, binName)
)

// Cmd is the flag-tagged root command; github.com/mna/mainer populates its
// exported fields from argv and environment, the same pattern the
// teacher's internal/maincmd.Cmd uses.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"V,version"`

	BCVersion int    `flag:"bc-version"`
	Workers   int    `flag:"workers"`
	LogLevel  string `flag:"log-level"`
	RenameExt string `flag:"rename-ext"`

	args  []string
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }
func (c *Cmd) SetFlags(map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if c.BCVersion == 0 {
		c.BCVersion = int(opcode.Version21)
	}
	workers, err := resolveWorkers(c.Workers)
	if err != nil {
		return fmt.Errorf("reading LJD_WORKERS: %w", err)
	}
	c.Workers = workers
	if c.RenameExt == "" {
		c.RenameExt = ".lua"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}

	if len(c.args) == 0 {
		return fmt.Errorf("no command specified")
	}
	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: an input path is required", cmdName)
	}
	return nil
}

func (c *Cmd) logger(stdio mainer.Stdio) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   binName,
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: stdio.Stderr,
	})
}

func (c *Cmd) opcodeContext() (*opcode.VersionedContext, error) {
	return opcode.NewVersionedContext(opcode.Version(c.BCVersion))
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds discovers exported *Cmd methods shaped like a subcommand
// handler, the same reflection-based dispatch internal/maincmd uses so
// adding a command never touches the Main/Validate plumbing.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)
	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
