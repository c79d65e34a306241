// Package decompile drives the full pipeline (C1-C11) from a parsed
// rawdump.Prototype tree to a structured ast.FunctionDefinition tree ready
// for lang/luawriter: build, validate, resolve locals, eliminate
// temporaries, unwarp, mutate, validate again. It is the orchestration
// layer spec.md §7 describes error classification for.
package decompile

import (
	"fmt"
	"io"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/builder"
	"github.com/AzurLaneTools/ljd/lang/locals"
	"github.com/AzurLaneTools/ljd/lang/mutator"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/AzurLaneTools/ljd/lang/slotworks"
	"github.com/AzurLaneTools/ljd/lang/unwarp"
	"github.com/AzurLaneTools/ljd/lang/validator"
	"github.com/hashicorp/go-hclog"
)

// File parses src as a complete LuaJIT dump and decompiles its top-level
// chunk (and, transitively, every prototype it closes over) into one
// ast.FunctionDefinition tree. logger may be nil, in which case a no-op
// logger is used.
func File(src io.Reader, ctx *opcode.VersionedContext, logger hclog.Logger) (*ast.FunctionDefinition, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	_, protos, err := rawdump.Parse(src, ctx)
	if err != nil {
		return nil, fmt.Errorf("decompile: %w", err)
	}
	if len(protos) == 0 {
		return nil, fmt.Errorf("decompile: dump contained no prototypes")
	}
	// rawdump.Parse links every prototype's children via Protos; the last
	// entry in its post-order list is always the top-level chunk.
	root := protos[len(protos)-1]
	return Prototype(ctx, root, logger)
}

// Prototype decompiles one prototype and, recursively, every child it
// closes over (child before parent, since the parent's FNEW lifting needs
// the child's finished FunctionDefinition on hand). A Lift error confined
// to one prototype does not abort its siblings: it is recorded on that
// prototype's FunctionDefinition.Error and an empty body is returned for
// it, per spec.md §7. A DumpFormat, Structural, or IrreducibleCFG error is
// fatal for the whole call and propagates to the caller.
func Prototype(ctx *opcode.VersionedContext, proto *rawdump.Prototype, logger hclog.Logger) (*ast.FunctionDefinition, error) {
	children := make([]*ast.FunctionDefinition, 0, len(proto.Protos))
	for _, child := range proto.Protos {
		built, err := Prototype(ctx, child, logger)
		if err != nil {
			return nil, err
		}
		children = append(children, built)
	}

	fn, err := builder.Build(ctx, proto, children)
	if err != nil {
		if liftErr, ok := err.(*builder.LiftError); ok {
			logger.Warn("lift failed, emitting placeholder body", "pc", liftErr.PC, "reason", liftErr.Reason)
			stub := ast.NewFunctionDefinition()
			stub.Error = liftErr
			return stub, nil
		}
		return nil, fmt.Errorf("decompile: %w", err)
	}

	mutator.PrePass(fn, proto)
	if err := validator.Validate(fn, true); err != nil {
		return nil, fmt.Errorf("decompile: %w", err)
	}

	locals.MarkLocals(fn, proto)
	slotworks.EliminateTemporary(fn, true)

	if err := unwarp.Unwarp(fn); err != nil {
		return nil, fmt.Errorf("decompile: %w", err)
	}
	locals.MarkLocalDefinitions(fn, false)

	mutator.PrimaryPass(fn)
	if err := validator.Validate(fn, false); err != nil {
		return nil, fmt.Errorf("decompile: %w", err)
	}

	locals.MarkLocals(fn, proto)
	locals.MarkLocalDefinitions(fn, true)

	return fn, nil
}
