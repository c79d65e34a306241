// Package builder implements C3: it walks a rawdump.Prototype's flat
// instruction stream and produces the first warped ast.FunctionDefinition
// shape (spec.md §4.3) — a StatementsList of *ast.Block, each ending in
// exactly one Warp, with every operand still a bare slot reference
// (lang/locals and lang/slotworks run later and turn slots into named
// locals and fuse definitions into their single use).
package builder

import (
	"fmt"

	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/opcode"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
)

// Build lifts one prototype into a warped FunctionDefinition. children
// holds this prototype's own children, already built and in the same
// order they appear in proto.Protos — the caller (lang/decompile) builds
// every prototype in the dump's post-order first so a parent always has
// its children's finished FunctionDefinition literals on hand before
// lifting its own FNEW instructions.
func Build(ctx *opcode.VersionedContext, proto *rawdump.Prototype, children []*ast.FunctionDefinition) (*ast.FunctionDefinition, error) {
	b := &builder{
		ctx:      ctx,
		table:    ctx.Opcodes(),
		proto:    proto,
		children: childrenByConstIndex(proto, children),
	}
	return b.build()
}

// childrenByConstIndex maps a ConstChildProto constant's index in
// proto.Constants to its already-built FunctionDefinition, so
// liftInstruction's FNEW case can resolve inst.D (a constant-table index) directly.
// proto.Protos and the ConstChildProto-kind constants both list the
// prototype's children in the same left-to-right order the original
// source declared them.
func childrenByConstIndex(proto *rawdump.Prototype, children []*ast.FunctionDefinition) map[int]*ast.FunctionDefinition {
	m := make(map[int]*ast.FunctionDefinition, len(children))
	i := 0
	for idx, c := range proto.Constants {
		if c.Kind != rawdump.ConstChildProto {
			continue
		}
		if i < len(children) {
			m[idx] = children[i]
		}
		i++
	}
	return m
}

type builder struct {
	ctx   *opcode.VersionedContext
	table *opcode.Table
	proto *rawdump.Prototype

	children map[int]*ast.FunctionDefinition
}

// blockBoundaries returns the instruction indices that start a new basic
// block: index 0, every jump target, and every instruction immediately
// following a jump (since control falls through to it as a distinct edge).
func (b *builder) blockBoundaries() []int {
	starts := map[int]bool{0: true}
	for pc, inst := range b.proto.Instructions {
		entry, ok := b.table.Lookup(inst.Op)
		if !ok {
			continue
		}
		if isEdgeBearing(entry.Family) {
			target := pc + 1 + int(inst.D) - 0x8000
			starts[target] = true
			starts[pc+1] = true
		}
	}
	ordered := make([]int, 0, len(starts))
	for pc := range starts {
		if pc >= 0 && pc <= len(b.proto.Instructions) {
			ordered = append(ordered, pc)
		}
	}
	// simple insertion sort: boundary counts are tiny per function
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1] > ordered[j]; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	return ordered
}

// isEdgeBearing reports whether an instruction family always ends a
// basic block (spec.md §4.3's edge-bearing instructions). blockBoundaries
// and liftBlock share this so the list of terminator families lives in
// one place.
func isEdgeBearing(f opcode.InstrFamily) bool {
	switch f {
	case opcode.FamilyJump, opcode.FamilyLoop,
		opcode.FamilyNumericFor, opcode.FamilyIterator, opcode.FamilyReturn,
		opcode.FamilyUCLO:
		return true
	default:
		return false
	}
}

func (b *builder) build() (*ast.FunctionDefinition, error) {
	fn := ast.NewFunctionDefinition()
	fn.IsVararg = b.proto.IsVararg()
	for i := 0; i < int(b.proto.NumParams); i++ {
		fn.Arguments.Contents = append(fn.Arguments.Contents, ast.NewSlotIdentifier(i))
	}
	for i, uv := range b.proto.Upvalues {
		name := fmt.Sprintf("upval%d", i)
		if b.proto.Debug != nil && i < len(b.proto.Debug.UpvalNames) {
			name = b.proto.Debug.UpvalNames[i]
		}
		fn.Upvalues = append(fn.Upvalues, ast.UpvalueDescriptor{
			Name: name, FromParent: uv.FromParent, Index: uv.Index,
		})
	}

	bounds := b.blockBoundaries()
	blocks := make([]*ast.Block, 0, len(bounds))
	for i, start := range bounds {
		end := len(b.proto.Instructions)
		if i+1 < len(bounds) {
			end = bounds[i+1]
		}
		if start >= end {
			// Every edge-bearing family, including FamilyReturn, makes
			// blockBoundaries mark the instruction right after it as a
			// start; when that instruction is also the function's very
			// last one, that boundary has nothing between it and the end
			// of the stream. Such a range is never a real block - only
			// an address lang/unwarp's reduction would otherwise have to
			// carry around forever as an unreachable, never-merged orphan.
			continue
		}
		blk := ast.NewBlock(len(blocks))
		blk.FirstAddress = start
		blk.LastAddress = end - 1
		if err := b.liftBlock(blk, start, end, bounds); err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}

	for _, blk := range blocks {
		fn.Body.Contents = append(fn.Body.Contents, blk)
	}
	return fn, nil
}

// liftBlock lifts instructions [start, end) of the function into blk's
// Contents, ending with blk's Warp. Edge-bearing instructions (the last
// instruction of the range, by construction of blockBoundaries) produce
// the Warp; everything before that is lifted into plain statements via
// liftInstruction.
func (b *builder) liftBlock(blk *ast.Block, start, end int, bounds []int) error {
	insts := b.proto.Instructions
	// pendingCond holds a comparison's condition between the compare
	// instruction and the JMP that always immediately follows it in real
	// LuaJIT bytecode: the compare itself never ends a block, only the
	// JMP does, so the condition has to be carried across one iteration.
	var pendingCond ast.Node
	for pc := start; pc < end; pc++ {
		inst := insts[pc]
		entry, ok := b.table.Lookup(inst.Op)
		if !ok {
			return &LiftError{PC: pc, Reason: fmt.Sprintf("unknown opcode %d", inst.Op)}
		}
		if entry.Family == opcode.FamilyCompare {
			pendingCond = b.comparisonCondition(entry, inst)
			continue
		}
		last := pc == end-1 && isEdgeBearing(entry.Family)
		if !last {
			b.liftInstruction(blk, pc, inst, entry)
			continue
		}
		warp, err := b.liftWarp(blk, pc, inst, entry, bounds, pendingCond)
		if err != nil {
			return err
		}
		blk.Warp = warp
	}
	if blk.Warp == nil {
		// Block fell through without an edge-bearing instruction (the
		// instruction range ended only because the next block starts
		// here): wire a plain fallthrough to the next block by index.
		blk.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, blk.Index+1)
	}
	return nil
}

// slot returns a bare reference to slot i. The builder never folds a
// slot's defining expression into its readers itself — every operand
// stays a SlotIdentifier, exactly as the package doc promises, so a
// read can never reach across a block edge into another block's
// definition. lang/slotworks (C6) does the within-block fusion of a
// definition into its single use once lang/locals has had a chance to
// see every definition and use as a distinct statement.
func (b *builder) slot(i uint8) ast.Node {
	return ast.NewSlotIdentifier(int(i))
}

// assignSlot appends `slot = expr` to blk: every instruction that
// writes a register lowers to an explicit Assignment rather than being
// remembered in builder state, so spec.md §4.3 step 3's "MOV/KSTR/
// KNUM/KNIL/KPRI/KSHORT -> Assignment" holds for literally every
// slot-writing family, not just the ones with an obvious standalone
// statement form (table/global/upvalue stores).
func (b *builder) assignSlot(blk *ast.Block, slot uint8, expr ast.Node) {
	a := ast.NewAssignment()
	a.Kind = ast.NormalAssignment
	a.Destinations.Contents = append(a.Destinations.Contents, ast.NewSlotIdentifier(int(slot)))
	a.Expressions.Contents = append(a.Expressions.Contents, expr)
	blk.Contents.Contents = append(blk.Contents.Contents, a)
}

// liftInstruction handles instructions that never end a block: constant
// loads, moves, arithmetic, table/global access, non-tail calls. lang/
// mutator and lang/slotworks do the fusion the builder deliberately
// does not attempt here, since it only ever sees one block's worth of
// instructions at a time and must not guess across an edge.
func (b *builder) liftInstruction(blk *ast.Block, pc int, inst rawdump.Instruction, entry opcode.Entry) {
	switch entry.Family {
	case opcode.FamilyConst:
		b.assignSlot(blk, inst.A, b.liftConstant(entry, inst))
	case opcode.FamilyMove:
		b.assignSlot(blk, inst.A, b.slot(uint8(inst.D)))
	case opcode.FamilyUnary:
		op := unaryOpFor(entry.Name)
		b.assignSlot(blk, inst.A, ast.NewUnaryOperator(op, b.slot(uint8(inst.D))))
	case opcode.FamilyArith:
		left, right := b.arithOperands(entry, inst)
		b.assignSlot(blk, inst.A, ast.NewBinaryOperator(arithOpFor(entry.Name), left, right))
	case opcode.FamilyConcat:
		// CAT folds a contiguous slot range [B, C] into one left-nested
		// concat expression.
		var expr ast.Node = b.slot(inst.B)
		for s := int(inst.B) + 1; s <= int(inst.C); s++ {
			expr = ast.NewBinaryOperator(ast.OpConcat, expr, b.slot(uint8(s)))
		}
		b.assignSlot(blk, inst.A, expr)
	case opcode.FamilyGlobal:
		name := b.constantString(int(inst.D))
		if entry.Name == "GGET" {
			b.assignSlot(blk, inst.A, ast.NewBuiltinIdentifier(name))
		} else {
			blk.Contents.Contents = append(blk.Contents.Contents, assignGlobal(name, b.slot(inst.A)))
		}
	case opcode.FamilyTable:
		b.liftTable(blk, inst, entry)
	case opcode.FamilyUpvalue:
		b.liftUpvalue(blk, inst, entry)
	case opcode.FamilyCall:
		b.liftCall(blk, inst, entry)
	case opcode.FamilyVararg:
		b.assignSlot(blk, inst.A, ast.NewVararg())
	case opcode.FamilyFunc:
		// FUNCF/FUNCV/FUNCC/FUNCCW mark the start of a prototype's own
		// code (its calling-convention header) and carry nothing to lift
		// when seen from inside that same prototype; only FNEW, seen from
		// the parent creating the closure, produces a value.
		if entry.Name == "FNEW" {
			if child, ok := b.children[int(inst.D)]; ok {
				b.assignSlot(blk, inst.A, child)
			}
		}
	default:
		// Conservatively leave unrecognized mid-block instructions as a
		// no-op statement rather than guessing; lang/validator accepts a
		// NoOp wherever a statement may appear.
		blk.Contents.Contents = append(blk.Contents.Contents, ast.NewNoOp())
	}
}

func (b *builder) arithOperands(entry opcode.Entry, inst rawdump.Instruction) (ast.Node, ast.Node) {
	switch {
	case hasSuffix(entry.Name, "VN"):
		return b.slot(inst.B), b.numberConstant(int(inst.C))
	case hasSuffix(entry.Name, "NV"):
		return b.numberConstant(int(inst.B)), b.slot(inst.C)
	default: // VV, POW
		return b.slot(inst.B), b.slot(inst.C)
	}
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

func (b *builder) liftConstant(entry opcode.Entry, inst rawdump.Instruction) ast.Node {
	switch entry.Name {
	case "KSTR":
		return ast.NewConstant(ast.ConstString, b.constantString(int(inst.D)))
	case "KNUM":
		return b.numberConstant(int(inst.D))
	case "KSHORT":
		return ast.NewConstant(ast.ConstInteger, int64(int16(inst.D)))
	case "KCDATA":
		return ast.NewConstant(ast.ConstCData, b.constantCData(int(inst.D)))
	case "KNIL":
		return ast.NewPrimitive(ast.PrimNil)
	case "KPRI":
		switch inst.D {
		case 0:
			return ast.NewPrimitive(ast.PrimNil)
		case 1:
			return ast.NewPrimitive(ast.PrimFalse)
		default:
			return ast.NewPrimitive(ast.PrimTrue)
		}
	default:
		return ast.NewPrimitive(ast.PrimNil)
	}
}

func (b *builder) numberConstant(idx int) ast.Node {
	if idx < 0 || idx >= len(b.proto.Numbers) {
		return ast.NewConstant(ast.ConstInteger, int64(0))
	}
	n := b.proto.Numbers[idx]
	if n.Kind == rawdump.NumberInt {
		return ast.NewConstant(ast.ConstInteger, n.Int)
	}
	return ast.NewConstant(ast.ConstFloat, n.Float)
}

func (b *builder) constantString(idx int) string {
	if idx < 0 || idx >= len(b.proto.Constants) {
		return ""
	}
	return b.proto.Constants[idx].Str
}

func (b *builder) constantCData(idx int) []byte {
	if idx < 0 || idx >= len(b.proto.Constants) {
		return nil
	}
	return b.proto.Constants[idx].CData
}

func (b *builder) liftTable(blk *ast.Block, inst rawdump.Instruction, entry opcode.Entry) {
	switch entry.Name {
	case "TNEW", "TDUP":
		b.assignSlot(blk, inst.A, ast.NewTableConstructor())
	case "TGETV":
		b.assignSlot(blk, inst.A, ast.NewGetItem(b.slot(inst.B), b.slot(inst.C)))
	case "TGETS":
		b.assignSlot(blk, inst.A, ast.NewGetItem(b.slot(inst.B), ast.NewConstant(ast.ConstString, b.constantString(int(inst.C)))))
	case "TGETB":
		b.assignSlot(blk, inst.A, ast.NewGetItem(b.slot(inst.B), ast.NewConstant(ast.ConstInteger, int64(inst.C))))
	case "TSETV":
		blk.Contents.Contents = append(blk.Contents.Contents, assignIndex(b.slot(inst.B), b.slot(inst.C), b.slot(inst.A)))
	case "TSETS":
		key := ast.NewConstant(ast.ConstString, b.constantString(int(inst.C)))
		blk.Contents.Contents = append(blk.Contents.Contents, assignIndex(b.slot(inst.B), key, b.slot(inst.A)))
	case "TSETB":
		key := ast.NewConstant(ast.ConstInteger, int64(inst.C))
		blk.Contents.Contents = append(blk.Contents.Contents, assignIndex(b.slot(inst.B), key, b.slot(inst.A)))
	}
}

func (b *builder) liftUpvalue(blk *ast.Block, inst rawdump.Instruction, entry opcode.Entry) {
	switch entry.Name {
	case "UGET":
		b.assignSlot(blk, inst.A, ast.NewUpvalueIdentifier(b.upvalueName(int(inst.D)), int(inst.D)))
	case "USETV":
		blk.Contents.Contents = append(blk.Contents.Contents, assignUpvalue(b.upvalueName(int(inst.A)), int(inst.A), b.slot(uint8(inst.D))))
	case "USETS":
		value := ast.NewConstant(ast.ConstString, b.constantString(int(inst.D)))
		blk.Contents.Contents = append(blk.Contents.Contents, assignUpvalue(b.upvalueName(int(inst.A)), int(inst.A), value))
	case "USETN":
		blk.Contents.Contents = append(blk.Contents.Contents, assignUpvalue(b.upvalueName(int(inst.A)), int(inst.A), b.numberConstant(int(inst.D))))
	case "USETP":
		var value ast.Node = ast.NewPrimitive(ast.PrimNil)
		if inst.D == 1 {
			value = ast.NewPrimitive(ast.PrimFalse)
		} else if inst.D > 1 {
			value = ast.NewPrimitive(ast.PrimTrue)
		}
		blk.Contents.Contents = append(blk.Contents.Contents, assignUpvalue(b.upvalueName(int(inst.A)), int(inst.A), value))
	}
}

func (b *builder) upvalueName(index int) string {
	if b.proto.Debug != nil && index < len(b.proto.Debug.UpvalNames) {
		return b.proto.Debug.UpvalNames[index]
	}
	return fmt.Sprintf("upval%d", index)
}

func assignUpvalue(name string, index int, value ast.Node) *ast.Assignment {
	a := ast.NewAssignment()
	a.Kind = ast.NormalAssignment
	a.Destinations.Contents = append(a.Destinations.Contents, ast.NewUpvalueIdentifier(name, index))
	a.Expressions.Contents = append(a.Expressions.Contents, value)
	return a
}

// liftCall always binds the call's result to slot A as an Assignment;
// lang/slotworks demotes it back to a bare statement when nothing ever
// reads that slot. Emitting the call as a bare statement here too, as
// well as binding it, would duplicate it wherever it's later consumed.
func (b *builder) liftCall(blk *ast.Block, inst rawdump.Instruction, entry opcode.Entry) {
	call := ast.NewFunctionCall()
	call.Function = b.slot(inst.A)
	nargs := int(inst.B) - 1
	if nargs < 0 {
		call.Arguments.Contents = append(call.Arguments.Contents, ast.NewMultres())
	} else {
		for i := 1; i <= nargs; i++ {
			call.Arguments.Contents = append(call.Arguments.Contents, b.slot(inst.A+uint8(i)))
		}
	}
	b.assignSlot(blk, inst.A, call)
}

// liftWarp handles the block's final, edge-bearing instruction. cond is
// non-nil when a comparison immediately preceded this instruction (always
// true when entry.Family is FamilyJump and the dump is well-formed,
// since LuaJIT never emits a bare comparison without a following JMP).
func (b *builder) liftWarp(blk *ast.Block, pc int, inst rawdump.Instruction, entry opcode.Entry, bounds []int, cond ast.Node) (ast.Node, error) {
	nextBlockIndex := func(target int) int {
		for i, start := range bounds {
			if start == target {
				return i
			}
		}
		return len(bounds) - 1
	}

	switch entry.Family {
	case opcode.FamilyReturn:
		ret := ast.NewReturn()
		switch entry.Name {
		case "RET0":
		case "RET1":
			ret.Values.Contents = append(ret.Values.Contents, b.slot(inst.A))
		case "RETM":
			ret.Values.Contents = append(ret.Values.Contents, ast.NewMultres())
		default: // RET
			n := int(inst.D) - 1
			for i := 0; i < n; i++ {
				ret.Values.Contents = append(ret.Values.Contents, b.slot(inst.A+uint8(i)))
			}
		}
		blk.Contents.Contents = append(blk.Contents.Contents, ret)
		return ast.NewEndWarp(), nil

	case opcode.FamilyJump:
		target := pc + 1 + int(inst.D) - 0x8000
		if cond != nil {
			// The preceding comparison's "skip on true" convention means
			// the fallthrough after this JMP (pc+1) is the true branch and
			// the JMP's own target is the false branch.
			return ast.NewConditionalWarp(cond, nextBlockIndex(pc+1), nextBlockIndex(target)), nil
		}
		return ast.NewUnconditionalWarp(ast.WarpJump, nextBlockIndex(target)), nil

	case opcode.FamilyUCLO:
		target := pc + 1 + int(inst.D) - 0x8000
		w := ast.NewUnconditionalWarp(ast.WarpJump, nextBlockIndex(target))
		w.IsUCLO = true
		return w, nil

	case opcode.FamilyLoop:
		target := pc + 1 + int(inst.D) - 0x8000
		return ast.NewUnconditionalWarp(ast.WarpJump, nextBlockIndex(target)), nil

	case opcode.FamilyNumericFor:
		target := pc + 1 + int(inst.D) - 0x8000
		w := ast.NewNumericLoopWarp()
		w.Expressions.Contents = []ast.Node{b.slot(inst.A), b.slot(inst.A + 1), b.slot(inst.A + 2)}
		w.Variable = ast.NewSlotIdentifier(int(inst.A) + 3)
		w.BodyTarget = nextBlockIndex(pc + 1)
		w.WayOutTarget = nextBlockIndex(target)
		return w, nil

	case opcode.FamilyIterator:
		target := pc + 1 + int(inst.D) - 0x8000
		w := ast.NewIteratorWarp()
		w.Controls.Contents = []ast.Node{b.slot(inst.A), b.slot(inst.A + 1), b.slot(inst.A + 2)}
		// B carries nresults+1, the same convention liftCall reads for a
		// plain CALL: the generic-for protocol always binds at least the
		// one loop variable a bare `for k in next, t do` needs.
		nvars := int(inst.B) - 1
		if nvars < 1 {
			nvars = 1
		}
		for i := 0; i < nvars; i++ {
			w.Variables.Contents = append(w.Variables.Contents, b.slot(inst.A+3+uint8(i)))
		}
		w.BodyTarget = nextBlockIndex(pc + 1)
		w.WayOutTarget = nextBlockIndex(target)
		return w, nil

	default:
		return nil, &LiftError{PC: pc, Reason: fmt.Sprintf("opcode %s cannot end a block", entry.Name)}
	}
}

func (b *builder) comparisonCondition(entry opcode.Entry, inst rawdump.Instruction) ast.Node {
	op, ok := compareOpFor(entry.Name)
	if !ok {
		return ast.NewPrimitive(ast.PrimTrue)
	}
	left := b.slot(inst.A)
	var right ast.Node
	switch entry.Name {
	case "ISEQS", "ISNES":
		right = ast.NewConstant(ast.ConstString, b.constantString(int(inst.D)))
	case "ISEQN", "ISNEN":
		right = b.numberConstant(int(inst.D))
	case "ISEQP", "ISNEP":
		right = ast.NewPrimitive(ast.PrimNil)
	default:
		right = b.slot(uint8(inst.D))
	}
	return ast.NewBinaryOperator(op, left, right)
}

func compareOpFor(name string) (ast.BinaryOperatorKind, bool) {
	switch name {
	case "ISLT":
		return ast.OpLessThan, true
	case "ISGE":
		return ast.OpGreaterOrEqual, true
	case "ISLE":
		return ast.OpLessOrEqual, true
	case "ISGT":
		return ast.OpGreaterThan, true
	case "ISEQV", "ISEQS", "ISEQN", "ISEQP":
		return ast.OpEqual, true
	case "ISNEV", "ISNES", "ISNEN", "ISNEP":
		return ast.OpNotEqual, true
	default:
		return 0, false
	}
}

func arithOpFor(name string) ast.BinaryOperatorKind {
	switch {
	case hasPrefix(name, "ADD"):
		return ast.OpAdd
	case hasPrefix(name, "SUB"):
		return ast.OpSubtract
	case hasPrefix(name, "MUL"):
		return ast.OpMultiply
	case hasPrefix(name, "DIV"):
		return ast.OpDivide
	case hasPrefix(name, "MOD"):
		return ast.OpMod
	case name == "POW":
		return ast.OpPow
	default:
		return ast.OpAdd
	}
}

func hasPrefix(s, pre string) bool {
	return len(s) >= len(pre) && s[:len(pre)] == pre
}

func unaryOpFor(name string) ast.UnaryOperatorKind {
	switch name {
	case "NOT":
		return ast.OpNot
	case "UNM":
		return ast.OpMinus
	case "LEN":
		return ast.OpLength
	case "ISTYPE":
		return ast.OpToString
	case "ISNUM":
		return ast.OpToNumber
	default:
		return ast.OpNot
	}
}

func assignGlobal(name string, value ast.Node) *ast.Assignment {
	a := ast.NewAssignment()
	a.Kind = ast.NormalAssignment
	a.Destinations.Contents = append(a.Destinations.Contents, ast.NewBuiltinIdentifier(name))
	a.Expressions.Contents = append(a.Expressions.Contents, value)
	return a
}

func assignIndex(table, key, value ast.Node) *ast.Assignment {
	a := ast.NewAssignment()
	a.Kind = ast.NormalAssignment
	a.Destinations.Contents = append(a.Destinations.Contents, ast.NewGetItem(table, key))
	a.Expressions.Contents = append(a.Expressions.Contents, value)
	return a
}

// LiftError reports a failure to lift one instruction or block (spec.md
// §7's Lift error kind).
type LiftError struct {
	PC     int
	Reason string
}

func (e *LiftError) Error() string {
	return fmt.Sprintf("builder: lift failed at pc %d: %s", e.PC, e.Reason)
}
