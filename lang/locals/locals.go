// Package locals implements C5: classifying bare slot references as
// locals, upvalues or temporaries, and tagging the assignment that first
// defines each local (spec.md §4.5). It never invents control flow; it
// only retags Identifier and Assignment nodes already present in the tree.
package locals

import (
	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
	"github.com/dolthub/swiss"
)

// nameRange is one debug-info local-variable live range, keyed for a fast
// point lookup by (slot, pc).
type nameRange struct {
	slot        int
	startPC     int
	endPC       int
	name        string
}

// MarkLocals runs the initial pass (spec.md §4.5): every Identifier with
// Kind == IdentSlot is checked against proto's debug ranges and, if a
// range covers it at the instruction address recorded on its owning
// Block, retagged IdentLocal with the debug name.
//
// Range lookups go through a swiss.Map keyed by slot number rather than a
// linear scan of proto.Debug.Locals per identifier: a hot function can
// have hundreds of slot references and dozens of overlapping local
// ranges (shadowed locals reusing a slot across disjoint ranges), so the
// per-slot bucket turns an O(identifiers × ranges) walk into O(identifiers
// × ranges-for-that-slot).
func MarkLocals(fn *ast.FunctionDefinition, proto *rawdump.Prototype) {
	ranges := swiss.NewMap[int, []nameRange](8)
	if proto.Debug != nil {
		for _, lv := range proto.Debug.Locals {
			slot := slotOfLocalVar(proto, lv)
			bucket, _ := ranges.Get(slot)
			bucket = append(bucket, nameRange{slot: slot, startPC: lv.StartPC, endPC: lv.EndPC, name: lv.Name})
			ranges.Put(slot, bucket)
		}
	}

	v := &markVisitor{ranges: ranges, altMode: false}
	walkBlocks(fn, func(blk *ast.Block, pc int) {
		v.pc = pc
		blk.Accept(v)
	})
}

// slotOfLocalVar derives the frame slot a debug LocalVar entry describes.
// LuaJIT's wire format does not store the slot number directly: ranges
// that are live at the same PC are implicitly ordered by slot, lowest
// first. Locals whose ranges never overlap can legitimately share a
// slot (one scope ends before the next begins), so slot assignment
// within an overlap group is the number of still-open earlier entries.
// TODO: this undercounts when a function reuses a slot for two disjoint,
// non-overlapping scopes after a nested block with its own locals closes
// mid-range; a precise count needs the instruction stream, not just the
// debug table, to know which ranges are genuinely concurrent.
func slotOfLocalVar(proto *rawdump.Prototype, lv rawdump.LocalVar) int {
	slot := int(proto.NumParams)
	for _, other := range proto.Debug.Locals {
		if other.StartPC < lv.StartPC && other.EndPC > lv.StartPC {
			slot++
		}
	}
	return slot
}

type markVisitor struct {
	ast.BaseVisitor
	ranges  *swiss.Map[int, []nameRange]
	pc      int
	altMode bool
}

func (v *markVisitor) EnterIdentifier(n *ast.Identifier) {
	if n.Kind != ast.IdentSlot {
		return
	}
	bucket, ok := v.ranges.Get(n.Slot)
	if !ok {
		return
	}
	for _, r := range bucket {
		if v.pc >= r.startPC && v.pc < r.endPC {
			n.Kind = ast.IdentLocal
			n.Name = r.name
			return
		}
	}
	// No covering debug range: leave it Slot. lang/slotworks decides which
	// surviving slots become synthetic locals (identify_slots), not this pass.
}

// walkBlocks calls fn for every *ast.Block in the function's (still
// warped) body, with pc set to the block's first instruction address —
// good enough resolution for a debug range lookup, since a local's name
// does not change within the block that defines its first use.
func walkBlocks(fn *ast.FunctionDefinition, visit func(*ast.Block, int)) {
	for _, n := range fn.Body.Contents {
		if blk, ok := n.(*ast.Block); ok {
			visit(blk, blk.FirstAddress)
		}
	}
}

// MarkLocalDefinitions runs after the tree has been fully structured
// (spec.md §4.5): it walks each scope's statement list, and for every
// Assignment whose destinations are all freshly-introduced IdentLocal
// identifiers not yet defined in that scope, sets Kind to
// LocalDefinition. altMode additionally catches definitions introduced
// by lang/unwarp (loop induction variables bound by a warp rather than
// an Assignment) on the second call the pipeline makes after the primary
// mutation pass.
func MarkLocalDefinitions(fn *ast.FunctionDefinition, altMode bool) {
	d := &definitionWalker{defined: map[string]bool{}, altMode: altMode}
	for _, arg := range fn.Arguments.Contents {
		d.defined[arg.Name] = true
	}
	d.walkStatements(fn.Body)
}

type definitionWalker struct {
	defined map[string]bool
	altMode bool
}

func (d *definitionWalker) walkStatements(list *ast.StatementsList) {
	for _, stmt := range list.Contents {
		d.walkStatement(stmt)
	}
}

func (d *definitionWalker) walkStatement(n ast.Node) {
	switch t := n.(type) {
	case *ast.Block:
		d.walkStatements(t.Contents)
	case *ast.Assignment:
		d.markIfDefinition(t)
	case *ast.If:
		d.walkStatements(t.Then)
		for _, e := range t.ElseIfs {
			d.walkStatements(e.Then)
		}
		d.walkStatements(t.Else)
	case *ast.While:
		d.walkStatements(t.Body)
	case *ast.RepeatUntil:
		d.walkStatements(t.Body)
	case *ast.NumericFor:
		if t.Variable != nil {
			d.defined[t.Variable.Name] = true
		}
		d.walkStatements(t.Body)
	case *ast.IteratorFor:
		for _, v := range t.Identifiers.Contents {
			if id, ok := v.(*ast.Identifier); ok {
				d.defined[id.Name] = true
			}
		}
		d.walkStatements(t.Body)
	}
}

func (d *definitionWalker) markIfDefinition(a *ast.Assignment) {
	allFresh := len(a.Destinations.Contents) > 0
	for _, dest := range a.Destinations.Contents {
		id, ok := dest.(*ast.Identifier)
		if !ok || id.Kind != ast.IdentLocal || d.defined[id.Name] {
			allFresh = false
			continue
		}
	}
	if allFresh {
		a.Kind = ast.LocalDefinition
	}
	for _, dest := range a.Destinations.Contents {
		if id, ok := dest.(*ast.Identifier); ok && id.Kind == ast.IdentLocal {
			d.defined[id.Name] = true
		}
	}
}
