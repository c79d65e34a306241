// Package slotworks implements C6, the SSA-lite temporary-slot fusion
// pass (spec.md §4.6). LuaJIT materializes intermediate expressions into
// numbered virtual-register slots and consumes them on the next
// instruction; this pass inverts that by substituting a slot's defining
// expression directly at its single use site and discarding the
// assignment, so `slot3 = a + b; print(slot3)` becomes `print(a + b)`.
//
// It runs once per function, after lang/locals.MarkLocals and before
// lang/unwarp, on the still-warped per-block straight-line bodies the
// builder produced: a block's Contents holds only Assignment, FunctionCall
// (as a bare statement), Return and NoOp nodes at this stage, which is what keeps
// the elimination scoped to "per block, extended across straight-line
// flow" rather than needing to reason about structured control flow.
package slotworks

import "github.com/AzurLaneTools/ljd/lang/ast"

// EliminateTemporary runs the fusion pass over every block of fn, then
// (when identifySlots is true, the pipeline's default invocation mode)
// stamps a stable small-integer id on every slot identifier that survives
// fusion, so two different lifetimes of the same slot number carry
// distinct Identifier.ID values. lang/luawriter does not print these ids:
// it emits every slot as plain slotN.
func EliminateTemporary(fn *ast.FunctionDefinition, identifySlots bool) {
	for _, n := range fn.Body.Contents {
		blk, ok := n.(*ast.Block)
		if !ok {
			continue
		}
		for eliminateOnePass(blk) {
		}
		sweepNoOps(blk)
	}
	if identifySlots {
		identify(fn)
	}
}

// eliminateOnePass looks for one eliminable definition and applies it,
// reporting whether it made a change. Callers loop this to a fixpoint:
// removing one assignment can turn a previously-blocked candidate (one
// with two apparent uses, one of which was the statement just deleted)
// into an eliminable one.
func eliminateOnePass(blk *ast.Block) bool {
	stmts := blk.Contents.Contents
	for i, s := range stmts {
		a, ok := s.(*ast.Assignment)
		if !ok || a.Kind != ast.NormalAssignment {
			continue
		}
		if len(a.Destinations.Contents) != 1 || len(a.Expressions.Contents) != 1 {
			continue
		}
		dest, ok := a.Destinations.Contents[0].(*ast.Identifier)
		if !ok || dest.Kind != ast.IdentSlot {
			continue
		}
		defExpr := a.Expressions.Contents[0]
		if _, isMultres := defExpr.(*ast.Multres); isMultres {
			// Multres stands for "all results"; substituting it anywhere
			// but its three sanctioned positions would silently narrow a
			// multi-value context. Per spec.md §9 open question (c):
			// treat ambiguity as "do not fuse".
			continue
		}
		aliasSensitive := readsTableOrCalls(defExpr)

		var occs []occurrence
		blocked, redefined, sawUse := false, false, false
		for j := i + 1; j < len(stmts); j++ {
			next := stmts[j]
			var here []occurrence
			scanStatementExprs(next, dest.Slot, &here)
			occs = append(occs, here...)
			if len(occs) > 1 {
				blocked = true
				break
			}
			if len(here) == 1 {
				sawUse = true
			}
			if redefinesSlot(next, dest.Slot) {
				redefined = true
				break // this lifetime of the slot ends here either way
			}
			// Once the use is found, later side effects can no longer
			// invalidate it: the expression was already consumed. Until
			// then, a call or table write can invalidate an alias-sensitive
			// definition sitting between it and its eventual use. This does
			// not stop the scan: demoting a zero-use call statement doesn't
			// move anything past the hazard, so it stays legal even when
			// inlining the value across that hazard would not be.
			if !sawUse && aliasSensitive && isSideEffecting(next) {
				blocked = true
			}
		}
		// A redefinition inside the block ends this lifetime before the
		// warp runs, so the warp's condition (if any) reads the later
		// definition, not this one. blocked does not exempt this check:
		// the occurrence still has to be counted correctly even when
		// fusing into it would be unsafe.
		if !redefined {
			if cw, ok := blk.Warp.(*ast.ConditionalWarp); ok {
				var here []occurrence
				scanChild(&cw.Condition, dest.Slot, &here)
				occs = append(occs, here...)
			}
		}

		if len(occs) == 0 {
			// A call bound to a slot nothing ever reads is still a call the
			// program makes for its side effects; demote it back to the
			// bare statement liftCall would have emitted directly, had it
			// known in advance the result was unused. Only FunctionCall
			// is touched: every other slot-producing expression is pure,
			// and an unused assignment of one is left in place (sweepNoOps
			// removes only NoOp placeholders). blocked is irrelevant here: nothing
			// is being relocated across the hazard, only unwrapped in place.
			if call, ok := defExpr.(*ast.FunctionCall); ok {
				stmts[i] = call
				return true
			}
			continue
		}

		// A single use past an aliasing hazard is exactly what blocked
		// guards against: fusing would move defExpr's evaluation across a
		// call or table write that could have changed what it reads.
		if blocked {
			continue
		}

		if len(occs) != 1 {
			continue
		}

		occs[0].set(defExpr)
		stmts[i] = ast.NewNoOp()
		return true
	}
	return false
}

// sweepNoOps removes the placeholders eliminateOnePass left behind. It
// runs once the block has reached fixpoint, not after every single
// elimination, so the statement indices referenced mid-pass stay stable.
func sweepNoOps(blk *ast.Block) {
	kept := blk.Contents.Contents[:0]
	for _, s := range blk.Contents.Contents {
		if _, ok := s.(*ast.NoOp); ok {
			continue
		}
		kept = append(kept, s)
	}
	blk.Contents.Contents = kept
}

// redefinesSlot reports whether s writes slot directly (as opposed to
// reading it, possibly through a table or key expression). A redefinition
// always ends the slot's current lifetime, eligible or not.
func redefinesSlot(s ast.Node, slot int) bool {
	a, ok := s.(*ast.Assignment)
	if !ok {
		return false
	}
	for _, d := range a.Destinations.Contents {
		if id, ok := d.(*ast.Identifier); ok && id.Kind == ast.IdentSlot && id.Slot == slot {
			return true
		}
	}
	return false
}

// isSideEffecting reports whether s could mutate a table or global that
// an alias-sensitive definition (one that itself reads a table or calls a
// function) might be observing indirectly. Plain scalar arithmetic is
// never alias-sensitive, so a call or table write between its definition
// and its use is harmless and does not block fusion.
func isSideEffecting(s ast.Node) bool {
	switch t := s.(type) {
	case *ast.FunctionCall:
		return true
	case *ast.Assignment:
		// A call bound to a slot (liftCall's normal output, ahead of
		// whatever later reads or demotes it) is still the call running;
		// the wrapping Assignment must not hide that from a hazard scan.
		for _, e := range t.Expressions.Contents {
			if _, ok := e.(*ast.FunctionCall); ok {
				return true
			}
		}
		for _, d := range t.Destinations.Contents {
			switch dd := d.(type) {
			case *ast.GetItem:
				return true
			case *ast.Identifier:
				if dd.Kind == ast.IdentUpvalue || dd.Kind == ast.IdentBuiltin {
					return true
				}
			}
		}
	}
	return false
}

// readsTableOrCalls reports whether an expression's value could be
// invalidated by a later table write or function call: it contains a
// table index or a call anywhere in its tree.
func readsTableOrCalls(n ast.Node) bool {
	switch t := n.(type) {
	case *ast.GetItem, *ast.FunctionCall:
		return true
	case *ast.BinaryOperator:
		return readsTableOrCalls(t.Left) || readsTableOrCalls(t.Right)
	case *ast.UnaryOperator:
		return readsTableOrCalls(t.Operand)
	case *ast.TableConstructor:
		for _, a := range t.Array.Contents {
			if readsTableOrCalls(a) {
				return true
			}
		}
		for _, r := range t.Records.Contents {
			if readsTableOrCalls(r) {
				return true
			}
		}
		return false
	case *ast.ArrayRecord:
		return readsTableOrCalls(t.Value)
	case *ast.TableRecord:
		return readsTableOrCalls(t.Key) || readsTableOrCalls(t.Value)
	default:
		return false
	}
}

// occurrence is one located read of a candidate slot: set splices a
// replacement expression into the exact field the read was found in.
type occurrence struct {
	set func(ast.Node)
}

// scanStatementExprs collects every read of slot reachable from a
// statement's expression fields, in the statement's evaluation order
// (right-hand side before left-hand side, matching Assignment.Accept).
// A destination that is itself an Identifier(Slot, slot) is a
// redefinition, not a read, and is skipped here; redefinesSlot reports it
// separately so callers can tell the two apart.
func scanStatementExprs(s ast.Node, slot int, out *[]occurrence) {
	switch t := s.(type) {
	case *ast.Assignment:
		for i := range t.Expressions.Contents {
			scanChild(&t.Expressions.Contents[i], slot, out)
		}
		for i := range t.Destinations.Contents {
			if id, ok := t.Destinations.Contents[i].(*ast.Identifier); ok && id.Kind == ast.IdentSlot {
				continue
			}
			scanChild(&t.Destinations.Contents[i], slot, out)
		}
	case *ast.FunctionCall:
		for i := range t.Arguments.Contents {
			scanChild(&t.Arguments.Contents[i], slot, out)
		}
		scanChild(&t.Function, slot, out)
	case *ast.Return:
		for i := range t.Values.Contents {
			scanChild(&t.Values.Contents[i], slot, out)
		}
	}
}

// scanChild inspects the expression held in *field: if it is itself a
// direct read of slot, it records an occurrence that can splice a
// replacement into that exact field; otherwise it recurses into it.
func scanChild(field *ast.Node, slot int, out *[]occurrence) {
	if id, ok := (*field).(*ast.Identifier); ok && id.Kind == ast.IdentSlot && id.Slot == slot {
		f := field
		*out = append(*out, occurrence{set: func(repl ast.Node) { *f = repl }})
		return
	}
	scanNode(*field, slot, out)
}

// scanNode recurses into every expression-shaped child of n looking for
// reads of slot. Leaf kinds with no children (Constant, Primitive,
// Vararg, Multres, a non-matching Identifier) fall through with no case
// and contribute nothing.
func scanNode(n ast.Node, slot int, out *[]occurrence) {
	switch t := n.(type) {
	case *ast.BinaryOperator:
		scanChild(&t.Left, slot, out)
		scanChild(&t.Right, slot, out)
	case *ast.UnaryOperator:
		scanChild(&t.Operand, slot, out)
	case *ast.GetItem:
		scanChild(&t.Key, slot, out)
		scanChild(&t.Table, slot, out)
	case *ast.FunctionCall:
		for i := range t.Arguments.Contents {
			scanChild(&t.Arguments.Contents[i], slot, out)
		}
		scanChild(&t.Function, slot, out)
	case *ast.TableConstructor:
		for i := range t.Array.Contents {
			scanChild(&t.Array.Contents[i], slot, out)
		}
		for i := range t.Records.Contents {
			scanChild(&t.Records.Contents[i], slot, out)
		}
	case *ast.ArrayRecord:
		scanChild(&t.Value, slot, out)
	case *ast.TableRecord:
		scanChild(&t.Key, slot, out)
		scanChild(&t.Value, slot, out)
	}
}

// identify assigns the synthetic per-slot ids that distinguish disjoint
// lifetimes of the same slot number (spec.md §4.6, identify_slots=true).
// It walks blocks in order and, within each block, in the same
// right-hand-side-before-left-hand-side order Assignment.Accept uses, so
// an id minted at a definition is visible to every read that follows it
// before the slot is redefined.
func identify(fn *ast.FunctionDefinition) {
	current := map[int]int{}
	counts := map[int]int{}

	for _, n := range fn.Body.Contents {
		blk, ok := n.(*ast.Block)
		if !ok {
			continue
		}
		for _, s := range blk.Contents.Contents {
			switch t := s.(type) {
			case *ast.Assignment:
				for _, e := range t.Expressions.Contents {
					stampReads(e, current, counts)
				}
				for _, d := range t.Destinations.Contents {
					if id, ok := d.(*ast.Identifier); ok && id.Kind == ast.IdentSlot {
						id.ID = counts[id.Slot]
						counts[id.Slot]++
						current[id.Slot] = id.ID
					} else {
						stampReads(d, current, counts)
					}
				}
			case *ast.FunctionCall:
				for _, a := range t.Arguments.Contents {
					stampReads(a, current, counts)
				}
				stampReads(t.Function, current, counts)
			case *ast.Return:
				for _, v := range t.Values.Contents {
					stampReads(v, current, counts)
				}
			}
		}
		switch w := blk.Warp.(type) {
		case *ast.ConditionalWarp:
			stampReads(w.Condition, current, counts)
		case *ast.IteratorWarp:
			for _, c := range w.Controls.Contents {
				stampReads(c, current, counts)
			}
		case *ast.NumericLoopWarp:
			for _, e := range w.Expressions.Contents {
				stampReads(e, current, counts)
			}
		}
	}
}

// stampReads recurses into n, assigning every IdentSlot Identifier it
// finds the current id for its slot (minting one on first sight).
func stampReads(n ast.Node, current, counts map[int]int) {
	switch t := n.(type) {
	case *ast.Identifier:
		if t.Kind == ast.IdentSlot {
			id, ok := current[t.Slot]
			if !ok {
				id = counts[t.Slot]
				counts[t.Slot]++
				current[t.Slot] = id
			}
			t.ID = id
		}
	case *ast.BinaryOperator:
		stampReads(t.Left, current, counts)
		stampReads(t.Right, current, counts)
	case *ast.UnaryOperator:
		stampReads(t.Operand, current, counts)
	case *ast.GetItem:
		stampReads(t.Key, current, counts)
		stampReads(t.Table, current, counts)
	case *ast.FunctionCall:
		for _, a := range t.Arguments.Contents {
			stampReads(a, current, counts)
		}
		stampReads(t.Function, current, counts)
	case *ast.TableConstructor:
		for _, a := range t.Array.Contents {
			stampReads(a, current, counts)
		}
		for _, r := range t.Records.Contents {
			stampReads(r, current, counts)
		}
	case *ast.ArrayRecord:
		stampReads(t.Value, current, counts)
	case *ast.TableRecord:
		stampReads(t.Key, current, counts)
		stampReads(t.Value, current, counts)
	}
}
