// Package unwarp implements C7: it turns a warped block graph —
// *ast.Block values chained by Warp edges and addressed by index — into
// the structured control flow spec.md §4.7 describes (if/elseif/else,
// while, repeat/until, numeric and iterator for, break). It runs after
// lang/slotworks and before the primary mutation pass.
//
// The block graph is reduced bottom-up: each round looks for the
// smallest recognizable region (a straight-line chain, a loop whose body
// is already down to one block, an if/else whose arms already merge) and
// folds it into a single block holding the equivalent structured
// statement. Reduction repeats to a fixpoint; termination is immediate
// once no round makes progress. Every successful fold either removes a
// block or replaces a conditional or loop warp with an unconditional one
// (the repeat/until and guarded-break folds remove no block), so the whole
// pass runs in at most 2*len(blocks) rounds.
package unwarp

import "github.com/AzurLaneTools/ljd/lang/ast"

// IrreducibleCFGError reports that the block graph did not collapse to a
// single region: some construct in the function's control flow did not
// match any of the recognized shapes.
type IrreducibleCFGError struct {
	Blocks []int // surviving block indices, for diagnostics
}

func (e *IrreducibleCFGError) Error() string {
	return "unwarp: block graph did not reduce to a single region"
}

// Unwarp structures fn's body in place. On success fn.Body.Contents holds
// the function's statements directly (no more *ast.Block, no more warps).
func Unwarp(fn *ast.FunctionDefinition) error {
	blocks := make([]*ast.Block, len(fn.Body.Contents))
	for i, n := range fn.Body.Contents {
		blk, ok := n.(*ast.Block)
		if !ok {
			return &IrreducibleCFGError{}
		}
		blocks[i] = blk
	}

	for {
		changed := false
		for i := range blocks {
			if blocks[i] == nil {
				continue
			}
			switch {
			case reduceLinearChain(blocks, i),
				reduceNumericFor(blocks, i),
				reduceIteratorFor(blocks, i),
				reduceWhile(blocks, i),
				reduceRepeatUntil(blocks, i),
				reduceIfElse(blocks, i):
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	live := liveIndices(blocks)
	if len(live) != 1 {
		return &IrreducibleCFGError{Blocks: live}
	}

	root := blocks[live[0]]
	switch root.Warp.(type) {
	case *ast.EndWarp:
	case *ast.UnconditionalWarp:
		// A live root that still points somewhere (e.g. a fallthrough to a
		// function's implicit trailing return block already folded into
		// it) is fine; only a conditional or loop warp surviving here
		// means a region never reduced.
	default:
		return &IrreducibleCFGError{Blocks: live}
	}

	fn.Body.Contents = root.Contents.Contents
	return nil
}

func liveIndices(blocks []*ast.Block) []int {
	var live []int
	for i, b := range blocks {
		if b != nil {
			live = append(live, i)
		}
	}
	return live
}

// successors lists the block indices n's warp can transfer control to.
func successors(b *ast.Block) []int {
	switch w := b.Warp.(type) {
	case *ast.UnconditionalWarp:
		return []int{w.Target}
	case *ast.ConditionalWarp:
		return []int{w.TrueTarget, w.FalseTarget}
	case *ast.IteratorWarp:
		return []int{w.BodyTarget, w.WayOutTarget}
	case *ast.NumericLoopWarp:
		return []int{w.BodyTarget, w.WayOutTarget}
	default:
		return nil
	}
}

func predecessorCount(blocks []*ast.Block, target int) int {
	count := 0
	for idx, b := range blocks {
		if b == nil || idx == target {
			continue
		}
		for _, s := range successors(b) {
			if s == target {
				count++
			}
		}
	}
	return count
}

// onlyPredecessor reports whether from is target's sole predecessor in
// the current (partially reduced) graph — the precondition for folding
// target's contents into from without affecting any other edge.
func onlyPredecessor(blocks []*ast.Block, target, from int) bool {
	if predecessorCount(blocks, target) != 1 {
		return false
	}
	for _, s := range successors(blocks[from]) {
		if s == target {
			return true
		}
	}
	return false
}

func isLive(blocks []*ast.Block, idx int) bool {
	return idx >= 0 && idx < len(blocks) && blocks[idx] != nil
}

// singleTarget returns the block's sole successor when its warp is a
// plain (non-UCLO) unconditional edge.
func singleTarget(blocks []*ast.Block, idx int) (int, bool) {
	if !isLive(blocks, idx) {
		return 0, false
	}
	uw, ok := blocks[idx].Warp.(*ast.UnconditionalWarp)
	if !ok || uw.IsUCLO {
		return 0, false
	}
	return uw.Target, true
}

func removeBlock(blocks []*ast.Block, idx int) {
	blocks[idx] = nil
}

// reduceLinearChain merges a block into its sole successor when nothing
// else jumps into that successor — ordinary basic-block merging. This is
// the workhorse reduction: running it to a fixpoint alongside the other
// rules is what turns a loop's or branch's multi-block body into the
// single block the other rules expect to find.
func reduceLinearChain(blocks []*ast.Block, i int) bool {
	target, ok := singleTarget(blocks, i)
	if !ok || target == i || !isLive(blocks, target) {
		return false
	}
	if !onlyPredecessor(blocks, target, i) {
		return false
	}
	ensureBreakAppended(blocks, target)
	b, t := blocks[i], blocks[target]
	b.Contents.Contents = append(b.Contents.Contents, t.Contents.Contents...)
	b.Warp = t.Warp
	removeBlock(blocks, target)
	return true
}

// isLoopBody reports whether idx is a block whose only way out is an
// unconditional edge back to header — the shape a loop body collapses to
// once reduceLinearChain and the other rules have flattened everything
// inside it.
func isLoopBody(blocks []*ast.Block, idx, header int) bool {
	if idx == header {
		return false
	}
	target, ok := singleTarget(blocks, idx)
	return ok && target == header
}

// findEnclosingLoopExit looks for a loop-shaped warp still present
// anywhere in blocks whose body region contains i, and returns its exit
// target. Because reduction proceeds innermost-first, an If sitting
// inside a loop is examined while that loop's own header warp is still
// in its original (unreduced) shape, so this scan sees it.
//
// When i sits inside more than one still-unreduced loop (nested loops
// sharing an exit block is the only way that can happen before the inner
// loop itself reduces), the match found last wins — an approximation of
// "innermost enclosing loop" that does not track real nesting depth. It
// is adequate for the common case of loops with distinct exit blocks.
func findEnclosingLoopExit(blocks []*ast.Block, i int) (exit int, ok bool) {
	for h, hb := range blocks {
		if hb == nil || h == i {
			continue
		}
		bodyStart, loopExit, has := loopShape(blocks, h, hb)
		if !has {
			continue
		}
		if i == bodyStart || reachableWithin(blocks, bodyStart, i, h, loopExit) {
			exit, ok = loopExit, true
		}
	}
	return exit, ok
}

// loopShape reports whether h's warp is a loop header, and if so which
// successor begins the body and which is the exit. For a ConditionalWarp
// this is a reachability test — can the candidate body reach back to h
// without passing through the other branch? — rather than a check that
// the body is already a single block, since an if/break sitting inside
// the body has to be recognized (via findEnclosingLoopExit) before the
// body can ever flatten down to one block: a stricter single-block check
// here would make the two passes depend on each other's output.
func loopShape(blocks []*ast.Block, h int, hb *ast.Block) (bodyStart, loopExit int, ok bool) {
	switch w := hb.Warp.(type) {
	case *ast.ConditionalWarp:
		if canReachHeader(blocks, w.TrueTarget, h, w.FalseTarget) {
			return w.TrueTarget, w.FalseTarget, true
		}
		if canReachHeader(blocks, w.FalseTarget, h, w.TrueTarget) {
			return w.FalseTarget, w.TrueTarget, true
		}
	case *ast.NumericLoopWarp:
		return w.BodyTarget, w.WayOutTarget, true
	case *ast.IteratorWarp:
		return w.BodyTarget, w.WayOutTarget, true
	}
	return 0, 0, false
}

// canReachHeader reports whether control can flow from start back to
// header without first reaching otherExit, i.e. whether start begins a
// region that loops back to header rather than simply flowing past it.
func canReachHeader(blocks []*ast.Block, start, header, otherExit int) bool {
	if start == header {
		return false
	}
	seen := map[int]bool{}
	var walk func(idx int) bool
	walk = func(idx int) bool {
		if idx == header {
			return true
		}
		if idx == otherExit || seen[idx] || !isLive(blocks, idx) {
			return false
		}
		seen[idx] = true
		for _, s := range successors(blocks[idx]) {
			if walk(s) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// reachableWithin reports whether target is reachable from start without
// passing back through header or escaping through exit — i.e. without
// leaving the loop's own region.
func reachableWithin(blocks []*ast.Block, start, target, header, exit int) bool {
	seen := map[int]bool{}
	var walk func(idx int) bool
	walk = func(idx int) bool {
		if idx == target {
			return true
		}
		if idx == header || idx == exit || seen[idx] || !isLive(blocks, idx) {
			return false
		}
		seen[idx] = true
		for _, s := range successors(blocks[idx]) {
			if walk(s) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// ensureBreakAppended appends a Break statement to blocks[idx]'s contents
// if its warp is a bare unconditional jump straight to the exit of a
// loop it sits inside — LuaJIT compiles an unconditional `break` to
// exactly this shape, a JMP to the post-loop label with no guarding
// comparison. Idempotent: a block already ending in Break is untouched.
func ensureBreakAppended(blocks []*ast.Block, idx int) {
	if !isLive(blocks, idx) {
		return
	}
	b := blocks[idx]
	if n := len(b.Contents.Contents); n > 0 {
		if _, isBreak := b.Contents.Contents[n-1].(*ast.Break); isBreak {
			return
		}
	}
	uw, ok := b.Warp.(*ast.UnconditionalWarp)
	if !ok || uw.IsUCLO {
		return
	}
	if exit, ok := findEnclosingLoopExit(blocks, idx); ok && uw.Target == exit {
		b.Contents.Contents = append(b.Contents.Contents, ast.NewBreak())
	}
}

// reduceNumericFor folds a NumericLoopWarp whose body is a single block
// (rule 1) into a NumericFor statement.
func reduceNumericFor(blocks []*ast.Block, i int) bool {
	w, ok := blocks[i].Warp.(*ast.NumericLoopWarp)
	if !ok || !isLoopBody(blocks, w.BodyTarget, i) || !onlyPredecessor(blocks, w.BodyTarget, i) {
		return false
	}
	ensureBreakAppended(blocks, w.BodyTarget)

	b := blocks[i]
	nf := ast.NewNumericFor()
	nf.Variable = w.Variable
	nf.Expressions.Contents = w.Expressions.Contents
	nf.Body.Contents = blocks[w.BodyTarget].Contents.Contents
	b.Contents.Contents = append(b.Contents.Contents, nf)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, w.WayOutTarget)
	removeBlock(blocks, w.BodyTarget)
	return true
}

// reduceIteratorFor is reduceNumericFor's counterpart for ITERC loops
// (rule 1).
func reduceIteratorFor(blocks []*ast.Block, i int) bool {
	w, ok := blocks[i].Warp.(*ast.IteratorWarp)
	if !ok || !isLoopBody(blocks, w.BodyTarget, i) || !onlyPredecessor(blocks, w.BodyTarget, i) {
		return false
	}
	ensureBreakAppended(blocks, w.BodyTarget)

	b := blocks[i]
	itf := ast.NewIteratorFor()
	itf.Identifiers.Contents = w.Variables.Contents
	itf.Expressions.Contents = w.Controls.Contents
	itf.Body.Contents = blocks[w.BodyTarget].Contents.Contents
	b.Contents.Contents = append(b.Contents.Contents, itf)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, w.WayOutTarget)
	removeBlock(blocks, w.BodyTarget)
	return true
}

// reduceWhile folds a pre-tested loop (rule 2): a ConditionalWarp whose
// taken branch is a single-block body looping straight back to the
// header, and whose other branch leaves the loop.
func reduceWhile(blocks []*ast.Block, i int) bool {
	cw, ok := blocks[i].Warp.(*ast.ConditionalWarp)
	if !ok {
		return false
	}
	body, exit, cond, ok := whileShape(blocks, i, cw)
	if !ok || !onlyPredecessor(blocks, body, i) {
		return false
	}
	ensureBreakAppended(blocks, body)

	b := blocks[i]
	w := ast.NewWhile()
	w.Expression = cond
	w.Body.Contents = blocks[body].Contents.Contents
	b.Contents.Contents = append(b.Contents.Contents, w)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, exit)
	removeBlock(blocks, body)
	return true
}

func whileShape(blocks []*ast.Block, header int, cw *ast.ConditionalWarp) (body, exit int, cond ast.Node, ok bool) {
	if isLoopBody(blocks, cw.TrueTarget, header) {
		return cw.TrueTarget, cw.FalseTarget, cw.Condition, true
	}
	if isLoopBody(blocks, cw.FalseTarget, header) {
		return cw.FalseTarget, cw.TrueTarget, ast.NewUnaryOperator(ast.OpNot, cw.Condition), true
	}
	return 0, 0, nil, false
}

// reduceRepeatUntil folds a post-tested loop (rule 2): a single block
// whose own ConditionalWarp branches back to itself on one edge and
// leaves the loop on the other. A condition inversion applies when the
// back edge is the false branch, so Expression always means "true means
// exit", matching Lua's until semantics.
func reduceRepeatUntil(blocks []*ast.Block, i int) bool {
	cw, ok := blocks[i].Warp.(*ast.ConditionalWarp)
	if !ok {
		return false
	}
	var exit int
	var until ast.Node
	switch {
	case cw.TrueTarget == i:
		exit, until = cw.FalseTarget, ast.NewUnaryOperator(ast.OpNot, cw.Condition)
	case cw.FalseTarget == i:
		exit, until = cw.TrueTarget, cw.Condition
	default:
		return false
	}

	b := blocks[i]
	ru := ast.NewRepeatUntil()
	ru.Expression = until
	ru.Body.Contents = b.Contents.Contents
	b.Contents = ast.NewStatementsList(ru)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, exit)
	return true
}

// reduceIfElse folds a two-way branch (rule 3) in one of four shapes:
// break-out of an enclosing loop on one arm (rule 4), the and/or
// passthrough idiom, if-then with no else, or if-then-else with both
// arms reconverging on the same block.
func reduceIfElse(blocks []*ast.Block, i int) bool {
	cw, ok := blocks[i].Warp.(*ast.ConditionalWarp)
	if !ok {
		return false
	}
	t, f := cw.TrueTarget, cw.FalseTarget
	b := blocks[i]

	if exit, hasLoop := findEnclosingLoopExit(blocks, i); hasLoop {
		if t == exit {
			emitBreakIf(b, cw.Condition, f)
			return true
		}
		if f == exit {
			emitBreakIf(b, ast.NewUnaryOperator(ast.OpNot, cw.Condition), t)
			return true
		}
	}

	if reduceAndOr(blocks, i, cw, t, f) {
		return true
	}

	ensureBreakAppended(blocks, t)
	ensureBreakAppended(blocks, f)

	tSimple := isLive(blocks, t) && onlyPredecessor(blocks, t, i)
	fSimple := isLive(blocks, f) && onlyPredecessor(blocks, f, i)

	if tSimple && fSimple {
		tm, tok := singleTarget(blocks, t)
		fm, fok := singleTarget(blocks, f)
		if tok && fok && tm == fm {
			ifNode := ast.NewIf()
			ifNode.Expression = cw.Condition
			ifNode.Then.Contents = blocks[t].Contents.Contents
			ifNode.Else.Contents = blocks[f].Contents.Contents
			b.Contents.Contents = append(b.Contents.Contents, ifNode)
			b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, tm)
			removeBlock(blocks, t)
			removeBlock(blocks, f)
			return true
		}
	}
	if tSimple {
		if tm, ok := singleTarget(blocks, t); ok && tm == f {
			ifNode := ast.NewIf()
			ifNode.Expression = cw.Condition
			ifNode.Then.Contents = blocks[t].Contents.Contents
			b.Contents.Contents = append(b.Contents.Contents, ifNode)
			b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, f)
			removeBlock(blocks, t)
			return true
		}
	}
	if fSimple {
		if fm, ok := singleTarget(blocks, f); ok && fm == t {
			ifNode := ast.NewIf()
			ifNode.Expression = ast.NewUnaryOperator(ast.OpNot, cw.Condition)
			ifNode.Then.Contents = blocks[f].Contents.Contents
			b.Contents.Contents = append(b.Contents.Contents, ifNode)
			b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, t)
			removeBlock(blocks, f)
			return true
		}
	}
	return false
}

func emitBreakIf(b *ast.Block, cond ast.Node, fallthroughTarget int) {
	ifNode := ast.NewIf()
	ifNode.Expression = cond
	ifNode.Then.Contents = append(ifNode.Then.Contents, ast.NewBreak())
	b.Contents.Contents = append(b.Contents.Contents, ifNode)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, fallthroughTarget)
}

// reduceAndOr recognizes LuaJIT's compiled form of `x = a and b` and
// `x = a or b`: a ConditionalWarp whose two arms are each a single
// assignment to the same destination, one of them assigning the
// condition's own value straight through. Only a bare-identifier
// passthrough is recognized; a constant-folded or otherwise rewritten
// passthrough value will fall through to the plain if/else rules below
// instead, which still produce correct (if less idiomatic) output.
func reduceAndOr(blocks []*ast.Block, i int, cw *ast.ConditionalWarp, t, f int) bool {
	if !onlyPredecessor(blocks, t, i) || !onlyPredecessor(blocks, f, i) {
		return false
	}
	ta, tok := singleAssignment(blocks, t)
	fa, fok := singleAssignment(blocks, f)
	if !tok || !fok || !sameDestination(ta, fa) {
		return false
	}
	tm, tmok := singleTarget(blocks, t)
	fm, fmok := singleTarget(blocks, f)
	if !tmok || !fmok || tm != fm {
		return false
	}

	var expr ast.Node
	switch {
	case sameExpression(ta.Expressions.Contents[0], cw.Condition):
		expr = ast.NewBinaryOperator(ast.OpOr, cw.Condition, fa.Expressions.Contents[0])
	case sameExpression(fa.Expressions.Contents[0], cw.Condition):
		expr = ast.NewBinaryOperator(ast.OpAnd, cw.Condition, ta.Expressions.Contents[0])
	default:
		return false
	}

	b := blocks[i]
	asg := ast.NewAssignment()
	asg.Destinations.Contents = ta.Destinations.Contents
	asg.Expressions.Contents = append(asg.Expressions.Contents, expr)
	b.Contents.Contents = append(b.Contents.Contents, asg)
	b.Warp = ast.NewUnconditionalWarp(ast.WarpFlow, tm)
	removeBlock(blocks, t)
	removeBlock(blocks, f)
	return true
}

func singleAssignment(blocks []*ast.Block, idx int) (*ast.Assignment, bool) {
	if !isLive(blocks, idx) || len(blocks[idx].Contents.Contents) != 1 {
		return nil, false
	}
	a, ok := blocks[idx].Contents.Contents[0].(*ast.Assignment)
	if !ok || len(a.Destinations.Contents) != 1 || len(a.Expressions.Contents) != 1 {
		return nil, false
	}
	return a, true
}

func sameDestination(a, b *ast.Assignment) bool {
	da, ok1 := a.Destinations.Contents[0].(*ast.Identifier)
	db, ok2 := b.Destinations.Contents[0].(*ast.Identifier)
	return ok1 && ok2 && da.Kind == db.Kind && da.Slot == db.Slot && da.Name == db.Name
}

func sameExpression(a, b ast.Node) bool {
	ia, ok1 := a.(*ast.Identifier)
	ib, ok2 := b.(*ast.Identifier)
	return ok1 && ok2 && ia.Kind == ib.Kind && ia.Slot == ib.Slot && ia.Name == ib.Name
}
