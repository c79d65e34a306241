// Package mutator implements the two cleanup passes that bracket the
// structural stages: PrePass (C4) canonicalizes instruction-level idioms
// lang/builder leaves in their raw bytecode shape, and PrimaryPass (C8)
// cleans up the tree lang/unwarp produces before the final locals pass
// and emission.
package mutator

import (
	"github.com/AzurLaneTools/ljd/lang/ast"
	"github.com/AzurLaneTools/ljd/lang/rawdump"
)

// PrePass runs immediately after lang/builder, on the still-warped
// per-block body (spec.md §4.4). lang/builder already fuses
// comparison+JMP into ConditionalWarp and lifts KPRI/ITERC directly
// during lifting, so the one canonicalization left to do here is
// downgrading a UCLO edge to a plain jump when closing upvalues at that
// point can never be observable: LuaJIT always emits UCLO at a loop's
// back edge or a scope exit whether or not anything above that frame
// slot is actually captured, but a capture can only happen through a
// child prototype's upvalue list, which is known before any AST work
// starts.
func PrePass(fn *ast.FunctionDefinition, proto *rawdump.Prototype) {
	if hasCapturedLocals(proto) {
		return
	}
	for _, n := range fn.Body.Contents {
		blk, ok := n.(*ast.Block)
		if !ok {
			continue
		}
		if uw, ok := blk.Warp.(*ast.UnconditionalWarp); ok && uw.IsUCLO {
			uw.IsUCLO = false
		}
	}
}

func hasCapturedLocals(proto *rawdump.Prototype) bool {
	for _, child := range proto.Protos {
		for _, uv := range child.Upvalues {
			if uv.FromParent {
				return true
			}
		}
	}
	return false
}

// PrimaryPass runs after lang/unwarp (spec.md §4.8): inverting a
// negated If condition back to its positive form with the branches
// swapped, folding a bytecode-split multi-local definition back into one
// statement, and dropping the empty trailing Return LuaJIT always
// appends to a prototype's bytecode.
func PrimaryPass(fn *ast.FunctionDefinition) {
	invertNegatedIfs(fn.Body)
	mergeAdjacentLocalDefinitions(fn.Body)
	dropTrailingEmptyReturn(fn.Body)
}

// invertNegatedIfs rewrites If(not cond, Then, Else) to If(cond, Else,
// Then) wherever it appears, recursively. lang/unwarp's while/repeat
// condition inversion and the plain if/else fold both produce a bare
// UnaryOperator(OpNot, ...) condition whenever the taken branch was the
// warp's false edge; collapsing it back out here keeps the emitted
// source reading the way the original comparison did, rather than
// through a double negative.
func invertNegatedIfs(list *ast.StatementsList) {
	for _, n := range list.Contents {
		invertIfNode(n)
		switch t := n.(type) {
		case *ast.If:
			invertNegatedIfs(t.Then)
			for _, e := range t.ElseIfs {
				invertNegatedIfs(e.Then)
			}
			invertNegatedIfs(t.Else)
		case *ast.While:
			invertNegatedIfs(t.Body)
		case *ast.RepeatUntil:
			invertNegatedIfs(t.Body)
		case *ast.NumericFor:
			invertNegatedIfs(t.Body)
		case *ast.IteratorFor:
			invertNegatedIfs(t.Body)
		}
	}
}

func invertIfNode(n ast.Node) {
	ifNode, ok := n.(*ast.If)
	if !ok {
		return
	}
	if len(ifNode.ElseIfs) > 0 {
		return // an elseif chain's branch order is load-bearing; leave it alone.
	}
	not, ok := ifNode.Expression.(*ast.UnaryOperator)
	if !ok || not.Op != ast.OpNot {
		return
	}
	if len(ifNode.Else.Contents) == 0 {
		return // no else arm to swap into; inverting would drop the then-branch.
	}
	ifNode.Expression = not.Operand
	ifNode.Then, ifNode.Else = ifNode.Else, ifNode.Then
}

// mergeAdjacentLocalDefinitions folds `local a = f(); local b = MULTRES`
// back into `local a, b = f()`: lang/slotworks fuses a call's second
// result into its own definition only when slotworks' single-use rule
// allows it, so a multi-result local declaration can still surface as
// two adjacent LocalDefinition statements, the second reading the first
// call's continued results.
func mergeAdjacentLocalDefinitions(list *ast.StatementsList) {
	kept := list.Contents[:0]
	for i := 0; i < len(list.Contents); i++ {
		n := list.Contents[i]
		recurseMergeLocalDefs(n)

		if i+1 < len(list.Contents) {
			first, fok := n.(*ast.Assignment)
			second, sok := list.Contents[i+1].(*ast.Assignment)
			if fok && sok && canMergeLocalDefinitions(first, second) {
				first.Destinations.Contents = append(first.Destinations.Contents, second.Destinations.Contents...)
				kept = append(kept, first)
				i++
				continue
			}
		}
		kept = append(kept, n)
	}
	list.Contents = kept
}

func recurseMergeLocalDefs(n ast.Node) {
	switch t := n.(type) {
	case *ast.If:
		mergeAdjacentLocalDefinitions(t.Then)
		for _, e := range t.ElseIfs {
			mergeAdjacentLocalDefinitions(e.Then)
		}
		mergeAdjacentLocalDefinitions(t.Else)
	case *ast.While:
		mergeAdjacentLocalDefinitions(t.Body)
	case *ast.RepeatUntil:
		mergeAdjacentLocalDefinitions(t.Body)
	case *ast.NumericFor:
		mergeAdjacentLocalDefinitions(t.Body)
	case *ast.IteratorFor:
		mergeAdjacentLocalDefinitions(t.Body)
	}
}

func canMergeLocalDefinitions(first, second *ast.Assignment) bool {
	if first.Kind != ast.LocalDefinition || second.Kind != ast.LocalDefinition {
		return false
	}
	if len(second.Destinations.Contents) != 1 || len(second.Expressions.Contents) != 1 {
		return false
	}
	_, isMultres := second.Expressions.Contents[0].(*ast.Multres)
	return isMultres
}

// dropTrailingEmptyReturn removes a `return` with no values from the end
// of the function body: LuaJIT always appends one after the user's own
// final statement, whether or not that statement already returns.
func dropTrailingEmptyReturn(body *ast.StatementsList) {
	n := len(body.Contents)
	if n == 0 {
		return
	}
	ret, ok := body.Contents[n-1].(*ast.Return)
	if ok && len(ret.Values.Contents) == 0 {
		body.Contents = body.Contents[:n-1]
	}
}
