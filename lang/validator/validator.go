// Package validator implements the structural assertions run between
// pipeline stages (C9): one shape for the still-warped block graph lang/
// builder and lang/mutator.PrePass produce, another for the structured
// tree lang/unwarp and lang/mutator.PrimaryPass leave behind.
package validator

import (
	"fmt"
	"strings"

	"github.com/AzurLaneTools/ljd/lang/ast"
)

// StructuralError reports a validator assertion failure, with the block
// or statement range it was found at for diagnostics.
type StructuralError struct {
	Message string
	Blocks  []int
}

func (e *StructuralError) Error() string {
	if len(e.Blocks) == 0 {
		return "validator: " + e.Message
	}
	parts := make([]string, len(e.Blocks))
	for i, b := range e.Blocks {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return fmt.Sprintf("validator: %s (blocks %s)", e.Message, strings.Join(parts, ","))
}

// Validate checks fn against the warped or structured invariants
// depending on the stage it is called from (spec.md §4.9). Pass
// warped=true immediately after lang/builder and lang/mutator.PrePass;
// warped=false after lang/unwarp and lang/mutator.PrimaryPass.
func Validate(fn *ast.FunctionDefinition, warped bool) error {
	if warped {
		return validateWarped(fn)
	}
	return validateStructured(fn)
}

func validateWarped(fn *ast.FunctionDefinition) error {
	n := len(fn.Body.Contents)
	for i, node := range fn.Body.Contents {
		blk, ok := node.(*ast.Block)
		if !ok {
			return &StructuralError{Message: "warped body must contain only blocks", Blocks: []int{i}}
		}
		if blk.Warp == nil {
			return &StructuralError{Message: "block has no warp", Blocks: []int{i}}
		}
		for _, target := range warpTargets(blk.Warp) {
			if target < 0 || target >= n {
				return &StructuralError{Message: fmt.Sprintf("warp target %d out of range", target), Blocks: []int{i}}
			}
		}
		if err := noWarpAsStatement(blk.Contents, i); err != nil {
			return err
		}
	}
	return nil
}

func warpTargets(w ast.Node) []int {
	switch w := w.(type) {
	case *ast.UnconditionalWarp:
		return []int{w.Target}
	case *ast.ConditionalWarp:
		return []int{w.TrueTarget, w.FalseTarget}
	case *ast.IteratorWarp:
		return []int{w.BodyTarget, w.WayOutTarget}
	case *ast.NumericLoopWarp:
		return []int{w.BodyTarget, w.WayOutTarget}
	case *ast.EndWarp:
		return nil
	default:
		return nil
	}
}

func isWarpNode(n ast.Node) bool {
	switch n.(type) {
	case *ast.UnconditionalWarp, *ast.ConditionalWarp, *ast.IteratorWarp, *ast.NumericLoopWarp, *ast.EndWarp:
		return true
	default:
		return false
	}
}

func noWarpAsStatement(list *ast.StatementsList, blockIndex int) error {
	for _, n := range list.Contents {
		if isWarpNode(n) {
			return &StructuralError{Message: "warp node appears as a statement", Blocks: []int{blockIndex}}
		}
	}
	return nil
}

// validateStructured walks the fully unwarped tree. lang/unwarp never
// leaves a *ast.Block or bare warp node behind — Unwarp replaces
// fn.Body.Contents with the root block's own contents on success — so the
// "no warps except the terminal EndWarp" half of this check amounts to
// confirming that invariant still holds; the remainder enforces break
// scoping, definition-before-use, and return placement.
func validateStructured(fn *ast.FunctionDefinition) error {
	v := &structuredWalk{defined: map[string]bool{}}
	if err := v.statements(fn.Body); err != nil {
		return err
	}
	return nil
}

type structuredWalk struct {
	defined   map[string]bool
	loopDepth int
}

func (v *structuredWalk) clone() *structuredWalk {
	cp := make(map[string]bool, len(v.defined))
	for k := range v.defined {
		cp[k] = true
	}
	return &structuredWalk{defined: cp, loopDepth: v.loopDepth}
}

func (v *structuredWalk) statements(list *ast.StatementsList) error {
	for i, n := range list.Contents {
		if _, ok := n.(*ast.Return); ok && i != len(list.Contents)-1 {
			return &StructuralError{Message: "return is not the last statement of its enclosing block"}
		}
		if err := v.statement(n); err != nil {
			return err
		}
	}
	return nil
}

func (v *structuredWalk) statement(n ast.Node) error {
	switch t := n.(type) {
	case *ast.Block:
		return &StructuralError{Message: "unreduced block survives past unwarping"}
	case *ast.UnconditionalWarp, *ast.ConditionalWarp, *ast.IteratorWarp, *ast.NumericLoopWarp:
		return &StructuralError{Message: "warp node survives past unwarping"}
	case *ast.EndWarp:
		return nil

	case *ast.Break:
		if v.loopDepth == 0 {
			return &StructuralError{Message: "break is not lexically inside a loop"}
		}
		return nil

	case *ast.Return:
		return v.checkExprList(t.Values)

	case *ast.Assignment:
		if err := v.checkExprList(t.Expressions); err != nil {
			return err
		}
		if t.Kind == ast.LocalDefinition {
			v.defineAll(t.Destinations)
			return nil
		}
		return v.checkVarList(t.Destinations)

	case *ast.FunctionCall:
		if err := v.checkExpr(t.Function); err != nil {
			return err
		}
		return v.checkExprList(t.Arguments)

	case *ast.NoOp:
		return nil

	case *ast.If:
		if err := v.checkExpr(t.Expression); err != nil {
			return err
		}
		if err := v.clone().statements(t.Then); err != nil {
			return err
		}
		for _, e := range t.ElseIfs {
			if err := v.checkExpr(e.Expression); err != nil {
				return err
			}
			if err := v.clone().statements(e.Then); err != nil {
				return err
			}
		}
		return v.clone().statements(t.Else)

	case *ast.While:
		if err := v.checkExpr(t.Expression); err != nil {
			return err
		}
		body := v.clone()
		body.loopDepth++
		return body.statements(t.Body)

	case *ast.RepeatUntil:
		body := v.clone()
		body.loopDepth++
		if err := body.statements(t.Body); err != nil {
			return err
		}
		return body.checkExpr(t.Expression)

	case *ast.NumericFor:
		if err := v.checkExprList(t.Expressions); err != nil {
			return err
		}
		body := v.clone()
		body.loopDepth++
		body.define(t.Variable)
		return body.statements(t.Body)

	case *ast.IteratorFor:
		if err := v.checkExprList(t.Expressions); err != nil {
			return err
		}
		body := v.clone()
		body.loopDepth++
		body.defineAll(t.Identifiers)
		return body.statements(t.Body)

	default:
		return &StructuralError{Message: fmt.Sprintf("unexpected statement node %T", n)}
	}
}

func (v *structuredWalk) define(n ast.Node) {
	if id, ok := n.(*ast.Identifier); ok && id.Kind == ast.IdentLocal {
		v.defined[id.Name] = true
	}
}

func (v *structuredWalk) defineAll(list *ast.VariablesList) {
	for _, n := range list.Contents {
		v.define(n)
	}
}

func (v *structuredWalk) checkVarList(list *ast.VariablesList) error {
	for _, n := range list.Contents {
		if err := v.checkExpr(n); err != nil {
			return err
		}
	}
	return nil
}

func (v *structuredWalk) checkExprList(list *ast.ExpressionsList) error {
	for _, n := range list.Contents {
		if err := v.checkExpr(n); err != nil {
			return err
		}
	}
	return nil
}

// checkExpr confirms every local identifier reachable from n was already
// defined by a preceding LocalDefinition in an enclosing or earlier
// sibling scope. Slots, upvalues and builtins carry no such obligation.
func (v *structuredWalk) checkExpr(n ast.Node) error {
	switch t := n.(type) {
	case nil:
		return nil
	case *ast.Identifier:
		if t.Kind == ast.IdentLocal && !v.defined[t.Name] {
			return &StructuralError{Message: fmt.Sprintf("local %q used before its definition", t.Name)}
		}
		return nil
	case *ast.Constant, *ast.Primitive, *ast.Vararg:
		return nil
	case *ast.Multres:
		return nil
	case *ast.BinaryOperator:
		if err := v.checkExpr(t.Left); err != nil {
			return err
		}
		return v.checkExpr(t.Right)
	case *ast.UnaryOperator:
		return v.checkExpr(t.Operand)
	case *ast.GetItem:
		if err := v.checkExpr(t.Table); err != nil {
			return err
		}
		return v.checkExpr(t.Key)
	case *ast.FunctionCall:
		if err := v.checkExpr(t.Function); err != nil {
			return err
		}
		return v.checkExprList(t.Arguments)
	case *ast.TableConstructor:
		for _, r := range t.Array.Contents {
			if err := v.checkExpr(r.(*ast.ArrayRecord).Value); err != nil {
				return err
			}
		}
		for _, r := range t.Records.Contents {
			rec := r.(*ast.TableRecord)
			if err := v.checkExpr(rec.Key); err != nil {
				return err
			}
			if err := v.checkExpr(rec.Value); err != nil {
				return err
			}
		}
		return nil
	case *ast.FunctionDefinition:
		// A nested closure resolves its own locals independently; it is
		// validated on its own by a separate Validate call.
		return nil
	default:
		return &StructuralError{Message: fmt.Sprintf("unexpected expression node %T", n)}
	}
}
