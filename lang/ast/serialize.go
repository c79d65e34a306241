package ast

import "fmt"

// Dict is the tagged-map representation produced by ToDict and consumed by
// LoadDict, mirroring the original implementation's to_dict()/load_dict()
// round-trip used by its golden-file tests. Every entry carries a "_kind"
// tag naming the Go type so LoadDict can reconstruct the right node.
type Dict map[string]any

// Ref stands in for a Node that has already been emitted once elsewhere in
// the same ToDict walk, recorded by node ID, so a node pointer reached a
// second time is not serialized twice. Warps name their target blocks by
// index, not by pointer, so the block list on its own never reaches the
// same Block twice.
type Ref struct {
	ID int
}

// dictEncoder tracks which node IDs have already been fully serialized in
// the current ToDict call, so repeated visits become Ref entries instead
// of being re-emitted or, for a cyclic graph, recursing forever. A fresh
// encoder is used per top-level ToDict call: it is explicitly not package
// state, unlike the original's global recursion guards (spec.md §9).
type dictEncoder struct {
	seen map[int]bool
}

// ToDict serializes n into a tagged-dict tree suitable for JSON encoding
// or for diffing against a golden fixture with internal/filetest.
func ToDict(n Node) Dict {
	enc := &dictEncoder{seen: make(map[int]bool)}
	return enc.encode(n)
}

func (e *dictEncoder) encode(n Node) Dict {
	if n == nil {
		return nil
	}
	if e.seen[n.ID()] {
		return Dict{"_kind": "Ref", "id": n.ID()}
	}
	e.seen[n.ID()] = true

	d := Dict{"_kind": n.Kind().String(), "id": n.ID()}
	switch t := n.(type) {
	case *FunctionDefinition:
		d["arguments"] = e.encode(t.Arguments)
		d["is_vararg"] = t.IsVararg
		d["body"] = e.encode(t.Body)
		d["source_name"] = t.SourceName
		upvalues := make([]Dict, len(t.Upvalues))
		for i, u := range t.Upvalues {
			upvalues[i] = Dict{"name": u.Name, "from_parent": u.FromParent, "index": u.Index}
		}
		d["upvalues"] = upvalues
		if t.Error != nil {
			d["error"] = t.Error.Error()
		}
	case *StatementsList:
		d["contents"] = e.encodeList(t.Contents)
	case *IdentifiersList:
		ids := make([]any, len(t.Contents))
		for i, c := range t.Contents {
			ids[i] = e.encode(c)
		}
		d["contents"] = ids
	case *ExpressionsList:
		d["contents"] = e.encodeList(t.Contents)
	case *VariablesList:
		d["contents"] = e.encodeList(t.Contents)
	case *RecordsList:
		d["contents"] = e.encodeList(t.Contents)
	case *Block:
		d["index"] = t.Index
		d["first_address"] = t.FirstAddress
		d["last_address"] = t.LastAddress
		d["contents"] = e.encode(t.Contents)
		d["warp"] = e.encode(t.Warp)
		d["warpins_count"] = t.WarpinsCount
		d["loop"] = t.Loop
	case *If:
		d["expression"] = e.encode(t.Expression)
		d["then"] = e.encode(t.Then)
		elseifs := make([]Dict, len(t.ElseIfs))
		for i, b := range t.ElseIfs {
			elseifs[i] = e.encode(b)
		}
		d["elseifs"] = elseifs
		d["else"] = e.encode(t.Else)
	case *ElseIf:
		d["expression"] = e.encode(t.Expression)
		d["then"] = e.encode(t.Then)
	case *While:
		d["expression"] = e.encode(t.Expression)
		d["body"] = e.encode(t.Body)
	case *RepeatUntil:
		d["expression"] = e.encode(t.Expression)
		d["body"] = e.encode(t.Body)
	case *NumericFor:
		d["variable"] = e.encodeIdentifier(t.Variable)
		d["expressions"] = e.encode(t.Expressions)
		d["body"] = e.encode(t.Body)
	case *IteratorFor:
		d["identifiers"] = e.encode(t.Identifiers)
		d["expressions"] = e.encode(t.Expressions)
		d["body"] = e.encode(t.Body)
	case *Return:
		d["values"] = e.encode(t.Values)
	case *Break:
		// no fields
	case *Assignment:
		d["destinations"] = e.encode(t.Destinations)
		d["expressions"] = e.encode(t.Expressions)
		d["kind"] = int(t.Kind)
	case *FunctionCall:
		d["function"] = e.encode(t.Function)
		d["arguments"] = e.encode(t.Arguments)
		d["is_method"] = t.IsMethod
	case *NoOp:
		// no fields
	case *BinaryOperator:
		d["op"] = t.Op.String()
		d["left"] = e.encode(t.Left)
		d["right"] = e.encode(t.Right)
	case *UnaryOperator:
		d["op"] = t.Op.String()
		d["operand"] = e.encode(t.Operand)
	case *GetItem:
		d["table"] = e.encode(t.Table)
		d["key"] = e.encode(t.Key)
	case *TableConstructor:
		d["array"] = e.encode(t.Array)
		d["records"] = e.encode(t.Records)
	case *ArrayRecord:
		d["value"] = e.encode(t.Value)
	case *TableRecord:
		d["key"] = e.encode(t.Key)
		d["value"] = e.encode(t.Value)
	case *Identifier:
		d["name"] = t.Name
		d["ident_kind"] = int(t.Kind)
		d["slot"] = t.Slot
		d["slot_id"] = t.ID
	case *Constant:
		d["const_kind"] = int(t.Kind)
		d["value"] = t.Value
	case *Primitive:
		d["prim_kind"] = int(t.Kind)
	case *Vararg:
		// no fields
	case *Multres:
		// no fields
	case *UnconditionalWarp:
		d["warp_kind"] = int(t.WarpKind)
		d["target"] = t.Target
		d["is_uclo"] = t.IsUCLO
	case *ConditionalWarp:
		d["condition"] = e.encode(t.Condition)
		d["true_target"] = t.TrueTarget
		d["false_target"] = t.FalseTarget
	case *IteratorWarp:
		d["variables"] = e.encode(t.Variables)
		d["controls"] = e.encode(t.Controls)
		d["body_target"] = t.BodyTarget
		d["way_out_target"] = t.WayOutTarget
	case *NumericLoopWarp:
		d["variable"] = e.encodeIdentifier(t.Variable)
		d["expressions"] = e.encode(t.Expressions)
		d["body_target"] = t.BodyTarget
		d["way_out_target"] = t.WayOutTarget
	case *EndWarp:
		// no fields
	default:
		panic(fmt.Sprintf("ast: ToDict: unhandled node type %T", n))
	}
	return d
}

// encodeIdentifier handles the *Identifier-typed optional fields
// (NumericFor.Variable, NumericLoopWarp.Variable): passing a nil
// *Identifier through encode's Node parameter would box it into a
// non-nil interface value and panic on the ID() call, so these fields
// are special-cased here instead of funneled through encode.
func (e *dictEncoder) encodeIdentifier(ident *Identifier) Dict {
	if ident == nil {
		return nil
	}
	return e.encode(ident)
}

func (e *dictEncoder) encodeList(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = e.encode(n)
	}
	return out
}

// dictDecoder mirrors dictEncoder: it registers a node under its original
// ID as soon as that node's own dict has been fully decoded, so that a
// later Ref to the same ID resolves to the same Go pointer. This is safe
// precisely because encode() marks an ID "seen" before descending into
// children and LoadDict walks the resulting Dict in the same depth-first
// order encode produced it in: a Ref can only appear after the dict of
// the node it names has already been decoded in full.
type dictDecoder struct {
	byID map[int]Node
}

// LoadDict reconstructs the tree ToDict produced. It panics on a
// malformed Dict (unknown "_kind", missing field, or a Ref to an ID that
// has not been decoded yet) since Dict values are only ever meant to
// round-trip a tree this package itself produced.
func LoadDict(d Dict) Node {
	dec := &dictDecoder{byID: make(map[int]Node)}
	return dec.decode(d)
}

func (dc *dictDecoder) decode(v any) Node {
	if v == nil {
		return nil
	}
	d, ok := v.(Dict)
	if !ok {
		panic(fmt.Sprintf("ast: LoadDict: expected Dict, got %T", v))
	}
	kind, _ := d["_kind"].(string)
	if kind == "Ref" {
		id := d["id"].(int)
		n, ok := dc.byID[id]
		if !ok {
			panic(fmt.Sprintf("ast: LoadDict: dangling Ref to id %d", id))
		}
		return n
	}

	id := d["id"].(int)
	var n Node
	switch kind {
	case "FunctionDefinition":
		t := NewFunctionDefinition()
		t.Arguments = dc.decodeIdentifiersList(d["arguments"])
		t.IsVararg, _ = d["is_vararg"].(bool)
		t.Body = dc.decodeStatementsList(d["body"])
		t.SourceName, _ = d["source_name"].(string)
		for _, u := range d["upvalues"].([]Dict) {
			t.Upvalues = append(t.Upvalues, UpvalueDescriptor{
				Name:       u["name"].(string),
				FromParent: u["from_parent"].(bool),
				Index:      u["index"].(int),
			})
		}
		if errText, ok := d["error"].(string); ok {
			t.Error = fmt.Errorf("%s", errText)
		}
		n = t
	case "StatementsList":
		n = dc.decodeStatementsList(d)
	case "IdentifiersList":
		n = dc.decodeIdentifiersList(d)
	case "ExpressionsList":
		n = dc.decodeExpressionsList(d)
	case "VariablesList":
		n = dc.decodeVariablesList(d)
	case "RecordsList":
		n = dc.decodeRecordsList(d)
	case "Block":
		t := NewBlock(d["index"].(int))
		t.FirstAddress, _ = d["first_address"].(int)
		t.LastAddress, _ = d["last_address"].(int)
		t.Contents = dc.decodeStatementsList(d["contents"])
		t.Warp = dc.decode(d["warp"])
		t.WarpinsCount, _ = d["warpins_count"].(int)
		t.Loop, _ = d["loop"].(bool)
		n = t
	case "If":
		t := NewIf()
		t.Expression = dc.decode(d["expression"])
		t.Then = dc.decodeStatementsList(d["then"])
		for _, e := range d["elseifs"].([]Dict) {
			t.ElseIfs = append(t.ElseIfs, dc.decode(e).(*ElseIf))
		}
		t.Else = dc.decodeStatementsList(d["else"])
		n = t
	case "ElseIf":
		t := NewElseIf()
		t.Expression = dc.decode(d["expression"])
		t.Then = dc.decodeStatementsList(d["then"])
		n = t
	case "While":
		t := NewWhile()
		t.Expression = dc.decode(d["expression"])
		t.Body = dc.decodeStatementsList(d["body"])
		n = t
	case "RepeatUntil":
		t := NewRepeatUntil()
		t.Expression = dc.decode(d["expression"])
		t.Body = dc.decodeStatementsList(d["body"])
		n = t
	case "NumericFor":
		t := NewNumericFor()
		if ident := dc.decode(d["variable"]); ident != nil {
			t.Variable = ident.(*Identifier)
		}
		t.Expressions = dc.decodeExpressionsList(d["expressions"])
		t.Body = dc.decodeStatementsList(d["body"])
		n = t
	case "IteratorFor":
		t := NewIteratorFor()
		t.Identifiers = dc.decodeVariablesList(d["identifiers"])
		t.Expressions = dc.decodeExpressionsList(d["expressions"])
		t.Body = dc.decodeStatementsList(d["body"])
		n = t
	case "Return":
		t := NewReturn()
		t.Values = dc.decodeExpressionsList(d["values"])
		n = t
	case "Break":
		n = NewBreak()
	case "Assignment":
		t := NewAssignment()
		t.Destinations = dc.decodeVariablesList(d["destinations"])
		t.Expressions = dc.decodeExpressionsList(d["expressions"])
		t.Kind = AssignmentKind(d["kind"].(int))
		n = t
	case "FunctionCall":
		t := NewFunctionCall()
		t.Function = dc.decode(d["function"])
		t.Arguments = dc.decodeExpressionsList(d["arguments"])
		t.IsMethod, _ = d["is_method"].(bool)
		n = t
	case "NoOp":
		n = NewNoOp()
	case "BinaryOperator":
		op := binaryOperatorKindFromString(d["op"].(string))
		n = NewBinaryOperator(op, dc.decode(d["left"]), dc.decode(d["right"]))
	case "UnaryOperator":
		op := unaryOperatorKindFromString(d["op"].(string))
		n = NewUnaryOperator(op, dc.decode(d["operand"]))
	case "GetItem":
		n = NewGetItem(dc.decode(d["table"]), dc.decode(d["key"]))
	case "TableConstructor":
		t := NewTableConstructor()
		t.Array = dc.decodeRecordsList(d["array"])
		t.Records = dc.decodeRecordsList(d["records"])
		n = t
	case "ArrayRecord":
		n = NewArrayRecord(dc.decode(d["value"]))
	case "TableRecord":
		n = NewTableRecord(dc.decode(d["key"]), dc.decode(d["value"]))
	case "Identifier":
		t := &Identifier{base: newBase(KindIdentifier)}
		t.Name, _ = d["name"].(string)
		t.Kind = IdentifierKind(d["ident_kind"].(int))
		t.Slot, _ = d["slot"].(int)
		t.ID, _ = d["slot_id"].(int)
		n = t
	case "Constant":
		n = NewConstant(ConstantKind(d["const_kind"].(int)), d["value"])
	case "Primitive":
		n = NewPrimitive(PrimitiveKind(d["prim_kind"].(int)))
	case "Vararg":
		n = NewVararg()
	case "MULTRES":
		n = NewMultres()
	case "UnconditionalWarp":
		t := NewUnconditionalWarp(UnconditionalWarpKind(d["warp_kind"].(int)), d["target"].(int))
		t.IsUCLO, _ = d["is_uclo"].(bool)
		n = t
	case "ConditionalWarp":
		n = NewConditionalWarp(dc.decode(d["condition"]), d["true_target"].(int), d["false_target"].(int))
	case "IteratorWarp":
		t := NewIteratorWarp()
		t.Variables = dc.decodeVariablesList(d["variables"])
		t.Controls = dc.decodeExpressionsList(d["controls"])
		t.BodyTarget, _ = d["body_target"].(int)
		t.WayOutTarget, _ = d["way_out_target"].(int)
		n = t
	case "NumericLoopWarp":
		t := NewNumericLoopWarp()
		if ident := dc.decode(d["variable"]); ident != nil {
			t.Variable = ident.(*Identifier)
		}
		t.Expressions = dc.decodeExpressionsList(d["expressions"])
		t.BodyTarget, _ = d["body_target"].(int)
		t.WayOutTarget, _ = d["way_out_target"].(int)
		n = t
	case "EndWarp":
		n = NewEndWarp()
	default:
		panic(fmt.Sprintf("ast: LoadDict: unknown kind %q", kind))
	}

	dc.byID[id] = n
	return n
}

func (dc *dictDecoder) decodeStatementsList(v any) *StatementsList {
	d, ok := v.(Dict)
	if !ok {
		return NewStatementsList()
	}
	contents := d["contents"].([]any)
	out := NewStatementsList(make([]Node, len(contents))...)
	for i, c := range contents {
		out.Contents[i] = dc.decode(c)
	}
	dc.byID[d["id"].(int)] = out
	return out
}

func (dc *dictDecoder) decodeIdentifiersList(v any) *IdentifiersList {
	d, ok := v.(Dict)
	if !ok {
		return NewIdentifiersList()
	}
	contents := d["contents"].([]any)
	out := NewIdentifiersList(make([]*Identifier, len(contents))...)
	for i, c := range contents {
		out.Contents[i] = dc.decode(c).(*Identifier)
	}
	dc.byID[d["id"].(int)] = out
	return out
}

func (dc *dictDecoder) decodeExpressionsList(v any) *ExpressionsList {
	d, ok := v.(Dict)
	if !ok {
		return NewExpressionsList()
	}
	contents := d["contents"].([]any)
	out := NewExpressionsList(make([]Node, len(contents))...)
	for i, c := range contents {
		out.Contents[i] = dc.decode(c)
	}
	dc.byID[d["id"].(int)] = out
	return out
}

func (dc *dictDecoder) decodeVariablesList(v any) *VariablesList {
	d, ok := v.(Dict)
	if !ok {
		return NewVariablesList()
	}
	contents := d["contents"].([]any)
	out := NewVariablesList(make([]Node, len(contents))...)
	for i, c := range contents {
		out.Contents[i] = dc.decode(c)
	}
	dc.byID[d["id"].(int)] = out
	return out
}

func (dc *dictDecoder) decodeRecordsList(v any) *RecordsList {
	d, ok := v.(Dict)
	if !ok {
		return NewRecordsList()
	}
	contents := d["contents"].([]any)
	out := NewRecordsList(make([]Node, len(contents))...)
	for i, c := range contents {
		out.Contents[i] = dc.decode(c)
	}
	dc.byID[d["id"].(int)] = out
	return out
}

func binaryOperatorKindFromString(s string) BinaryOperatorKind {
	for k, name := range binaryOperatorNames {
		if name == s {
			return k
		}
	}
	panic(fmt.Sprintf("ast: LoadDict: unknown binary operator %q", s))
}

func unaryOperatorKindFromString(s string) UnaryOperatorKind {
	for k, name := range unaryOperatorNames {
		if name == s {
			return k
		}
	}
	panic(fmt.Sprintf("ast: LoadDict: unknown unary operator %q", s))
}
