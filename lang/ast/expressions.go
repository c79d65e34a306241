package ast

import "fmt"

// BinaryOperatorKind assigns ordered numeric codes so that range tests
// yield precedence levels (spec.md §3): the groupings below, not the raw
// kind value, are what decide precedence, associativity and commutativity.
type BinaryOperatorKind int

const (
	OpOr BinaryOperatorKind = iota // left or right
	OpAnd

	OpLessThan
	OpGreaterThan
	OpLessOrEqual
	OpGreaterOrEqual
	OpNotEqual
	OpEqual

	OpConcat

	OpAdd
	OpSubtract

	OpMultiply
	OpDivide
	OpMod

	OpPow
)

// Precedence levels. Unary shares the numbering with binary per spec.md §3.
const (
	PrecedenceOr = iota + 1
	PrecedenceAnd
	PrecedenceComparison
	PrecedenceConcat
	PrecedenceAddSub
	PrecedenceMul
	PrecedenceUnary
	PrecedenceExponent
)

var binaryOperatorNames = map[BinaryOperatorKind]string{
	OpOr: "or", OpAnd: "and",
	OpLessThan: "<", OpGreaterThan: ">", OpLessOrEqual: "<=", OpGreaterOrEqual: ">=",
	OpNotEqual: "~=", OpEqual: "==",
	OpConcat: "..",
	OpAdd:    "+", OpSubtract: "-",
	OpMultiply: "*", OpDivide: "/", OpMod: "%",
	OpPow: "^",
}

func (k BinaryOperatorKind) String() string {
	if s, ok := binaryOperatorNames[k]; ok {
		return s
	}
	return fmt.Sprintf("BinaryOperatorKind(%d)", int(k))
}

// Precedence returns this operator's precedence level. Use this rather than
// comparing Kind values directly: operators at the same level (e.g. + and
// -) must compare equal.
func (k BinaryOperatorKind) Precedence() int {
	switch {
	case k <= OpOr:
		return PrecedenceOr
	case k <= OpAnd:
		return PrecedenceAnd
	case k <= OpEqual:
		return PrecedenceComparison
	case k <= OpConcat:
		return PrecedenceConcat
	case k <= OpSubtract:
		return PrecedenceAddSub
	case k <= OpMod:
		return PrecedenceMul
	case k <= OpPow:
		return PrecedenceExponent
	default:
		panic(fmt.Sprintf("invalid binary operator kind %d", int(k)))
	}
}

// IsRightAssociative reports whether the operator groups right-to-left.
// Concat is left-grouped here even though the Lua manual calls it right-
// associative: lang/builder lifts a CAT slot range as a left-nested chain,
// and keeping this false prints that chain as `a .. b .. c` without
// parentheses.
func (k BinaryOperatorKind) IsRightAssociative() bool {
	return k == OpPow
}

// IsCommutative reports whether swapping the operands leaves the result
// unchanged.
func (k BinaryOperatorKind) IsCommutative() bool {
	switch {
	case k <= OpAnd:
		return true
	case k <= OpGreaterOrEqual:
		return false
	case k <= OpEqual:
		return true
	case k <= OpConcat:
		return false
	case k <= OpAdd:
		return true
	case k <= OpSubtract:
		return false
	case k <= OpMultiply:
		return true
	case k <= OpMod:
		return false
	case k <= OpPow:
		return false
	default:
		panic(fmt.Sprintf("invalid binary operator kind %d", int(k)))
	}
}

// BinaryOperator represents `left op right`.
type BinaryOperator struct {
	base
	Left, Right Node
	Op          BinaryOperatorKind
}

func NewBinaryOperator(op BinaryOperatorKind, left, right Node) *BinaryOperator {
	return &BinaryOperator{base: newBase(KindBinaryOperator), Op: op, Left: left, Right: right}
}

func (n *BinaryOperator) Accept(v Visitor) {
	v.EnterBinaryOperator(n)
	n.Left.Accept(v)
	n.Right.Accept(v)
	v.LeaveBinaryOperator(n)
}

// UnaryOperatorKind enumerates the unary operators. T_TOSTRING/T_TONUMBER
// are only produced on bytecode revision 2.1.
type UnaryOperatorKind int

const (
	OpNot UnaryOperatorKind = iota
	OpLength
	OpMinus
	OpToString
	OpToNumber
)

var unaryOperatorNames = map[UnaryOperatorKind]string{
	OpNot: "not", OpLength: "#", OpMinus: "-", OpToString: "tostring", OpToNumber: "tonumber",
}

func (k UnaryOperatorKind) String() string {
	if s, ok := unaryOperatorNames[k]; ok {
		return s
	}
	return fmt.Sprintf("UnaryOperatorKind(%d)", int(k))
}

// UnaryOperator represents `op operand`, i.e. `not x`, `#x`, `-x`, or (on
// bytecode revision 2.1 only) the synthetic tostring()/tonumber() unary
// forms LuaJIT emits for certain coercions.
type UnaryOperator struct {
	base
	Operand Node
	Op      UnaryOperatorKind
}

func NewUnaryOperator(op UnaryOperatorKind, operand Node) *UnaryOperator {
	return &UnaryOperator{base: newBase(KindUnaryOperator), Op: op, Operand: operand}
}

func (n *UnaryOperator) Accept(v Visitor) {
	v.EnterUnaryOperator(n)
	n.Operand.Accept(v)
	v.LeaveUnaryOperator(n)
}

// GetItem represents `table[key]`. A table access whose key is a string
// constant is still modeled as GetItem; the emitter (lang/luawriter)
// decides whether to print `t.name` or `t["name"]` sugar.
type GetItem struct {
	base
	Table, Key Node
}

func NewGetItem(table, key Node) *GetItem {
	return &GetItem{base: newBase(KindGetItem), Table: table, Key: key}
}

// Accept visits Key before Table, matching the evaluation order of the
// generated bytecode (the key is computed, then the table is indexed).
func (n *GetItem) Accept(v Visitor) {
	v.EnterGetItem(n)
	n.Key.Accept(v)
	n.Table.Accept(v)
	v.LeaveGetItem(n)
}

// TableConstructor represents `{ ... }`. Array and Records are kept apart
// so the emitter can print `{1, 2, x = 3}` without resorting the entries.
type TableConstructor struct {
	base
	Array   *RecordsList
	Records *RecordsList
}

func NewTableConstructor() *TableConstructor {
	return &TableConstructor{
		base:    newBase(KindTableConstructor),
		Array:   NewRecordsList(),
		Records: NewRecordsList(),
	}
}

func (n *TableConstructor) Accept(v Visitor) {
	v.EnterTableConstructor(n)
	n.Array.Accept(v)
	n.Records.Accept(v)
	v.LeaveTableConstructor(n)
}

// ArrayRecord is a positional entry of a TableConstructor.
type ArrayRecord struct {
	base
	Value Node
}

func NewArrayRecord(value Node) *ArrayRecord {
	return &ArrayRecord{base: newBase(KindArrayRecord), Value: value}
}

func (n *ArrayRecord) Accept(v Visitor) {
	v.EnterArrayRecord(n)
	n.Value.Accept(v)
	v.LeaveArrayRecord(n)
}

// TableRecord is a keyed entry of a TableConstructor, `[key] = value`.
type TableRecord struct {
	base
	Key, Value Node
}

func NewTableRecord(key, value Node) *TableRecord {
	return &TableRecord{base: newBase(KindTableRecord), Key: key, Value: value}
}

func (n *TableRecord) Accept(v Visitor) {
	v.EnterTableRecord(n)
	n.Key.Accept(v)
	n.Value.Accept(v)
	v.LeaveTableRecord(n)
}

// IdentifierKind distinguishes the four ways an Identifier can resolve.
type IdentifierKind int

const (
	// IdentSlot is a raw virtual register reference, not yet (or never)
	// classified as a local by lang/locals.
	IdentSlot IdentifierKind = iota
	// IdentLocal is a named local variable, backed by debug info. A slot
	// with no covering debug range stays IdentSlot.
	IdentLocal
	// IdentUpvalue is a closed-over variable from an enclosing function.
	IdentUpvalue
	// IdentBuiltin is a global or library name resolved against the Lua 5.1
	// standard environment, e.g. `print`, `pairs`, `_G`.
	IdentBuiltin
)

// Identifier represents a variable reference of any of the four kinds
// above (called Name in the Lua 5.1 reference grammar).
type Identifier struct {
	base
	Name string // resolved or synthetic name; empty only for a bare Slot
	Kind IdentifierKind
	Slot int // valid (>= 0) only when Kind == IdentSlot or as the origin slot of a Local
	ID   int // lifetime id assigned by lang/slotworks' identify pass; lang/luawriter does not print it
}

func NewSlotIdentifier(slot int) *Identifier {
	return &Identifier{base: newBase(KindIdentifier), Kind: IdentSlot, Slot: slot, ID: -1}
}

func NewBuiltinIdentifier(name string) *Identifier {
	return &Identifier{base: newBase(KindIdentifier), Kind: IdentBuiltin, Name: name, Slot: -1, ID: -1}
}

// NewUpvalueIdentifier builds a reference to the enclosing function's
// upvalue at the given index. name is the debug-info name when present,
// or a synthetic "upvalN" name when the dump is stripped.
func NewUpvalueIdentifier(name string, index int) *Identifier {
	return &Identifier{base: newBase(KindIdentifier), Kind: IdentUpvalue, Name: name, Slot: index, ID: -1}
}

func (n *Identifier) Accept(v Visitor) {
	v.EnterIdentifier(n)
	v.LeaveIdentifier(n)
}

// ConstantKind enumerates the literal kinds carried by a Constant node.
type ConstantKind int

const (
	ConstInteger ConstantKind = iota
	ConstFloat
	ConstString
	ConstCData
)

// Constant represents a literal number, string or cdata value pulled from
// a prototype's constant pool.
type Constant struct {
	base
	Kind  ConstantKind
	Value any // int64, float64, string, or a CData payload
}

func NewConstant(kind ConstantKind, value any) *Constant {
	return &Constant{base: newBase(KindConstant), Kind: kind, Value: value}
}

func (n *Constant) Accept(v Visitor) {
	v.EnterConstant(n)
	v.LeaveConstant(n)
}

// PrimitiveKind enumerates the three LuaJIT primitive immediates.
type PrimitiveKind int

const (
	PrimNil PrimitiveKind = iota
	PrimTrue
	PrimFalse
)

// Primitive represents the literals `nil`, `true` and `false`.
type Primitive struct {
	base
	Kind PrimitiveKind
}

func NewPrimitive(kind PrimitiveKind) *Primitive {
	return &Primitive{base: newBase(KindPrimitive), Kind: kind}
}

func (n *Primitive) Accept(v Visitor) {
	v.EnterPrimitive(n)
	v.LeavePrimitive(n)
}

// Vararg represents the `...` expression in a vararg function.
type Vararg struct{ base }

func NewVararg() *Vararg { return &Vararg{base: newBase(KindVararg)} }

func (n *Vararg) Accept(v Visitor) {
	v.EnterVararg(n)
	v.LeaveVararg(n)
}

// Multres stands for "all results of the most recent multi-value
// producer". Per spec.md §3 it may appear only as the last expression of
// a Return, the last argument of a FunctionCall, or the sole right-hand
// side of a multi-value Assignment.
type Multres struct{ base }

func NewMultres() *Multres { return &Multres{base: newBase(KindMultres)} }

func (n *Multres) Accept(v Visitor) {
	v.EnterMultres(n)
	v.LeaveMultres(n)
}
