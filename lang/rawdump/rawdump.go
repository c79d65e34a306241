// Package rawdump parses a LuaJIT bytecode dump into a header and a tree
// of prototypes, without interpreting what any instruction means. That
// interpretation is lang/builder's job; this package only knows the wire
// format (spec.md §4.1, C1).
package rawdump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/AzurLaneTools/ljd/lang/opcode"
)

// Magic is the three-byte signature every LuaJIT bytecode dump starts with.
var Magic = [3]byte{0x1B, 'L', 'J'}

// Header flags, packed into the single byte following the version byte.
const (
	FlagBigEndian = 1 << iota
	FlagStripped
	FlagFFI
	FlagFR2
)

// Header is the dump-wide preamble: version byte, flags, and (unless
// FlagStripped is set) the chunk name used for error messages.
type Header struct {
	Version   uint8
	Flags     uint8
	ChunkName string
}

func (h *Header) Stripped() bool  { return h.Flags&FlagStripped != 0 }
func (h *Header) HasFFI() bool    { return h.Flags&FlagFFI != 0 }
func (h *Header) BigEndian() bool { return h.Flags&FlagBigEndian != 0 }

// Instruction is one decoded 32-bit bytecode word: an opcode byte plus up
// to three operand fields, whose meaning depends on opcode.Shape.
type Instruction struct {
	Op   uint8
	A    uint8
	B    uint8
	C    uint8
	D    uint16 // valid when the opcode's Shape is ShapeAD or ShapeJ
}

// NumberKind distinguishes the two constant-pool numeric representations
// LuaJIT's tagged ULEB128 numeric constant encoding can produce.
type NumberKind int

const (
	NumberInt NumberKind = iota
	NumberFloat
)

// Number is a tagged numeric constant-pool entry. The tag lives in the
// low bit of the constant's leading ULEB128 word in the wire format; by
// the time it reaches this struct the distinction has already been made.
type Number struct {
	Kind  NumberKind
	Int   int64
	Float float64
}

// ConstantKind enumerates the kinds found in a prototype's GC constant
// table (string/table/function constants; numeric constants live in a
// separate, unboxed array per the LuaJIT format and are not part of this).
type ConstantKind int

const (
	ConstString ConstantKind = iota
	ConstTable
	ConstChildProto
	ConstCData
)

// Constant is one entry of a prototype's GC constant table.
type Constant struct {
	Kind  ConstantKind
	Str   string
	CData []byte
}

// LocalVar is one entry of the optional debug-info local variable range
// table: the name is live for instructions in [StartPC, EndPC).
type LocalVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// DebugInfo is the optional per-prototype debug section. A nil *DebugInfo
// on a Prototype means the dump was stripped; every downstream stage must
// treat that as "synthesize names instead."
type DebugInfo struct {
	FirstLine int
	NumLines  int
	LineMap   []int // LineMap[pc] = source line of instruction pc
	Locals    []LocalVar
	UpvalNames []string
}

// Prototype is one compiled function. Children appear in Prototype.Protos
// but are also emitted flat, in post-order, by the top-level dump (LuaJIT
// always emits a child before the parent that references it).
type Prototype struct {
	Flags       uint8
	NumParams   uint8
	FrameSize   uint8
	NumUpvalues uint8
	Instructions []Instruction
	Numbers     []Number
	Constants   []Constant
	Upvalues    []UpvalueRef
	Protos      []*Prototype
	Debug       *DebugInfo
}

func (p *Prototype) IsVararg() bool { return p.Flags&ProtoVararg != 0 }

// Prototype.Flags bits.
const (
	ProtoChild = 1 << iota
	ProtoVararg
	ProtoFFI
	ProtoJIT
	ProtoILoop
)

// UpvalueRef names where a prototype's Nth upvalue resolves in its
// immediately enclosing function, per the LuaJIT uvdata encoding: the low
// 14 bits are a slot/upvalue index and bit 15 selects which.
type UpvalueRef struct {
	Index      int
	FromParent bool
}

// reader wraps a bufio.Reader with the ULEB128 and fixed-width helpers the
// dump format needs; io errors short-circuit every subsequent read via err.
type reader struct {
	r   *bufio.Reader
	err error
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = err
	}
	return b
}

func (r *reader) bytes(n int) []byte {
	buf := make([]byte, n)
	if r.err != nil {
		return buf
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = err
	}
	return buf
}

// uleb128 reads an unsigned LEB128-encoded integer, LuaJIT's encoding for
// every variable-length field in the dump (string lengths, constant
// counts, jump-free operand fields that exceed a byte, etc).
func (r *reader) uleb128() uint64 {
	var result uint64
	var shift uint
	for {
		b := r.byte()
		if r.err != nil {
			return 0
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			r.err = errors.New("rawdump: ULEB128 overflow")
			return 0
		}
	}
	return result
}

// uleb128Tagged reads LuaJIT's variant ULEB128 used for the tagged numeric
// constant: the low bit of the first byte is a type tag, the remaining
// bits (shifted right by one across the whole varint) are the magnitude.
func (r *reader) uleb128Tagged() (tag uint64, value uint64) {
	raw := r.uleb128()
	return raw & 1, raw >> 1
}

// Parse reads one complete LuaJIT bytecode dump from src: the header and
// every prototype in the order LuaJIT emits them (post-order: a child
// always precedes the parent that references it, and the top-level chunk
// function is emitted last).
func Parse(src io.Reader, ctx *opcode.VersionedContext) (*Header, []*Prototype, error) {
	r := &reader{r: bufio.NewReader(src)}

	magic := r.bytes(3)
	if r.err != nil {
		return nil, nil, fmt.Errorf("rawdump: %w", r.err)
	}
	if magic[0] != Magic[0] || magic[1] != Magic[1] || magic[2] != Magic[2] {
		return nil, nil, &FormatError{Offset: 0, Reason: "bad magic"}
	}

	h := &Header{}
	h.Version = r.byte()
	h.Flags = r.byte()
	if !h.Stripped() {
		n := r.uleb128()
		h.ChunkName = string(r.bytes(int(n)))
	}
	if r.err != nil {
		return nil, nil, fmt.Errorf("rawdump: %w", r.err)
	}

	var protos []*Prototype
	for {
		sizeTag := r.uleb128()
		if r.err != nil {
			return nil, nil, fmt.Errorf("rawdump: %w", r.err)
		}
		if sizeTag == 0 {
			break // a zero-length "prototype" terminates the dump
		}
		p, err := parsePrototype(r, ctx, h)
		if err != nil {
			return h, protos, err
		}
		protos = append(protos, p)
	}
	linkPrototypes(protos)
	return h, protos, nil
}

// linkPrototypes populates each prototype's Protos from the flat post-order
// list Parse assembles. LuaJIT never records a parent/child link directly;
// it relies on emission order (every child before the parent that closes
// over it) plus each parent's own constant table, which carries one
// ConstChildProto entry per child in the same left-to-right order the
// source declared them. A stack reproduces the nesting: each prototype
// pops as many pending prototypes as it has ConstChildProto constants —
// those are exactly its children, most-recently-finished last — then
// pushes itself as the next parent's potential child.
func linkPrototypes(flat []*Prototype) {
	var pending []*Prototype
	for _, p := range flat {
		k := 0
		for _, c := range p.Constants {
			if c.Kind == ConstChildProto {
				k++
			}
		}
		if k > 0 {
			if k > len(pending) {
				k = len(pending)
			}
			children := make([]*Prototype, k)
			copy(children, pending[len(pending)-k:])
			p.Protos = children
			pending = pending[:len(pending)-k]
		}
		pending = append(pending, p)
	}
}

func parsePrototype(r *reader, ctx *opcode.VersionedContext, h *Header) (*Prototype, error) {
	p := &Prototype{}
	p.Flags = r.byte()
	p.NumParams = r.byte()
	p.FrameSize = r.byte()
	p.NumUpvalues = r.byte()

	numConsts := r.uleb128()
	numNumbers := r.uleb128()
	numInstructions := r.uleb128()

	var debugLen uint64
	var firstLine, numLines uint64
	if !h.Stripped() {
		debugLen = r.uleb128()
		firstLine = r.uleb128()
		numLines = r.uleb128()
	}

	table := ctx.Opcodes()
	p.Instructions = make([]Instruction, numInstructions)
	for i := range p.Instructions {
		word := r.bytes(4)
		if r.err != nil {
			return nil, fmt.Errorf("rawdump: reading instruction %d: %w", i, r.err)
		}
		op := word[0]
		entry, ok := table.Lookup(op)
		if !ok {
			return nil, &FormatError{Offset: -1, Reason: fmt.Sprintf("unknown opcode %d at instruction %d", op, i)}
		}
		inst := Instruction{Op: op}
		switch entry.Shape {
		case opcode.ShapeABC:
			inst.A, inst.B, inst.C = word[1], word[3], word[2]
		default: // ShapeAD, ShapeJ
			inst.A = word[1]
			inst.D = uint16(word[2]) | uint16(word[3])<<8
		}
		p.Instructions[i] = inst
	}

	p.Upvalues = make([]UpvalueRef, p.NumUpvalues)
	for i := range p.Upvalues {
		raw := uint16(r.byte()) | uint16(r.byte())<<8
		p.Upvalues[i] = UpvalueRef{Index: int(raw & 0x7fff), FromParent: raw&0x8000 == 0}
	}

	p.Constants = make([]Constant, numConsts)
	for i := range p.Constants {
		p.Constants[i] = parseConstant(r)
	}

	p.Numbers = make([]Number, numNumbers)
	for i := range p.Numbers {
		tag, value := r.uleb128Tagged()
		if tag == 0 {
			p.Numbers[i] = Number{Kind: NumberInt, Int: int64(int32(value))}
		} else {
			lo := uint32(value)
			hi := r.uleb128()
			bits := uint64(lo) | hi<<32
			p.Numbers[i] = Number{Kind: NumberFloat, Float: math.Float64frombits(bits)}
		}
	}

	if !h.Stripped() && debugLen > 0 {
		d := &DebugInfo{FirstLine: int(firstLine), NumLines: int(numLines)}
		lineSize := 4
		switch {
		case numLines < 256:
			lineSize = 1
		case numLines < 65536:
			lineSize = 2
		}
		d.LineMap = make([]int, numInstructions)
		for i := range d.LineMap {
			switch lineSize {
			case 1:
				d.LineMap[i] = int(r.byte())
			case 2:
				d.LineMap[i] = int(uint16(r.byte()) | uint16(r.byte())<<8)
			default:
				b := r.bytes(4)
				d.LineMap[i] = int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
			}
		}
		for {
			n := r.uleb128()
			if n == 0 {
				break
			}
			name := string(r.bytes(int(n)))
			startPC := int(r.uleb128())
			endPC := int(r.uleb128())
			d.Locals = append(d.Locals, LocalVar{Name: name, StartPC: startPC, EndPC: endPC})
		}
		for i := 0; i < int(p.NumUpvalues); i++ {
			n := r.uleb128()
			d.UpvalNames = append(d.UpvalNames, string(r.bytes(int(n))))
		}
		p.Debug = d
	}

	if r.err != nil {
		return nil, fmt.Errorf("rawdump: %w", r.err)
	}
	return p, nil
}

func parseConstant(r *reader) Constant {
	tag := r.uleb128()
	switch {
	case tag >= 5: // tag-5 is the length of an embedded string, biased by 5
		n := tag - 5
		return Constant{Kind: ConstString, Str: string(r.bytes(int(n)))}
	case tag == 0:
		return Constant{Kind: ConstChildProto}
	case tag == 1:
		return Constant{Kind: ConstTable}
	default:
		return Constant{Kind: ConstCData}
	}
}

// FormatError reports a malformed dump: bad magic, an unknown opcode, or
// a truncated/inconsistent section. Offset is -1 when only an
// instruction index (not a byte offset) is known.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("rawdump: at offset %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("rawdump: %s", e.Reason)
}
