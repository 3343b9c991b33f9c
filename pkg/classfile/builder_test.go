package classfile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// classBuilder assembles class files for tests. Constant pool entries are
// appended as they are requested, so indices are stable once returned.
type classBuilder struct {
	t            *testing.T
	minor, major uint16
	flags        AccessFlags
	pool         Writer
	next         uint16
	utf8s        map[string]uint16
	classes      map[string]uint16
	thisClass    uint16
	superClass   uint16
	interfaces   []uint16
	fields       [][]byte
	methods      [][]byte
	attrs        [][]byte
}

func newClass(t *testing.T, name string) *classBuilder {
	t.Helper()
	b := &classBuilder{
		t:       t,
		major:   55,
		flags:   AccPublic | AccSuper,
		next:    1,
		utf8s:   map[string]uint16{},
		classes: map[string]uint16{},
	}
	b.thisClass = b.class(name)
	b.superClass = b.class("java/lang/Object")
	return b
}

func u16s(vs ...uint16) []byte {
	var w Writer
	for _, v := range vs {
		w.U16(v)
	}
	return w.Bytes()
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// add appends a raw entry and returns its index.
func (b *classBuilder) add(slots uint16, tag Tag, body ...byte) uint16 {
	i := b.next
	b.pool.U8(uint8(tag))
	b.pool.Write(body)
	b.next += slots
	return i
}

func (b *classBuilder) utf8(s string) uint16 {
	if i, ok := b.utf8s[s]; ok {
		return i
	}
	raw := encodeModifiedUtf8(s)
	i := b.add(1, TagUtf8, cat(u16s(uint16(len(raw))), raw)...)
	b.utf8s[s] = i
	return i
}

func (b *classBuilder) class(name string) uint16 {
	if i, ok := b.classes[name]; ok {
		return i
	}
	i := b.add(1, TagClass, u16s(b.utf8(name))...)
	b.classes[name] = i
	return i
}

func (b *classBuilder) nat(name, desc string) uint16 {
	return b.add(1, TagNameAndType, u16s(b.utf8(name), b.utf8(desc))...)
}

func (b *classBuilder) methodref(class, name, desc string) uint16 {
	c, n := b.class(class), b.nat(name, desc)
	return b.add(1, TagMethodref, u16s(c, n)...)
}

func (b *classBuilder) fieldref(class, name, desc string) uint16 {
	c, n := b.class(class), b.nat(name, desc)
	return b.add(1, TagFieldref, u16s(c, n)...)
}

func (b *classBuilder) integer(v int32) uint16 {
	var w Writer
	w.U32(uint32(v))
	return b.add(1, TagInteger, w.Bytes()...)
}

func (b *classBuilder) float(v float32) uint16 {
	var w Writer
	w.U32(math.Float32bits(v))
	return b.add(1, TagFloat, w.Bytes()...)
}

func (b *classBuilder) long(v int64) uint16 {
	var w Writer
	w.U64(uint64(v))
	return b.add(2, TagLong, w.Bytes()...)
}

func (b *classBuilder) double(v float64) uint16 {
	var w Writer
	w.U64(math.Float64bits(v))
	return b.add(2, TagDouble, w.Bytes()...)
}

func (b *classBuilder) str(s string) uint16 {
	return b.add(1, TagString, u16s(b.utf8(s))...)
}

// attr encodes an attribute_info with the given body.
func (b *classBuilder) attr(name string, body []byte) []byte {
	var w Writer
	w.U16(b.utf8(name))
	w.U32(uint32(len(body)))
	w.Write(body)
	return w.Bytes()
}

// code encodes a Code attribute.
func (b *classBuilder) code(maxStack, maxLocals uint16, code []byte, handlers []ExceptionHandler, attrs ...[]byte) []byte {
	var w Writer
	w.U16(maxStack)
	w.U16(maxLocals)
	w.U32(uint32(len(code)))
	w.Write(code)
	w.U16(uint16(len(handlers)))
	for _, h := range handlers {
		w.Write(u16s(h.StartPC, h.EndPC, h.HandlerPC, h.CatchType))
	}
	w.U16(uint16(len(attrs)))
	for _, a := range attrs {
		w.Write(a)
	}
	return b.attr(AttrCode, w.Bytes())
}

func (b *classBuilder) lineNumbers(lines ...LineNumber) []byte {
	var w Writer
	w.U16(uint16(len(lines)))
	for _, ln := range lines {
		w.Write(u16s(ln.StartPC, ln.Line))
	}
	return b.attr(AttrLineNumberTable, w.Bytes())
}

func (b *classBuilder) member(flags AccessFlags, name, desc string, attrs [][]byte) []byte {
	var w Writer
	w.Write(u16s(uint16(flags), b.utf8(name), b.utf8(desc), uint16(len(attrs))))
	for _, a := range attrs {
		w.Write(a)
	}
	return w.Bytes()
}

func (b *classBuilder) field(flags AccessFlags, name, desc string, attrs ...[]byte) *classBuilder {
	b.fields = append(b.fields, b.member(flags, name, desc, attrs))
	return b
}

func (b *classBuilder) method(flags AccessFlags, name, desc string, attrs ...[]byte) *classBuilder {
	b.methods = append(b.methods, b.member(flags, name, desc, attrs))
	return b
}

// returnCode is the Code attribute of a method whose body is a bare return.
func (b *classBuilder) returnCode() []byte {
	return b.code(0, 1, []byte{0xb1}, nil)
}

func (b *classBuilder) bytes() []byte {
	var w Writer
	w.U32(classMagic)
	w.U16(b.minor)
	w.U16(b.major)
	w.U16(b.next)
	w.Write(b.pool.Bytes())
	w.Write(u16s(uint16(b.flags), b.thisClass, b.superClass, uint16(len(b.interfaces))))
	w.Write(u16s(b.interfaces...))
	for _, group := range [][][]byte{b.fields, b.methods, b.attrs} {
		w.U16(uint16(len(group)))
		for _, item := range group {
			w.Write(item)
		}
	}
	return w.Bytes()
}

func (b *classBuilder) parse() (*ClassFile, error) {
	return Parse(b.bytes(), Options{})
}

func (b *classBuilder) mustParse() *ClassFile {
	b.t.Helper()
	cf, err := b.parse()
	require.NoError(b.t, err)
	return cf
}
