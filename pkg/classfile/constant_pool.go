package classfile

import (
	"fmt"
	"math"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

// Constant pool tags
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20

	// TagUnused marks the slot after a Long or Double. It never appears
	// in class files.
	TagUnused Tag = 0
)

var tagNames = map[Tag]string{
	TagUnused:             "Unused",
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// ConstantPoolEntry is implemented by the constant pool entry types of
// this package and no others.
type ConstantPoolEntry interface {
	Tag() Tag
	entry()
}

type ConstantUtf8 struct {
	Value string
	Raw   []byte // modified UTF-8 bytes as stored in the class file
}

type ConstantInteger struct {
	Value int32
}

type ConstantFloat struct {
	Value float32
}

type ConstantLong struct {
	Value int64
}

type ConstantDouble struct {
	Value float64
}

type ConstantClass struct {
	NameIndex uint16
}

type ConstantString struct {
	StringIndex uint16
}

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

// Method handle reference kinds (JVMS 5.4.3.5).
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type ConstantMethodType struct {
	DescriptorIndex uint16
}

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ConstantModule struct {
	NameIndex uint16
}

type ConstantPackage struct {
	NameIndex uint16
}

// ConstantUnused fills the second slot of a Long or Double.
type ConstantUnused struct{}

func (*ConstantUtf8) Tag() Tag               { return TagUtf8 }
func (*ConstantInteger) Tag() Tag            { return TagInteger }
func (*ConstantFloat) Tag() Tag              { return TagFloat }
func (*ConstantLong) Tag() Tag               { return TagLong }
func (*ConstantDouble) Tag() Tag             { return TagDouble }
func (*ConstantClass) Tag() Tag              { return TagClass }
func (*ConstantString) Tag() Tag             { return TagString }
func (*ConstantFieldref) Tag() Tag           { return TagFieldref }
func (*ConstantMethodref) Tag() Tag          { return TagMethodref }
func (*ConstantInterfaceMethodref) Tag() Tag { return TagInterfaceMethodref }
func (*ConstantNameAndType) Tag() Tag        { return TagNameAndType }
func (*ConstantMethodHandle) Tag() Tag       { return TagMethodHandle }
func (*ConstantMethodType) Tag() Tag         { return TagMethodType }
func (*ConstantDynamic) Tag() Tag            { return TagDynamic }
func (*ConstantInvokeDynamic) Tag() Tag      { return TagInvokeDynamic }
func (*ConstantModule) Tag() Tag             { return TagModule }
func (*ConstantPackage) Tag() Tag            { return TagPackage }
func (*ConstantUnused) Tag() Tag             { return TagUnused }

func (*ConstantUtf8) entry()               {}
func (*ConstantInteger) entry()            {}
func (*ConstantFloat) entry()              {}
func (*ConstantLong) entry()               {}
func (*ConstantDouble) entry()             {}
func (*ConstantClass) entry()              {}
func (*ConstantString) entry()             {}
func (*ConstantFieldref) entry()           {}
func (*ConstantMethodref) entry()          {}
func (*ConstantInterfaceMethodref) entry() {}
func (*ConstantNameAndType) entry()        {}
func (*ConstantMethodHandle) entry()       {}
func (*ConstantMethodType) entry()         {}
func (*ConstantDynamic) entry()            {}
func (*ConstantInvokeDynamic) entry()      {}
func (*ConstantModule) entry()             {}
func (*ConstantPackage) entry()            {}
func (*ConstantUnused) entry()             {}

// ConstantPool is the 1-based constant pool of a class. Slot 0 is nil.
type ConstantPool struct {
	entries []ConstantPoolEntry
}

// NewConstantPool builds a pool from entries, which must start with the
// nil slot 0.
func NewConstantPool(entries []ConstantPoolEntry) *ConstantPool {
	return &ConstantPool{entries: entries}
}

// Len returns constant_pool_count: the number of slots including slot 0.
func (p *ConstantPool) Len() int { return len(p.entries) }

// DecodeConstantPool reads count-1 slots of constant pool starting at pos.
// It returns the pool and the offset just past it.
func DecodeConstantPool(buf []byte, pos int, count uint16) (*ConstantPool, int, error) {
	if count == 0 {
		return nil, pos, formatErrorf(pos, ErrSlotCount, "constant_pool_count is 0")
	}
	entries := make([]ConstantPoolEntry, count)

	i := 1
	for i < int(count) {
		start := pos
		tag, next, err := ReadU8(buf, pos)
		if err != nil {
			return nil, pos, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}
		pos = next

		var e ConstantPoolEntry
		wide := false
		switch Tag(tag) {
		case TagUtf8:
			e, pos, err = decodeUtf8(buf, pos)
		case TagInteger:
			var v uint32
			v, pos, err = ReadU32(buf, pos)
			e = &ConstantInteger{Value: int32(v)}
		case TagFloat:
			var v uint32
			v, pos, err = ReadU32(buf, pos)
			e = &ConstantFloat{Value: math.Float32frombits(v)}
		case TagLong:
			var v uint64
			v, pos, err = ReadU64(buf, pos)
			e = &ConstantLong{Value: int64(v)}
			wide = true
		case TagDouble:
			var v uint64
			v, pos, err = ReadU64(buf, pos)
			e = &ConstantDouble{Value: math.Float64frombits(v)}
			wide = true
		case TagClass:
			var a uint16
			a, pos, err = ReadU16(buf, pos)
			e = &ConstantClass{NameIndex: a}
		case TagString:
			var a uint16
			a, pos, err = ReadU16(buf, pos)
			e = &ConstantString{StringIndex: a}
		case TagMethodType:
			var a uint16
			a, pos, err = ReadU16(buf, pos)
			e = &ConstantMethodType{DescriptorIndex: a}
		case TagModule:
			var a uint16
			a, pos, err = ReadU16(buf, pos)
			e = &ConstantModule{NameIndex: a}
		case TagPackage:
			var a uint16
			a, pos, err = ReadU16(buf, pos)
			e = &ConstantPackage{NameIndex: a}
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			var a, b uint16
			a, b, pos, err = readIndexPair(buf, pos)
			e = pairEntry(Tag(tag), a, b)
		case TagMethodHandle:
			var kind uint8
			var ref uint16
			kind, pos, err = ReadU8(buf, pos)
			if err == nil {
				ref, pos, err = ReadU16(buf, pos)
			}
			e = &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}
		default:
			fe := formatErrorf(start, ErrUnknownTag, "tag %d", tag)
			fe.Index = i
			return nil, pos, fe
		}
		if err != nil {
			return nil, pos, fmt.Errorf("reading %s at index %d: %w", Tag(tag), i, err)
		}

		entries[i] = e
		if wide {
			if i+1 >= int(count) {
				fe := formatErrorf(start, ErrSlotCount, "%s at index %d needs two slots but constant_pool_count is %d", Tag(tag), i, count)
				fe.Index = i
				return nil, pos, fe
			}
			entries[i+1] = &ConstantUnused{}
			i += 2
		} else {
			i++
		}
	}

	return &ConstantPool{entries: entries}, pos, nil
}

func readIndexPair(buf []byte, pos int) (uint16, uint16, int, error) {
	a, pos, err := ReadU16(buf, pos)
	if err != nil {
		return 0, 0, pos, err
	}
	b, pos, err := ReadU16(buf, pos)
	if err != nil {
		return 0, 0, pos, err
	}
	return a, b, pos, nil
}

func pairEntry(tag Tag, a, b uint16) ConstantPoolEntry {
	switch tag {
	case TagFieldref:
		return &ConstantFieldref{ClassIndex: a, NameAndTypeIndex: b}
	case TagMethodref:
		return &ConstantMethodref{ClassIndex: a, NameAndTypeIndex: b}
	case TagInterfaceMethodref:
		return &ConstantInterfaceMethodref{ClassIndex: a, NameAndTypeIndex: b}
	case TagNameAndType:
		return &ConstantNameAndType{NameIndex: a, DescriptorIndex: b}
	case TagDynamic:
		return &ConstantDynamic{BootstrapMethodAttrIndex: a, NameAndTypeIndex: b}
	default:
		return &ConstantInvokeDynamic{BootstrapMethodAttrIndex: a, NameAndTypeIndex: b}
	}
}

func decodeUtf8(buf []byte, pos int) (ConstantPoolEntry, int, error) {
	length, pos, err := ReadU16(buf, pos)
	if err != nil {
		return nil, pos, err
	}
	raw, next, err := ReadBytes(buf, pos, int(length))
	if err != nil {
		return nil, pos, err
	}
	s, err := decodeModifiedUtf8(raw)
	if err != nil {
		return nil, pos, &FormatError{Offset: pos, Err: err}
	}
	return &ConstantUtf8{Value: s, Raw: raw}, next, nil
}

// entry returns the entry at index, rejecting slot 0, out-of-range
// indices and the unused half of a Long or Double.
func (p *ConstantPool) entry(index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, verifyErrorf(int(index), ErrBadIndex, "index %d outside 1..%d", index, len(p.entries)-1)
	}
	e := p.entries[index]
	if e.Tag() == TagUnused {
		return nil, verifyErrorf(int(index), ErrBadIndex, "index %d is the unused second slot of a long or double", index)
	}
	return e, nil
}

// Entry returns the entry at index.
func (p *ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	return p.entry(index)
}

// TagAt returns the tag at index, or false when the index is not a usable
// entry.
func (p *ConstantPool) TagAt(index uint16) (Tag, bool) {
	e, err := p.entry(index)
	if err != nil {
		return 0, false
	}
	return e.Tag(), true
}

func entryAs[T ConstantPoolEntry](p *ConstantPool, index uint16, want Tag) (T, error) {
	var zero T
	e, err := p.entry(index)
	if err != nil {
		return zero, err
	}
	v, ok := e.(T)
	if !ok {
		return zero, verifyErrorf(int(index), ErrWrongTag, "index %d is %s, want %s", index, e.Tag(), want)
	}
	return v, nil
}

// Utf8 returns the string of the Utf8 entry at index.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	u, err := entryAs[*ConstantUtf8](p, index, TagUtf8)
	if err != nil {
		return "", err
	}
	return u.Value, nil
}

// Class returns the Class entry at index.
func (p *ConstantPool) Class(index uint16) (*ConstantClass, error) {
	return entryAs[*ConstantClass](p, index, TagClass)
}

// ClassName returns the class name referenced by a Class entry.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	c, err := p.Class(index)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.NameIndex)
}

// NameAndType returns the NameAndType entry at index.
func (p *ConstantPool) NameAndType(index uint16) (*ConstantNameAndType, error) {
	return entryAs[*ConstantNameAndType](p, index, TagNameAndType)
}

func (p *ConstantPool) Fieldref(index uint16) (*ConstantFieldref, error) {
	return entryAs[*ConstantFieldref](p, index, TagFieldref)
}

func (p *ConstantPool) Methodref(index uint16) (*ConstantMethodref, error) {
	return entryAs[*ConstantMethodref](p, index, TagMethodref)
}

func (p *ConstantPool) InterfaceMethodref(index uint16) (*ConstantInterfaceMethodref, error) {
	return entryAs[*ConstantInterfaceMethodref](p, index, TagInterfaceMethodref)
}

func (p *ConstantPool) MethodHandle(index uint16) (*ConstantMethodHandle, error) {
	return entryAs[*ConstantMethodHandle](p, index, TagMethodHandle)
}

func (p *ConstantPool) Integer(index uint16) (int32, error) {
	c, err := entryAs[*ConstantInteger](p, index, TagInteger)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

func (p *ConstantPool) Long(index uint16) (int64, error) {
	c, err := entryAs[*ConstantLong](p, index, TagLong)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

func (p *ConstantPool) Float(index uint16) (float32, error) {
	c, err := entryAs[*ConstantFloat](p, index, TagFloat)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

func (p *ConstantPool) Double(index uint16) (float64, error) {
	c, err := entryAs[*ConstantDouble](p, index, TagDouble)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

// StringValue returns the string value of a String entry.
func (p *ConstantPool) StringValue(index uint16) (string, error) {
	c, err := entryAs[*ConstantString](p, index, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.StringIndex)
}

// FindUtf8 returns the lowest index of a Utf8 entry equal to s.
func (p *ConstantPool) FindUtf8(s string) (uint16, bool) {
	for i, e := range p.entries {
		if u, ok := e.(*ConstantUtf8); ok && u.Value == s {
			return uint16(i), true
		}
	}
	return 0, false
}

// MemberRefInfo holds a resolved field or method reference.
type MemberRefInfo struct {
	ClassName  string
	Name       string
	Descriptor string
}

func (p *ConstantPool) resolveMember(classIndex, natIndex uint16) (*MemberRefInfo, error) {
	className, err := p.ClassName(classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving class: %w", err)
	}
	nat, err := p.NameAndType(natIndex)
	if err != nil {
		return nil, err
	}
	name, err := p.Utf8(nat.NameIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving name: %w", err)
	}
	desc, err := p.Utf8(nat.DescriptorIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving descriptor: %w", err)
	}
	return &MemberRefInfo{ClassName: className, Name: name, Descriptor: desc}, nil
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func (p *ConstantPool) ResolveFieldref(index uint16) (*MemberRefInfo, error) {
	f, err := p.Fieldref(index)
	if err != nil {
		return nil, err
	}
	return p.resolveMember(f.ClassIndex, f.NameAndTypeIndex)
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func (p *ConstantPool) ResolveMethodref(index uint16) (*MemberRefInfo, error) {
	m, err := p.Methodref(index)
	if err != nil {
		return nil, err
	}
	return p.resolveMember(m.ClassIndex, m.NameAndTypeIndex)
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func (p *ConstantPool) ResolveInterfaceMethodref(index uint16) (*MemberRefInfo, error) {
	m, err := p.InterfaceMethodref(index)
	if err != nil {
		return nil, err
	}
	return p.resolveMember(m.ClassIndex, m.NameAndTypeIndex)
}
