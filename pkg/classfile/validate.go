package classfile

import (
	"strings"
)

// Minimum class file versions for the newer constant kinds.
const (
	versionMethodHandle = 51
	versionInterfaceRef = 52 // MethodHandle kinds 6 and 7 may name interface methods
	versionModule       = 53
	versionDynamic      = 55
)

// ValidateConstantPool checks that every index inside every entry points at
// an entry of the required kind, that Utf8 entries hold no disallowed bytes,
// and that no entry kind is newer than the class file version. It reports
// every violation it finds rather than stopping at the first.
func ValidateConstantPool(p *ConstantPool, major uint16) []error {
	v := poolValidator{pool: p, major: major}
	for i := 1; i < p.Len(); i++ {
		v.check(uint16(i), p.entries[i])
	}
	return v.errs
}

type poolValidator struct {
	pool  *ConstantPool
	major uint16
	errs  []error
}

func (v *poolValidator) fail(index uint16, sentinel error, format string, args ...any) {
	v.errs = append(v.errs, verifyErrorf(int(index), sentinel, format, args...))
}

// expect checks that target resolves to an entry whose tag is one of want.
func (v *poolValidator) expect(from uint16, field string, target uint16, want ...Tag) (ConstantPoolEntry, bool) {
	e, err := v.pool.entry(target)
	if err != nil {
		v.fail(from, ErrBadIndex, "%s %d of %s does not name a usable entry", field, target, v.pool.entries[from].Tag())
		return nil, false
	}
	for _, t := range want {
		if e.Tag() == t {
			return e, true
		}
	}
	v.fail(from, ErrWrongTag, "%s %d of %s points at %s, want %s", field, target, v.pool.entries[from].Tag(), e.Tag(), tagList(want))
	return nil, false
}

func tagList(tags []Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.String()
	}
	return strings.Join(names, " or ")
}

func (v *poolValidator) requireVersion(index uint16, tag Tag, min uint16) {
	if v.major < min {
		v.fail(index, ErrVersionGate, "%s needs class file version %d, have %d", tag, min, v.major)
	}
}

// natName returns the name of the NameAndType at index, if it resolves.
func (v *poolValidator) natName(index uint16) (string, bool) {
	nat, err := v.pool.NameAndType(index)
	if err != nil {
		return "", false
	}
	name, err := v.pool.Utf8(nat.NameIndex)
	if err != nil {
		return "", false
	}
	return name, true
}

func (v *poolValidator) check(i uint16, e ConstantPoolEntry) {
	switch c := e.(type) {
	case *ConstantUtf8:
		for _, b := range c.Raw {
			if b == 0x00 || b >= 0xF0 {
				v.fail(i, ErrBadUtf8Byte, "Utf8 contains byte 0x%02X", b)
				break
			}
		}
	case *ConstantClass:
		v.expect(i, "name_index", c.NameIndex, TagUtf8)
	case *ConstantString:
		v.expect(i, "string_index", c.StringIndex, TagUtf8)
	case *ConstantFieldref:
		v.expect(i, "class_index", c.ClassIndex, TagClass)
		v.expect(i, "name_and_type_index", c.NameAndTypeIndex, TagNameAndType)
	case *ConstantMethodref:
		v.checkMethodRef(i, c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		v.checkMethodRef(i, c.ClassIndex, c.NameAndTypeIndex)
	case *ConstantNameAndType:
		v.expect(i, "name_index", c.NameIndex, TagUtf8)
		v.expect(i, "descriptor_index", c.DescriptorIndex, TagUtf8)
	case *ConstantMethodHandle:
		v.requireVersion(i, TagMethodHandle, versionMethodHandle)
		v.checkMethodHandle(i, c)
	case *ConstantMethodType:
		v.requireVersion(i, TagMethodType, versionMethodHandle)
		v.expect(i, "descriptor_index", c.DescriptorIndex, TagUtf8)
	case *ConstantInvokeDynamic:
		v.requireVersion(i, TagInvokeDynamic, versionMethodHandle)
		v.expect(i, "name_and_type_index", c.NameAndTypeIndex, TagNameAndType)
	case *ConstantDynamic:
		v.requireVersion(i, TagDynamic, versionDynamic)
		v.expect(i, "name_and_type_index", c.NameAndTypeIndex, TagNameAndType)
	case *ConstantModule:
		v.requireVersion(i, TagModule, versionModule)
		v.expect(i, "name_index", c.NameIndex, TagUtf8)
	case *ConstantPackage:
		v.requireVersion(i, TagPackage, versionModule)
		v.expect(i, "name_index", c.NameIndex, TagUtf8)
	}
}

// checkMethodRef validates a Methodref or InterfaceMethodref. Special
// method names reachable through these references are limited to <init>.
func (v *poolValidator) checkMethodRef(i, classIndex, natIndex uint16) {
	v.expect(i, "class_index", classIndex, TagClass)
	if _, ok := v.expect(i, "name_and_type_index", natIndex, TagNameAndType); !ok {
		return
	}
	if name, ok := v.natName(natIndex); ok && strings.HasPrefix(name, "<") && name != "<init>" {
		v.fail(i, ErrBadName, "method reference names %q", name)
	}
}

func (v *poolValidator) checkMethodHandle(i uint16, c *ConstantMethodHandle) {
	var want []Tag
	switch c.ReferenceKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		want = []Tag{TagFieldref}
	case RefInvokeVirtual, RefNewInvokeSpecial:
		want = []Tag{TagMethodref}
	case RefInvokeStatic, RefInvokeSpecial:
		if v.major < versionInterfaceRef {
			want = []Tag{TagMethodref}
		} else {
			want = []Tag{TagMethodref, TagInterfaceMethodref}
		}
	case RefInvokeInterface:
		want = []Tag{TagInterfaceMethodref}
	default:
		v.fail(i, ErrReferenceKind, "reference_kind %d", c.ReferenceKind)
		return
	}

	target, ok := v.expect(i, "reference_index", c.ReferenceIndex, want...)
	if !ok || c.ReferenceKind <= RefPutStatic {
		return
	}

	var natIndex uint16
	switch r := target.(type) {
	case *ConstantMethodref:
		natIndex = r.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		natIndex = r.NameAndTypeIndex
	}
	name, ok := v.natName(natIndex)
	if !ok {
		return
	}
	if c.ReferenceKind == RefNewInvokeSpecial {
		if name != "<init>" {
			v.fail(i, ErrBadName, "newInvokeSpecial handle names %q, want <init>", name)
		}
	} else if name == "<init>" || name == "<clinit>" {
		v.fail(i, ErrBadName, "method handle kind %d names %q", c.ReferenceKind, name)
	}
}
