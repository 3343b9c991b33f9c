package classfile

import (
	"fmt"

	"github.com/daimatz/jvmload/pkg/diag"
)

const classMagic = 0xCAFEBABE

// Supported class file versions: 45 (JDK 1.1) through 55 (Java SE 11).
const (
	MinMajorVersion        = 45
	DefaultMaxMajorVersion = 55
)

// Options configures one Parse call.
type Options struct {
	// ClassName names the class in diagnostics until this_class has been
	// resolved.
	ClassName string
	// MaxMajorVersion lowers the newest accepted major version. Zero, or
	// anything above DefaultMaxMajorVersion, means DefaultMaxMajorVersion.
	MaxMajorVersion uint16
	// Sink receives diagnostics. Nil discards them.
	Sink diag.Sink
}

// Parse decodes and checks a complete class file held in buf. On success
// the returned ClassFile has Status IntegrityChecked. Any failure is a
// *FormatError or a *VerificationError, and no partial ClassFile is
// returned.
func Parse(buf []byte, opts Options) (*ClassFile, error) {
	sink := diag.OrDiscard(opts.Sink)
	name := opts.ClassName
	sink.Log(diag.Class, "loading class", "class", name, "size", len(buf))

	cf, err := parse(buf, opts, sink)
	if err != nil {
		if cf != nil && cf.Name != "" {
			name = cf.Name
		}
		err = stamp(err, name, "")
		sink.Log(diag.Severe, "class load failed", "class", name, "error", err)
		return nil, err
	}
	sink.Log(diag.Class, "class loaded", "class", cf.Name, "version", cf.MajorVersion,
		"fields", len(cf.Fields), "methods", len(cf.Methods))
	return cf, nil
}

func parse(buf []byte, opts Options, sink diag.Sink) (*ClassFile, error) {
	cf := &ClassFile{Status: Unparsed}
	maxVersion := opts.MaxMajorVersion
	if maxVersion == 0 || maxVersion > DefaultMaxMajorVersion {
		maxVersion = DefaultMaxMajorVersion
	}

	magic, pos, err := ReadU32(buf, 0)
	if err != nil {
		return cf, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return cf, formatErrorf(0, ErrBadMagic, "0x%08X (expected 0xCAFEBABE)", magic)
	}

	if cf.MinorVersion, pos, err = ReadU16(buf, pos); err != nil {
		return cf, fmt.Errorf("reading minor version: %w", err)
	}
	if cf.MajorVersion, pos, err = ReadU16(buf, pos); err != nil {
		return cf, fmt.Errorf("reading major version: %w", err)
	}
	if cf.MajorVersion > maxVersion || cf.MajorVersion < MinMajorVersion {
		return cf, formatErrorf(6, ErrUnsupportedVersion, "major version %d outside %d..%d", cf.MajorVersion, MinMajorVersion, maxVersion)
	}

	cpCount, pos, err := ReadU16(buf, pos)
	if err != nil {
		return cf, fmt.Errorf("reading constant pool count: %w", err)
	}
	sink.Log(diag.Finest, "constant pool size", "class", opts.ClassName, "count", cpCount)
	cf.ConstantPool, pos, err = DecodeConstantPool(buf, pos, cpCount)
	if err != nil {
		return cf, fmt.Errorf("parsing constant pool: %w", err)
	}
	if errs := ValidateConstantPool(cf.ConstantPool, cf.MajorVersion); len(errs) > 0 {
		for _, e := range errs {
			sink.Log(diag.Severe, "constant pool violation", "class", opts.ClassName, "error", e)
		}
		return cf, fmt.Errorf("validating constant pool: %w", errs[0])
	}
	sink.Log(diag.Finest, "constant pool verified", "class", opts.ClassName, "entries", cf.ConstantPool.Len())

	d := &decoder{buf: buf, pool: cf.ConstantPool, major: cf.MajorVersion, class: opts.ClassName, sink: sink}
	if pos, err = d.decodeHeader(cf, pos); err != nil {
		return cf, err
	}
	d.class = cf.Name

	if cf.Fields, pos, err = d.decodeFields(pos, cf.IsInterface()); err != nil {
		return cf, fmt.Errorf("parsing fields: %w", err)
	}
	sink.Log(diag.Finest, "fields parsed", "class", cf.Name, "count", len(cf.Fields))

	if cf.Methods, pos, err = d.decodeMethods(pos); err != nil {
		return cf, fmt.Errorf("parsing methods: %w", err)
	}

	if pos, err = d.decodeClassAttributes(cf, pos); err != nil {
		return cf, fmt.Errorf("parsing class attributes: %w", err)
	}
	if pos != len(buf) {
		return cf, formatErrorf(pos, ErrTrailingBytes, "%d bytes", len(buf)-pos)
	}
	cf.Status = StructurallyParsed

	if err := CheckIntegrity(cf); err != nil {
		return cf, err
	}
	cf.Status = IntegrityChecked
	return cf, nil
}

// decodeHeader reads access flags, this_class, super_class and the
// interfaces, which follow the constant pool.
func (d *decoder) decodeHeader(cf *ClassFile, pos int) (int, error) {
	flags, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return pos, fmt.Errorf("reading access flags: %w", err)
	}
	cf.AccessFlags = AccessFlags(flags)
	if err := checkClassFlags(cf.AccessFlags); err != nil {
		return pos, err
	}
	d.sink.Log(diag.Finest, "access flags", "class", d.class, "mask", fmt.Sprintf("%04X", flags), "flags", cf.AccessFlags.ClassString())

	if cf.ThisClass, pos, err = ReadU16(d.buf, pos); err != nil {
		return pos, fmt.Errorf("reading this_class: %w", err)
	}
	if cf.Name, err = d.pool.ClassName(cf.ThisClass); err != nil {
		return pos, fmt.Errorf("resolving this_class: %w", err)
	}

	if cf.SuperClass, pos, err = ReadU16(d.buf, pos); err != nil {
		return pos, fmt.Errorf("reading super_class: %w", err)
	}
	if cf.SuperClass == 0 {
		if cf.Name != "java/lang/Object" {
			return pos, verifyErrorf(0, ErrNoSuperclass, "super_class is 0")
		}
	} else if cf.SuperName, err = d.pool.ClassName(cf.SuperClass); err != nil {
		return pos, fmt.Errorf("resolving super_class: %w", err)
	}
	d.sink.Log(diag.Finest, "class names", "class", cf.Name, "super", cf.SuperName)

	count, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return pos, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, count)
	cf.InterfaceNames = make([]string, count)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], pos, err = ReadU16(d.buf, pos); err != nil {
			return pos, fmt.Errorf("reading interface %d: %w", i, err)
		}
		if cf.InterfaceNames[i], err = d.pool.ClassName(cf.Interfaces[i]); err != nil {
			return pos, fmt.Errorf("resolving interface %d: %w", i, err)
		}
	}
	return pos, nil
}

// decodeClassAttributes reads the attributes that follow the methods.
func (d *decoder) decodeClassAttributes(cf *ClassFile, pos int) (int, error) {
	count, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return pos, fmt.Errorf("reading attributes count: %w", err)
	}
	for i := uint16(0); i < count; i++ {
		var attr attribute
		attr, pos, err = d.readAttribute(d.buf, pos)
		if err != nil {
			return pos, fmt.Errorf("reading attribute %d: %w", i, err)
		}
		switch attr.name {
		case AttrSourceFile:
			index, next, err := ReadU16(attr.body(d.buf), attr.start)
			if err != nil {
				return pos, err
			}
			if err := attr.consumed(next); err != nil {
				return pos, err
			}
			if cf.SourceFile, err = d.pool.Utf8(index); err != nil {
				return pos, fmt.Errorf("resolving SourceFile: %w", err)
			}
		case AttrBootstrapMethods:
			if cf.BootstrapMethods, err = d.bootstrapMethods(attr); err != nil {
				return pos, fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		case AttrDeprecated:
			if err := attr.expectEmpty(); err != nil {
				return pos, err
			}
			cf.Deprecated = true
		case AttrSynthetic:
			if err := attr.expectEmpty(); err != nil {
				return pos, err
			}
			cf.Synthetic = true
		}
	}
	return pos, nil
}

func (d *decoder) bootstrapMethods(attr attribute) ([]BootstrapMethod, error) {
	buf := attr.body(d.buf)
	numMethods, pos, err := ReadU16(buf, attr.start)
	if err != nil {
		return nil, err
	}
	methods := make([]BootstrapMethod, numMethods)
	for i := range methods {
		var numArgs uint16
		if methods[i].MethodRef, pos, err = ReadU16(buf, pos); err != nil {
			return nil, fmt.Errorf("reading method %d: %w", i, err)
		}
		if _, err := d.pool.MethodHandle(methods[i].MethodRef); err != nil {
			return nil, fmt.Errorf("resolving method %d: %w", i, err)
		}
		if numArgs, pos, err = ReadU16(buf, pos); err != nil {
			return nil, fmt.Errorf("reading method %d: %w", i, err)
		}
		args := make([]uint16, numArgs)
		for j := range args {
			if args[j], pos, err = ReadU16(buf, pos); err != nil {
				return nil, fmt.Errorf("reading arg %d of method %d: %w", j, i, err)
			}
			if _, err := d.pool.Entry(args[j]); err != nil {
				return nil, fmt.Errorf("resolving arg %d of method %d: %w", j, i, err)
			}
		}
		methods[i].BootstrapArguments = args
	}
	if err := attr.consumed(pos); err != nil {
		return nil, err
	}
	return methods, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

// DeclaredName reads only as far as this_class and returns the name the
// class file declares for itself. Nothing past the constant pool is
// checked.
func DeclaredName(buf []byte) (string, error) {
	magic, pos, err := ReadU32(buf, 0)
	if err != nil {
		return "", fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return "", formatErrorf(0, ErrBadMagic, "0x%08X (expected 0xCAFEBABE)", magic)
	}
	cpCount, pos, err := ReadU16(buf, pos+4)
	if err != nil {
		return "", fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, pos, err := DecodeConstantPool(buf, pos, cpCount)
	if err != nil {
		return "", fmt.Errorf("parsing constant pool: %w", err)
	}
	thisClass, _, err := ReadU16(buf, pos+2)
	if err != nil {
		return "", fmt.Errorf("reading this_class: %w", err)
	}
	return pool.ClassName(thisClass)
}
