package classfile

import (
	"fmt"

	"github.com/daimatz/jvmload/pkg/diag"
)

// methodState tracks how far decoding of one method_info got, so that
// errors can say where it stopped.
type methodState int

const (
	methodStart methodState = iota
	methodAccessFlagsRead
	methodNameResolved
	methodDescriptorResolved
	methodAttributesConsumed
)

func (s methodState) String() string {
	return [...]string{"start", "access flags read", "name resolved", "descriptor resolved", "attributes consumed"}[s]
}

func (d *decoder) decodeMethods(pos int) ([]Method, int, error) {
	count, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return nil, pos, fmt.Errorf("reading methods count: %w", err)
	}
	methods := make([]Method, count)
	for i := range methods {
		methods[i], pos, err = d.decodeMethod(pos)
		if err != nil {
			return nil, pos, fmt.Errorf("parsing method %d: %w", i, err)
		}
		d.sink.Log(diag.Finest, "method parsed", "class", d.class, "method", methods[i].Name,
			"descriptor", methods[i].Descriptor, "flags", methods[i].AccessFlags.MethodString())
	}
	return methods, pos, nil
}

// decodeMethod reads one method_info at pos.
func (d *decoder) decodeMethod(pos int) (Method, int, error) {
	var m Method
	state := methodStart
	fail := func(err error) (Method, int, error) {
		return m, pos, stamp(fmt.Errorf("after %s: %w", state, err), "", m.Name)
	}

	flags, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return fail(fmt.Errorf("reading access flags: %w", err))
	}
	m.AccessFlags = AccessFlags(flags)
	state = methodAccessFlagsRead

	if m.NameIndex, pos, err = ReadU16(d.buf, pos); err != nil {
		return fail(fmt.Errorf("reading name index: %w", err))
	}
	if m.Name, err = d.pool.Utf8(m.NameIndex); err != nil {
		return fail(fmt.Errorf("resolving name: %w", err))
	}
	state = methodNameResolved

	if m.DescriptorIndex, pos, err = ReadU16(d.buf, pos); err != nil {
		return fail(fmt.Errorf("reading descriptor index: %w", err))
	}
	if m.Descriptor, err = d.pool.Utf8(m.DescriptorIndex); err != nil {
		return fail(fmt.Errorf("resolving descriptor: %w", err))
	}
	state = methodDescriptorResolved

	attrCount, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return fail(fmt.Errorf("reading attributes count: %w", err))
	}
	for i := uint16(0); i < attrCount; i++ {
		var attr attribute
		attr, pos, err = d.readAttribute(d.buf, pos)
		if err != nil {
			return fail(fmt.Errorf("reading attribute %d: %w", i, err))
		}
		if err := d.methodAttribute(&m, attr); err != nil {
			return fail(fmt.Errorf("parsing %s attribute: %w", attr.name, err))
		}
	}
	state = methodAttributesConsumed

	return m, pos, nil
}

// methodAttribute interprets one attribute of a method.
func (d *decoder) methodAttribute(m *Method, attr attribute) error {
	switch attr.name {
	case AttrCode:
		if m.Code != nil {
			return formatErrorf(attr.start, ErrDuplicateAttribute, "second Code attribute")
		}
		code, err := d.decodeCode(attr)
		if err != nil {
			return err
		}
		m.Code = code
		d.sink.Log(diag.Finest, "code parsed", "class", d.class, "method", m.Name,
			"code_length", code.CodeLength, "max_stack", code.MaxStack, "max_locals", code.MaxLocals,
			"handlers", len(code.ExceptionHandlers), "lines", len(code.LineNumbers))

	case AttrExceptions:
		if m.Exceptions != nil {
			return formatErrorf(attr.start, ErrDuplicateAttribute, "second Exceptions attribute")
		}
		indices, names, next, err := d.classNames(attr.body(d.buf), attr.start)
		if err != nil {
			return err
		}
		if err := attr.consumed(next); err != nil {
			return err
		}
		m.Exceptions, m.ExceptionNames = indices, names

	case AttrMethodParameters:
		params, next, err := d.methodParameters(attr.body(d.buf), attr.start)
		if err != nil {
			return err
		}
		if err := attr.consumed(next); err != nil {
			return err
		}
		m.Parameters = params

	case AttrDeprecated:
		if err := attr.expectEmpty(); err != nil {
			return err
		}
		m.Deprecated = true

	case AttrSynthetic:
		if err := attr.expectEmpty(); err != nil {
			return err
		}
		m.Synthetic = true

	case AttrSignature:
		// generic signatures are not enforced

	default:
		d.sink.Log(diag.Finest, "skipping method attribute", "class", d.class, "method", m.Name,
			"attribute", attr.name, "length", attr.length())
	}
	return nil
}

func (d *decoder) methodParameters(buf []byte, pos int) ([]MethodParameter, int, error) {
	count, pos, err := ReadU8(buf, pos)
	if err != nil {
		return nil, pos, fmt.Errorf("reading parameters count: %w", err)
	}
	params := make([]MethodParameter, count)
	for i := range params {
		p := &params[i]
		var flags uint16
		if p.NameIndex, pos, err = ReadU16(buf, pos); err != nil {
			return nil, pos, fmt.Errorf("reading parameter %d: %w", i, err)
		}
		if flags, pos, err = ReadU16(buf, pos); err != nil {
			return nil, pos, fmt.Errorf("reading parameter %d: %w", i, err)
		}
		p.AccessFlags = AccessFlags(flags)
		if p.NameIndex != 0 {
			if p.Name, err = d.pool.Utf8(p.NameIndex); err != nil {
				return nil, pos, fmt.Errorf("resolving parameter %d name: %w", i, err)
			}
		}
	}
	return params, pos, nil
}
