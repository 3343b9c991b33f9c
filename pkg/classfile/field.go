package classfile

import (
	"fmt"

	"github.com/daimatz/jvmload/pkg/diag"
)

func (d *decoder) decodeFields(pos int, inInterface bool) ([]Field, int, error) {
	count, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return nil, pos, fmt.Errorf("reading fields count: %w", err)
	}
	fields := make([]Field, count)
	for i := range fields {
		fields[i], pos, err = d.decodeField(pos, inInterface)
		if err != nil {
			return nil, pos, fmt.Errorf("parsing field %d: %w", i, err)
		}
	}
	return fields, pos, nil
}

// decodeField reads one field_info at pos.
func (d *decoder) decodeField(pos int, inInterface bool) (Field, int, error) {
	var f Field
	var flags uint16
	var err error

	if flags, pos, err = ReadU16(d.buf, pos); err != nil {
		return f, pos, fmt.Errorf("reading access flags: %w", err)
	}
	f.AccessFlags = AccessFlags(flags)
	if f.NameIndex, pos, err = ReadU16(d.buf, pos); err != nil {
		return f, pos, fmt.Errorf("reading name index: %w", err)
	}
	if f.DescriptorIndex, pos, err = ReadU16(d.buf, pos); err != nil {
		return f, pos, fmt.Errorf("reading descriptor index: %w", err)
	}
	if f.Name, err = d.pool.Utf8(f.NameIndex); err != nil {
		return f, pos, fmt.Errorf("resolving name: %w", err)
	}
	if f.Descriptor, err = d.pool.Utf8(f.DescriptorIndex); err != nil {
		return f, pos, stamp(fmt.Errorf("resolving descriptor: %w", err), "", f.Name)
	}
	if err := checkFieldFlags(f.AccessFlags, inInterface); err != nil {
		return f, pos, stamp(err, "", f.Name)
	}

	attrCount, pos, err := ReadU16(d.buf, pos)
	if err != nil {
		return f, pos, stamp(fmt.Errorf("reading attributes count: %w", err), "", f.Name)
	}
	for i := uint16(0); i < attrCount; i++ {
		var attr attribute
		attr, pos, err = d.readAttribute(d.buf, pos)
		if err != nil {
			return f, pos, stamp(fmt.Errorf("reading attribute %d: %w", i, err), "", f.Name)
		}
		switch attr.name {
		case AttrConstantValue:
			if attr.length() != 2 {
				return f, pos, stamp(formatErrorf(attr.start, ErrAttributeLength, "ConstantValue has length %d, want 2", attr.length()), "", f.Name)
			}
			if f.ConstantValueIndex, _, err = ReadU16(attr.body(d.buf), attr.start); err != nil {
				return f, pos, stamp(fmt.Errorf("reading ConstantValue: %w", err), "", f.Name)
			}
			f.ConstantValue = d.resolveConstantValue(&f)
		case AttrSynthetic:
			if err := attr.expectEmpty(); err != nil {
				return f, pos, stamp(err, "", f.Name)
			}
			f.Synthetic = true
		case AttrDeprecated:
			if err := attr.expectEmpty(); err != nil {
				return f, pos, stamp(err, "", f.Name)
			}
			f.Deprecated = true
		default:
			// opaque; readAttribute already moved pos past the body
		}
	}
	return f, pos, nil
}

// resolveConstantValue returns the initializer named by the field's
// ConstantValue attribute. A missing or mistyped constant is logged and
// leaves the field without an initializer.
func (d *decoder) resolveConstantValue(f *Field) any {
	index := f.ConstantValueIndex
	warn := func(reason string) any {
		d.sink.Log(diag.Warning, "invalid ConstantValue, field left uninitialized",
			"class", d.class, "field", f.Name, "index", index, "reason", reason)
		return nil
	}
	if index == 0 || int(index) >= d.pool.Len() {
		return warn("index out of range")
	}

	var v any
	var err error
	switch f.Descriptor {
	case "I", "S", "C", "B", "Z":
		v, err = d.pool.Integer(index)
	case "J":
		v, err = d.pool.Long(index)
	case "F":
		v, err = d.pool.Float(index)
	case "D":
		v, err = d.pool.Double(index)
	case "Ljava/lang/String;":
		v, err = d.pool.StringValue(index)
	default:
		return warn("descriptor " + f.Descriptor + " cannot have a constant value")
	}
	if err != nil {
		return warn(err.Error())
	}
	d.sink.Log(diag.Finest, "field initialized", "class", d.class, "field", f.Name, "value", v)
	return v
}
