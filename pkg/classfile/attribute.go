package classfile

import (
	"fmt"

	"github.com/daimatz/jvmload/pkg/diag"
)

// Attribute names this package interprets.
const (
	AttrCode             = "Code"
	AttrConstantValue    = "ConstantValue"
	AttrExceptions       = "Exceptions"
	AttrMethodParameters = "MethodParameters"
	AttrLineNumberTable  = "LineNumberTable"
	AttrDeprecated       = "Deprecated"
	AttrSynthetic        = "Synthetic"
	AttrSignature        = "Signature"
	AttrSourceFile       = "SourceFile"
	AttrBootstrapMethods = "BootstrapMethods"
)

// decoder carries what every decoding step needs to read one class file.
// It holds no position: each step takes an offset and returns the next.
type decoder struct {
	buf   []byte
	pool  *ConstantPool
	major uint16
	class string
	sink  diag.Sink
}

// attribute is an attribute_info header. The body occupies
// buf[start:end].
type attribute struct {
	name  string
	start int
	end   int
}

// length returns the declared body length.
func (a attribute) length() int { return a.end - a.start }

// readAttribute reads an attribute header at pos and returns it along with
// the offset just past its body.
func (d *decoder) readAttribute(buf []byte, pos int) (attribute, int, error) {
	nameIndex, pos, err := ReadU16(buf, pos)
	if err != nil {
		return attribute{}, pos, fmt.Errorf("reading attribute name index: %w", err)
	}
	length, pos, err := ReadU32(buf, pos)
	if err != nil {
		return attribute{}, pos, fmt.Errorf("reading attribute length: %w", err)
	}
	name, err := d.pool.Utf8(nameIndex)
	if err != nil {
		return attribute{}, pos, fmt.Errorf("resolving attribute name: %w", err)
	}
	if err := need(buf, pos, int(length)); err != nil {
		return attribute{}, pos, fmt.Errorf("reading %s attribute body: %w", name, err)
	}
	end := pos + int(length)
	return attribute{name: name, start: pos, end: end}, end, nil
}

// body returns buf cut at the end of the attribute, so that any read past
// the declared length fails as truncation.
func (a attribute) body(buf []byte) []byte { return buf[:a.end] }

// consumed checks that a sub-decoder stopped exactly at the end of the
// attribute body.
func (a attribute) consumed(pos int) error {
	if pos != a.end {
		return formatErrorf(a.start, ErrAttributeLength, "%s attribute declares %d bytes, contents use %d", a.name, a.length(), pos-a.start)
	}
	return nil
}

// expectEmpty checks a marker attribute such as Deprecated or Synthetic.
func (a attribute) expectEmpty() error {
	if a.length() != 0 {
		return formatErrorf(a.start, ErrAttributeLength, "%s attribute has length %d, want 0", a.name, a.length())
	}
	return nil
}

// classNames resolves a u2 count followed by that many Class indices, as
// used by the Exceptions attribute.
func (d *decoder) classNames(buf []byte, pos int) ([]uint16, []string, int, error) {
	count, pos, err := ReadU16(buf, pos)
	if err != nil {
		return nil, nil, pos, err
	}
	indices := make([]uint16, count)
	names := make([]string, count)
	for i := range indices {
		indices[i], pos, err = ReadU16(buf, pos)
		if err != nil {
			return nil, nil, pos, err
		}
		names[i], err = d.pool.ClassName(indices[i])
		if err != nil {
			return nil, nil, pos, fmt.Errorf("resolving class %d: %w", i, err)
		}
	}
	return indices, names, pos, nil
}
