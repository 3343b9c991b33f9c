package classfile

import (
	"fmt"
	"math"
)

// Encode writes cf back out in class file form. Only what the decoder
// keeps is written: attributes it skips are dropped, and attribute names
// must already be present as Utf8 entries in the constant pool.
func Encode(cf *ClassFile) ([]byte, error) {
	e := &encoder{pool: cf.ConstantPool}
	w := &e.w

	w.U32(classMagic)
	w.U16(cf.MinorVersion)
	w.U16(cf.MajorVersion)
	if err := e.constantPool(); err != nil {
		return nil, err
	}

	w.U16(uint16(cf.AccessFlags))
	w.U16(cf.ThisClass)
	w.U16(cf.SuperClass)
	w.U16(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.U16(i)
	}

	w.U16(uint16(len(cf.Fields)))
	for i := range cf.Fields {
		if err := e.field(&cf.Fields[i]); err != nil {
			return nil, fmt.Errorf("encoding field %s: %w", cf.Fields[i].Name, err)
		}
	}

	w.U16(uint16(len(cf.Methods)))
	for i := range cf.Methods {
		if err := e.method(&cf.Methods[i]); err != nil {
			return nil, fmt.Errorf("encoding method %s: %w", cf.Methods[i].Name, err)
		}
	}

	if err := e.classAttributes(cf); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

type encoder struct {
	w    Writer
	pool *ConstantPool
}

func (e *encoder) constantPool() error {
	w := &e.w
	w.U16(uint16(e.pool.Len()))
	for i := 1; i < e.pool.Len(); i++ {
		entry := e.pool.entries[i]
		if entry == nil {
			return fmt.Errorf("encoding constant pool: slot %d is empty", i)
		}
		if entry.Tag() == TagUnused {
			continue
		}
		w.U8(uint8(entry.Tag()))
		switch c := entry.(type) {
		case *ConstantUtf8:
			raw := c.Raw
			if raw == nil {
				raw = encodeModifiedUtf8(c.Value)
			}
			w.U16(uint16(len(raw)))
			w.Write(raw)
		case *ConstantInteger:
			w.U32(uint32(c.Value))
		case *ConstantFloat:
			w.U32(math.Float32bits(c.Value))
		case *ConstantLong:
			w.U64(uint64(c.Value))
		case *ConstantDouble:
			w.U64(math.Float64bits(c.Value))
		case *ConstantClass:
			w.U16(c.NameIndex)
		case *ConstantString:
			w.U16(c.StringIndex)
		case *ConstantFieldref:
			w.U16(c.ClassIndex)
			w.U16(c.NameAndTypeIndex)
		case *ConstantMethodref:
			w.U16(c.ClassIndex)
			w.U16(c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			w.U16(c.ClassIndex)
			w.U16(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			w.U16(c.NameIndex)
			w.U16(c.DescriptorIndex)
		case *ConstantMethodHandle:
			w.U8(c.ReferenceKind)
			w.U16(c.ReferenceIndex)
		case *ConstantMethodType:
			w.U16(c.DescriptorIndex)
		case *ConstantDynamic:
			w.U16(c.BootstrapMethodAttrIndex)
			w.U16(c.NameAndTypeIndex)
		case *ConstantInvokeDynamic:
			w.U16(c.BootstrapMethodAttrIndex)
			w.U16(c.NameAndTypeIndex)
		case *ConstantModule:
			w.U16(c.NameIndex)
		case *ConstantPackage:
			w.U16(c.NameIndex)
		}
	}
	return nil
}

// attributeSet collects the attributes of one owner before they are
// written behind their count.
type attributeSet struct {
	e     *encoder
	count uint16
	w     Writer
	err   error
}

func (e *encoder) attributes() *attributeSet { return &attributeSet{e: e} }

func (s *attributeSet) add(name string, body func(w *Writer)) {
	if s.err != nil {
		return
	}
	index, ok := s.e.pool.FindUtf8(name)
	if !ok {
		s.err = fmt.Errorf("no Utf8 entry %q for attribute name", name)
		return
	}
	var b Writer
	body(&b)
	s.w.U16(index)
	s.w.U32(uint32(b.Len()))
	s.w.Write(b.Bytes())
	s.count++
}

func (s *attributeSet) writeTo(w *Writer) error {
	if s.err != nil {
		return s.err
	}
	w.U16(s.count)
	w.Write(s.w.Bytes())
	return nil
}

func empty(*Writer) {}

func (e *encoder) field(f *Field) error {
	w := &e.w
	w.U16(uint16(f.AccessFlags))
	w.U16(f.NameIndex)
	w.U16(f.DescriptorIndex)

	attrs := e.attributes()
	if f.ConstantValueIndex != 0 {
		attrs.add(AttrConstantValue, func(b *Writer) { b.U16(f.ConstantValueIndex) })
	}
	if f.Synthetic {
		attrs.add(AttrSynthetic, empty)
	}
	if f.Deprecated {
		attrs.add(AttrDeprecated, empty)
	}
	return attrs.writeTo(w)
}

func (e *encoder) method(m *Method) error {
	w := &e.w
	w.U16(uint16(m.AccessFlags))
	w.U16(m.NameIndex)
	w.U16(m.DescriptorIndex)

	attrs := e.attributes()
	if m.Code != nil {
		var body Writer
		if err := e.code(&body, m.Code); err != nil {
			return err
		}
		attrs.add(AttrCode, func(b *Writer) { b.Write(body.Bytes()) })
	}
	if m.Exceptions != nil {
		attrs.add(AttrExceptions, func(b *Writer) {
			b.U16(uint16(len(m.Exceptions)))
			for _, i := range m.Exceptions {
				b.U16(i)
			}
		})
	}
	if m.Parameters != nil {
		attrs.add(AttrMethodParameters, func(b *Writer) {
			b.U8(uint8(len(m.Parameters)))
			for _, p := range m.Parameters {
				b.U16(p.NameIndex)
				b.U16(uint16(p.AccessFlags))
			}
		})
	}
	if m.Deprecated {
		attrs.add(AttrDeprecated, empty)
	}
	if m.Synthetic {
		attrs.add(AttrSynthetic, empty)
	}
	return attrs.writeTo(w)
}

func (e *encoder) code(w *Writer, c *CodeAttribute) error {
	w.U16(c.MaxStack)
	w.U16(c.MaxLocals)
	w.U32(uint32(len(c.Code)))
	w.Write(c.Code)
	w.U16(uint16(len(c.ExceptionHandlers)))
	for _, h := range c.ExceptionHandlers {
		w.U16(h.StartPC)
		w.U16(h.EndPC)
		w.U16(h.HandlerPC)
		w.U16(h.CatchType)
	}

	attrs := e.attributes()
	if len(c.LineNumbers) > 0 {
		attrs.add(AttrLineNumberTable, func(b *Writer) {
			b.U16(uint16(len(c.LineNumbers)))
			for _, ln := range c.LineNumbers {
				b.U16(ln.StartPC)
				b.U16(ln.Line)
			}
		})
	}
	return attrs.writeTo(w)
}

func (e *encoder) classAttributes(cf *ClassFile) error {
	attrs := e.attributes()
	if cf.SourceFile != "" {
		index, ok := e.pool.FindUtf8(cf.SourceFile)
		if !ok {
			return fmt.Errorf("no Utf8 entry %q for SourceFile", cf.SourceFile)
		}
		attrs.add(AttrSourceFile, func(b *Writer) { b.U16(index) })
	}
	if cf.BootstrapMethods != nil {
		attrs.add(AttrBootstrapMethods, func(b *Writer) {
			b.U16(uint16(len(cf.BootstrapMethods)))
			for _, bm := range cf.BootstrapMethods {
				b.U16(bm.MethodRef)
				b.U16(uint16(len(bm.BootstrapArguments)))
				for _, a := range bm.BootstrapArguments {
					b.U16(a)
				}
			}
		})
	}
	if cf.Deprecated {
		attrs.add(AttrDeprecated, empty)
	}
	if cf.Synthetic {
		attrs.add(AttrSynthetic, empty)
	}
	return attrs.writeTo(&e.w)
}
