package classfile

import (
	"fmt"
)

// MaxCodeLength bounds code_length: offsets into the code array are u2.
const MaxCodeLength = 65535

// decodeCode reads the body of a Code attribute (JVMS 4.7.3).
//
//	u2 max_stack; u2 max_locals;
//	u4 code_length; u1 code[code_length];
//	u2 exception_table_length; { u2 start_pc, end_pc, handler_pc, catch_type }[];
//	u2 attributes_count; attribute_info attributes[];
func (d *decoder) decodeCode(attr attribute) (*CodeAttribute, error) {
	buf := attr.body(d.buf)
	pos := attr.start
	c := &CodeAttribute{}
	var err error

	if c.MaxStack, pos, err = ReadU16(buf, pos); err != nil {
		return nil, fmt.Errorf("reading max_stack: %w", err)
	}
	if c.MaxLocals, pos, err = ReadU16(buf, pos); err != nil {
		return nil, fmt.Errorf("reading max_locals: %w", err)
	}
	if c.CodeLength, pos, err = ReadU32(buf, pos); err != nil {
		return nil, fmt.Errorf("reading code_length: %w", err)
	}
	if c.CodeLength == 0 || c.CodeLength > MaxCodeLength {
		return nil, verifyErrorf(0, ErrCodeLength, "code_length %d outside 1..%d", c.CodeLength, MaxCodeLength)
	}
	if c.Code, pos, err = ReadBytes(buf, pos, int(c.CodeLength)); err != nil {
		return nil, fmt.Errorf("reading code: %w", err)
	}

	tableLen, pos, err := ReadU16(buf, pos)
	if err != nil {
		return nil, fmt.Errorf("reading exception_table_length: %w", err)
	}
	c.ExceptionHandlers = make([]ExceptionHandler, tableLen)
	for i := range c.ExceptionHandlers {
		h := &c.ExceptionHandlers[i]
		for _, dst := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &h.CatchType} {
			if *dst, pos, err = ReadU16(buf, pos); err != nil {
				return nil, fmt.Errorf("reading exception table entry %d: %w", i, err)
			}
		}
	}

	attrCount, pos, err := ReadU16(buf, pos)
	if err != nil {
		return nil, fmt.Errorf("reading Code attributes count: %w", err)
	}
	for i := uint16(0); i < attrCount; i++ {
		var sub attribute
		sub, pos, err = d.readAttribute(buf, pos)
		if err != nil {
			return nil, fmt.Errorf("reading Code attribute %d: %w", i, err)
		}
		if sub.name != AttrLineNumberTable {
			// StackMapTable, LocalVariableTable and friends are skipped
			continue
		}
		lines, err := decodeLineNumbers(sub.body(buf), sub.start)
		if err != nil {
			return nil, err
		}
		if err := sub.consumed(sub.start + 2 + 4*len(lines)); err != nil {
			return nil, err
		}
		c.LineNumbers = append(c.LineNumbers, lines...)
	}

	if err := attr.consumed(pos); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeLineNumbers(buf []byte, pos int) ([]LineNumber, error) {
	count, pos, err := ReadU16(buf, pos)
	if err != nil {
		return nil, fmt.Errorf("reading line_number_table_length: %w", err)
	}
	lines := make([]LineNumber, count)
	for i := range lines {
		if lines[i].StartPC, pos, err = ReadU16(buf, pos); err != nil {
			return nil, fmt.Errorf("reading line number %d: %w", i, err)
		}
		if lines[i].Line, pos, err = ReadU16(buf, pos); err != nil {
			return nil, fmt.Errorf("reading line number %d: %w", i, err)
		}
	}
	return lines, nil
}
