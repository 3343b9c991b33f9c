package classfile

import (
	"fmt"
)

// Opcodes that need special handling when walking a code array.
const (
	opJsr           = 0xa8
	opRet           = 0xa9
	opTableswitch   = 0xaa
	opLookupswitch  = 0xab
	opInvokedynamic = 0xba
	opWide          = 0xc4
	opJsrW          = 0xc9
	opLastDefined   = 0xc9
	opIinc          = 0x84
)

// operandSize holds the fixed operand length of each opcode up to jsr_w.
// tableswitch, lookupswitch and wide are variable and handled separately.
var operandSize = func() [opLastDefined + 1]int8 {
	var t [opLastDefined + 1]int8
	// bipush, ldc, iload..aload, istore..astore, ret, newarray
	one := []int{0x10, 0x12, 0x15, 0x16, 0x17, 0x18, 0x19, 0x36, 0x37, 0x38, 0x39, 0x3a, opRet, 0xbc}
	// sipush, ldc_w, ldc2_w, iinc, the conditional branches, goto, jsr,
	// field access, invokevirtual/special/static, new, anewarray,
	// checkcast, instanceof, ifnull, ifnonnull
	two := []int{
		0x11, 0x13, 0x14, opIinc,
		0x99, 0x9a, 0x9b, 0x9c, 0x9d, 0x9e, 0x9f, 0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6,
		0xa7, opJsr,
		0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8,
		0xbb, 0xbd, 0xc0, 0xc1, 0xc6, 0xc7,
	}
	for _, op := range one {
		t[op] = 1
	}
	for _, op := range two {
		t[op] = 2
	}
	t[0xb9] = 4 // invokeinterface
	t[opInvokedynamic] = 4
	t[0xc5] = 3 // multianewarray
	t[0xc8] = 4 // goto_w
	t[opJsrW] = 4
	return t
}()

// wideTargets are the opcodes that may follow wide.
var wideTargets = map[byte]bool{
	0x15: true, 0x16: true, 0x17: true, 0x18: true, 0x19: true,
	0x36: true, 0x37: true, 0x38: true, 0x39: true, 0x3a: true,
	opRet: true, opIinc: true,
}

// instruction is one decoded opcode position in a code array.
type instruction struct {
	pc     int
	opcode byte
}

// walkCode splits code into instructions without interpreting them. It
// fails on undefined opcodes and on instructions that run past the end.
func walkCode(code []byte, visit func(instruction) error) error {
	pc := 0
	for pc < len(code) {
		op := code[pc]
		if op > opLastDefined {
			return verifyErrorf(0, ErrBadOpcode, "undefined opcode 0x%02x at pc %d", op, pc)
		}
		if err := visit(instruction{pc: pc, opcode: op}); err != nil {
			return err
		}

		var size int
		switch op {
		case opWide:
			if pc+1 >= len(code) || !wideTargets[code[pc+1]] {
				return verifyErrorf(0, ErrBadOpcode, "invalid wide instruction at pc %d", pc)
			}
			size = 4
			if code[pc+1] == opIinc {
				size = 6
			}
		case opTableswitch, opLookupswitch:
			n, err := switchSize(code, pc)
			if err != nil {
				return err
			}
			size = n
		default:
			size = 1 + int(operandSize[op])
		}

		if pc+size > len(code) {
			return verifyErrorf(0, ErrBadOpcode, "instruction 0x%02x at pc %d runs past end of code", op, pc)
		}
		pc += size
	}
	return nil
}

// switchSize returns the total length of a tableswitch or lookupswitch
// at pc, including the padding that aligns its operands to four bytes.
func switchSize(code []byte, pc int) (int, error) {
	base := pc + 1 + (3-pc%4+4)%4 // first aligned operand
	read := func(at int) (int32, error) {
		v, _, err := ReadU32(code, at)
		if err != nil {
			return 0, verifyErrorf(0, ErrBadOpcode, "switch at pc %d runs past end of code", pc)
		}
		return int32(v), nil
	}

	if code[pc] == opTableswitch {
		low, err := read(base + 4)
		if err != nil {
			return 0, err
		}
		high, err := read(base + 8)
		if err != nil {
			return 0, err
		}
		if low > high {
			return 0, verifyErrorf(0, ErrBadOpcode, "tableswitch at pc %d has low %d > high %d", pc, low, high)
		}
		n := int64(high) - int64(low) + 1
		end := int64(base+12) + n*4
		if end > int64(len(code)) {
			return 0, verifyErrorf(0, ErrBadOpcode, "tableswitch at pc %d runs past end of code", pc)
		}
		return int(end) - pc, nil
	}

	npairs, err := read(base + 4)
	if err != nil {
		return 0, err
	}
	if npairs < 0 {
		return 0, verifyErrorf(0, ErrBadOpcode, "lookupswitch at pc %d has %d pairs", pc, npairs)
	}
	end := int64(base+8) + int64(npairs)*8
	if end > int64(len(code)) {
		return 0, verifyErrorf(0, ErrBadOpcode, "lookupswitch at pc %d runs past end of code", pc)
	}
	return int(end) - pc, nil
}

// checkInstructionVersions rejects instruction families the class file
// version does not allow: invokedynamic before 51, jsr/ret from 51 on.
func checkInstructionVersions(code []byte, major uint16) error {
	return walkCode(code, func(in instruction) error {
		switch in.opcode {
		case opInvokedynamic:
			if major < versionMethodHandle {
				return verifyErrorf(0, ErrVersionGate, "invokedynamic at pc %d needs class file version 51", in.pc)
			}
		case opJsr, opJsrW, opRet:
			if major >= versionMethodHandle {
				return verifyErrorf(0, ErrVersionGate, "%s at pc %d is not allowed from class file version 51", opName(in.opcode), in.pc)
			}
		case opWide:
			if major >= versionMethodHandle && in.pc+1 < len(code) && code[in.pc+1] == opRet {
				return verifyErrorf(0, ErrVersionGate, "wide ret at pc %d is not allowed from class file version 51", in.pc)
			}
		}
		return nil
	})
}

func opName(op byte) string {
	switch op {
	case opJsr:
		return "jsr"
	case opJsrW:
		return "jsr_w"
	case opRet:
		return "ret"
	case opInvokedynamic:
		return "invokedynamic"
	}
	return fmt.Sprintf("opcode 0x%02x", op)
}
