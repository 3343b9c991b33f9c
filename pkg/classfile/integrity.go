package classfile

import "fmt"

// CheckIntegrity applies the per-method rules that need the whole class:
// method access flags, presence of Code, exception table ranges, line
// number offsets and version-gated instructions. It reports the first
// violation as a *VerificationError naming the class and method.
func CheckIntegrity(cf *ClassFile) error {
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if err := checkMethod(cf, m); err != nil {
			return stamp(err, cf.Name, m.Name)
		}
	}
	return nil
}

func checkMethod(cf *ClassFile, m *Method) error {
	if err := checkMethodFlags(cf, m); err != nil {
		return err
	}

	a := m.AccessFlags
	bodiless := a.Has(AccAbstract) || a.Has(AccNative)
	switch {
	case m.Code == nil && !bodiless:
		return verifyErrorf(0, ErrMissingCode, "method %s%s is neither abstract nor native", m.Name, m.Descriptor)
	case m.Code != nil && bodiless:
		return verifyErrorf(0, ErrUnexpectedCode, "%s method %s%s has a Code attribute", a.MethodString(), m.Name, m.Descriptor)
	case m.Code == nil:
		return nil
	}

	c := m.Code
	if len(c.Code) != int(c.CodeLength) {
		return verifyErrorf(0, ErrCodeLength, "code array has %d bytes, code_length is %d", len(c.Code), c.CodeLength)
	}
	if err := checkExceptionTable(cf.ConstantPool, c); err != nil {
		return err
	}
	for _, ln := range c.LineNumbers {
		if uint32(ln.StartPC) >= c.CodeLength {
			return verifyErrorf(0, ErrLineNumberRange, "line %d starts at pc %d, code_length is %d", ln.Line, ln.StartPC, c.CodeLength)
		}
	}
	return checkInstructionVersions(c.Code, cf.MajorVersion)
}

// checkMethodFlags applies the method access_flags rules of JVMS 4.6.
func checkMethodFlags(cf *ClassFile, m *Method) error {
	a := m.AccessFlags
	if visibilityCount(a) > 1 {
		return verifyErrorf(0, ErrAccessFlags, "conflicting visibility (%s)", a.MethodString())
	}

	if cf.IsInterface() && m.Name != "<clinit>" {
		for _, f := range []AccessFlags{AccProtected, AccFinal, AccNative, AccSynchronized} {
			if a.Has(f) {
				return verifyErrorf(0, ErrAccessFlags, "interface method is %s", methodFlagNames[f])
			}
		}
		if cf.MajorVersion < versionInterfaceRef && !a.Has(AccPublic|AccAbstract) {
			return verifyErrorf(0, ErrAccessFlags, "interface method must be public abstract before version %d", versionInterfaceRef)
		}
	}

	if a.Has(AccAbstract) {
		for _, f := range []AccessFlags{AccPrivate, AccStatic, AccFinal, AccNative, AccStrict, AccSynchronized} {
			if a.Has(f) {
				return verifyErrorf(0, ErrAccessFlags, "abstract method is %s", methodFlagNames[f])
			}
		}
	}

	if m.Name == "<clinit>" && cf.MajorVersion >= versionMethodHandle && !a.Has(AccStatic) {
		return verifyErrorf(0, ErrAccessFlags, "<clinit> must be static")
	}
	return nil
}

// checkExceptionTable checks that every handler covers a non-empty range
// inside the code array, that its handler starts inside the array, and that
// a non-zero catch_type names a Class.
func checkExceptionTable(pool *ConstantPool, c *CodeAttribute) error {
	n := c.CodeLength
	for i, h := range c.ExceptionHandlers {
		if h.StartPC >= h.EndPC || uint32(h.EndPC) > n {
			return verifyErrorf(0, ErrExceptionRange, "handler %d covers [%d, %d), code_length is %d", i, h.StartPC, h.EndPC, n)
		}
		if uint32(h.HandlerPC) >= n {
			return verifyErrorf(0, ErrExceptionRange, "handler %d starts at pc %d, code_length is %d", i, h.HandlerPC, n)
		}
		if h.CatchAll() {
			continue
		}
		if _, err := pool.ClassName(h.CatchType); err != nil {
			return fmt.Errorf("resolving catch type of handler %d: %w", i, err)
		}
	}
	return nil
}
