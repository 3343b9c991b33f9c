package classfile

import (
	"sort"
	"strings"
)

// AccessFlags is the access_flags mask of a class, field, method or
// method parameter. Several bits mean different things depending on where
// the mask appears.
type AccessFlags uint16

// Access flags
const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // classes
	AccSynchronized AccessFlags = 0x0020 // methods
	AccVolatile     AccessFlags = 0x0040 // fields
	AccBridge       AccessFlags = 0x0040 // methods
	AccTransient    AccessFlags = 0x0080 // fields
	AccVarargs      AccessFlags = 0x0080 // methods
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccModule       AccessFlags = 0x8000 // classes
	AccMandated     AccessFlags = 0x8000 // parameters
)

// Has reports whether every bit of f is set.
func (a AccessFlags) Has(f AccessFlags) bool { return a&f == f }

var classFlagNames = map[AccessFlags]string{
	AccPublic:     "public",
	AccFinal:      "final",
	AccSuper:      "super",
	AccInterface:  "interface",
	AccAbstract:   "abstract",
	AccSynthetic:  "synthetic",
	AccAnnotation: "annotation",
	AccEnum:       "enum",
	AccModule:     "module",
}

var methodFlagNames = map[AccessFlags]string{
	AccPublic:       "public",
	AccPrivate:      "private",
	AccProtected:    "protected",
	AccStatic:       "static",
	AccFinal:        "final",
	AccSynchronized: "synchronized",
	AccBridge:       "bridge",
	AccVarargs:      "varargs",
	AccNative:       "native",
	AccAbstract:     "abstract",
	AccStrict:       "strictfp",
	AccSynthetic:    "synthetic",
}

var fieldFlagNames = map[AccessFlags]string{
	AccPublic:    "public",
	AccPrivate:   "private",
	AccProtected: "protected",
	AccStatic:    "static",
	AccFinal:     "final",
	AccVolatile:  "volatile",
	AccTransient: "transient",
	AccSynthetic: "synthetic",
	AccEnum:      "enum",
}

func flagString(a AccessFlags, names map[AccessFlags]string) string {
	bits := make([]AccessFlags, 0, len(names))
	for bit := range names {
		if a.Has(bit) {
			bits = append(bits, bit)
		}
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
	words := make([]string, len(bits))
	for i, bit := range bits {
		words[i] = names[bit]
	}
	return strings.Join(words, " ")
}

// ClassString renders a as class modifiers.
func (a AccessFlags) ClassString() string { return flagString(a, classFlagNames) }

// MethodString renders a as method modifiers.
func (a AccessFlags) MethodString() string { return flagString(a, methodFlagNames) }

// FieldString renders a as field modifiers.
func (a AccessFlags) FieldString() string { return flagString(a, fieldFlagNames) }

// checkClassFlags applies the class access_flags rules of JVMS 4.1.
func checkClassFlags(a AccessFlags) error {
	if a == 0 {
		return verifyErrorf(0, ErrAccessFlags, "class access mask is zero")
	}
	if a.Has(AccInterface) {
		if !a.Has(AccAbstract) {
			return verifyErrorf(0, ErrAccessFlags, "interface must be abstract")
		}
		for _, f := range []AccessFlags{AccSuper, AccFinal, AccEnum, AccModule} {
			if a.Has(f) {
				return verifyErrorf(0, ErrAccessFlags, "interface must not be %s", classFlagNames[f])
			}
		}
	} else {
		if a.Has(AccAnnotation) {
			return verifyErrorf(0, ErrAccessFlags, "annotation must be an interface")
		}
		if a.Has(AccModule) {
			return verifyErrorf(0, ErrAccessFlags, "module flag set on a class")
		}
		if a.Has(AccFinal | AccAbstract) {
			return verifyErrorf(0, ErrAccessFlags, "class is both final and abstract")
		}
	}
	return nil
}

// visibilityCount counts how many of public/private/protected are set.
func visibilityCount(a AccessFlags) int {
	n := 0
	for _, f := range []AccessFlags{AccPublic, AccPrivate, AccProtected} {
		if a.Has(f) {
			n++
		}
	}
	return n
}

// checkFieldFlags applies the field access_flags rules of JVMS 4.5.
func checkFieldFlags(a AccessFlags, inInterface bool) error {
	if visibilityCount(a) > 1 {
		return verifyErrorf(0, ErrAccessFlags, "field has conflicting visibility (%s)", a.FieldString())
	}
	if a.Has(AccFinal | AccVolatile) {
		return verifyErrorf(0, ErrAccessFlags, "field is both final and volatile")
	}
	if inInterface && !a.Has(AccPublic|AccStatic|AccFinal) {
		return verifyErrorf(0, ErrAccessFlags, "interface field must be public static final")
	}
	return nil
}
