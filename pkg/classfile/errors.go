package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// Format errors: the bytes do not follow the class file layout.
var (
	ErrTruncated          = errors.New("truncated class file")
	ErrBadMagic           = errors.New("bad magic number")
	ErrUnsupportedVersion = errors.New("unsupported class file version")
	ErrBadUtf8            = errors.New("malformed modified UTF-8")
	ErrUnknownTag         = errors.New("unknown constant pool tag")
	ErrSlotCount          = errors.New("constant pool slot count mismatch")
	ErrAttributeLength    = errors.New("attribute length mismatch")
	ErrDuplicateAttribute = errors.New("duplicate attribute")
	ErrTrailingBytes      = errors.New("trailing bytes after class attributes")
)

// Verification errors: the layout is fine but a semantic rule is broken.
var (
	ErrBadIndex        = errors.New("invalid constant pool index")
	ErrWrongTag        = errors.New("constant pool entry has wrong tag")
	ErrBadUtf8Byte     = errors.New("disallowed byte in Utf8 constant")
	ErrBadName         = errors.New("illegal member name")
	ErrReferenceKind   = errors.New("invalid method handle reference kind")
	ErrVersionGate     = errors.New("feature not allowed in this class file version")
	ErrAccessFlags     = errors.New("illegal access flags")
	ErrCodeLength      = errors.New("invalid code length")
	ErrExceptionRange  = errors.New("exception table entry out of range")
	ErrMissingCode     = errors.New("missing Code attribute")
	ErrUnexpectedCode  = errors.New("unexpected Code attribute")
	ErrBadOpcode       = errors.New("illegal instruction")
	ErrLineNumberRange = errors.New("line number entry out of range")
	ErrNoSuperclass    = errors.New("missing superclass")
	ErrNameMismatch    = errors.New("class file declares a different class")
)

// FormatError reports bytes that do not conform to the binary layout.
type FormatError struct {
	Class  string // class name, once known
	Member string // field or method, when applicable
	Index  int    // constant pool index, 0 when not applicable
	Offset int    // byte offset into the class file, -1 when unknown
	Err    error
}

func (e *FormatError) Error() string {
	return describe("class format error", e.Class, e.Member, e.Index, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// VerificationError reports a structurally well-formed class that breaks a
// rule of the class file format.
type VerificationError struct {
	Class  string
	Member string
	Index  int
	Err    error
}

func (e *VerificationError) Error() string {
	return describe("class verification error", e.Class, e.Member, e.Index, -1, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func describe(kind, class, member string, index, offset int, err error) string {
	var b strings.Builder
	b.WriteString(kind)
	if class != "" {
		fmt.Fprintf(&b, " in %s", class)
	}
	if member != "" {
		fmt.Fprintf(&b, ".%s", member)
	}
	if index > 0 {
		fmt.Fprintf(&b, " (constant pool index %d)", index)
	}
	if offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", offset)
	}
	if err != nil {
		fmt.Fprintf(&b, ": %v", err)
	}
	return b.String()
}

func formatErrorf(offset int, sentinel error, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

func verifyErrorf(index int, sentinel error, format string, args ...any) *VerificationError {
	return &VerificationError{Index: index, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

// stamp fills in the class and member names on any typed error in err's
// chain that does not carry them yet.
func stamp(err error, class, member string) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Class == "" {
			fe.Class = class
		}
		if fe.Member == "" {
			fe.Member = member
		}
	}
	var ve *VerificationError
	if errors.As(err, &ve) {
		if ve.Class == "" {
			ve.Class = class
		}
		if ve.Member == "" {
			ve.Member = member
		}
	}
	return err
}

// IsFormatError reports whether err is, or wraps, a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsVerificationError reports whether err is, or wraps, a *VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
