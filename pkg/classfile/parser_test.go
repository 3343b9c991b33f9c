package classfile

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmload/pkg/diag"
)

func TestParseHello(t *testing.T) {
	b := newClass(t, "Hello")
	b.method(AccPublic, "<init>", "()V", b.returnCode())
	b.method(AccPublic|AccStatic, "main", "([Ljava/lang/String;)V",
		b.code(2, 1, []byte{0x12, 0x01, 0x57, 0xb1}, nil, b.lineNumbers(LineNumber{0, 3}, LineNumber{3, 4})))
	b.attrs = append(b.attrs, b.attr(AttrSourceFile, u16s(b.utf8("Hello.java"))))

	cf := b.mustParse()
	assert.Equal(t, IntegrityChecked, cf.Status)
	assert.Equal(t, "Hello", cf.ShortName())
	assert.Equal(t, "java/lang/Object", cf.SuperClassName())
	assert.Equal(t, uint16(55), cf.MajorVersion)
	assert.True(t, cf.IsPublic())
	assert.True(t, cf.IsSuper())
	assert.False(t, cf.IsInterface())
	assert.Equal(t, "Hello.java", cf.SourceFile)

	name, err := cf.ClassName()
	require.NoError(t, err)
	assert.Equal(t, "Hello", name)

	main := cf.FindMethod("main", "([Ljava/lang/String;)V")
	require.NotNil(t, main)
	require.NotNil(t, main.Code)
	assert.Equal(t, uint16(2), main.Code.MaxStack)
	assert.Equal(t, uint32(4), main.Code.CodeLength)
	assert.Equal(t, []byte{0x12, 0x01, 0x57, 0xb1}, main.Code.Code)
	assert.Equal(t, []LineNumber{{0, 3}, {3, 4}}, main.Code.LineNumbers)
	assert.NotNil(t, cf.FindMethodByName("<init>"))
	assert.Nil(t, cf.FindMethod("main", "()V"))
}

// The smallest class that loads: a pool with only its own and its
// superclass's names, no members.
func TestParseMinimalClass(t *testing.T) {
	b := newClass(t, "Hello")
	cf := b.mustParse()
	assert.Equal(t, "Hello", cf.Name)
	assert.Empty(t, cf.Fields)
	assert.Empty(t, cf.Methods)
}

func TestParseBadMagic(t *testing.T) {
	buf := newClass(t, "Hello").bytes()
	copy(buf, []byte{0, 0, 0, 0})

	_, err := Parse(buf, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadMagic))
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, fe.Offset)
}

func TestDeclaredName(t *testing.T) {
	b := newClass(t, "com/x/Foo")
	b.method(AccPublic, "<init>", "()V", b.returnCode())
	name, err := DeclaredName(b.bytes())
	require.NoError(t, err)
	assert.Equal(t, "com/x/Foo", name)

	// only the prefix up to this_class is needed
	buf := b.bytes()
	name, err = DeclaredName(buf[:len(buf)-8])
	require.NoError(t, err)
	assert.Equal(t, "com/x/Foo", name)

	_, err = DeclaredName([]byte{0, 0, 0, 0, 0, 0, 0, 55, 0, 1})
	assert.True(t, errors.Is(err, ErrBadMagic))

	_, err = DeclaredName(buf[:9])
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestParseVersions(t *testing.T) {
	tests := []struct {
		name  string
		major uint16
		max   uint16
		ok    bool
	}{
		{"45", 45, 0, true},
		{"55", 55, 0, true},
		{"56 above default ceiling", 56, 0, false},
		{"61", 61, 0, false},
		{"44", 44, 0, false},
		{"55 above configured ceiling", 55, 52, false},
		{"52 at configured ceiling", 52, 52, true},
		{"61 with ceiling raised to 61", 61, 61, false},
		{"56 with ceiling raised to 65", 56, 65, false},
		{"55 with ceiling raised to 65", 55, 65, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newClass(t, "V")
			b.major = tt.major
			_, err := Parse(b.bytes(), Options{MaxMajorVersion: tt.max})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupportedVersion))
			assert.True(t, IsFormatError(err))
		})
	}
}

func TestParseTruncatedEverywhere(t *testing.T) {
	b := newClass(t, "T")
	b.field(AccPrivate, "x", "I")
	b.method(0, "run", "()V", b.code(1, 1, []byte{0x04, 0x57, 0xb1}, nil, b.lineNumbers(LineNumber{0, 1})))
	b.attrs = append(b.attrs, b.attr(AttrSourceFile, u16s(b.utf8("T.java"))))
	buf := b.bytes()
	_, err := Parse(buf, Options{})
	require.NoError(t, err)

	for n := 0; n < len(buf); n++ {
		_, err := Parse(buf[:n], Options{})
		require.Error(t, err, "prefix %d", n)
		assert.True(t, errors.Is(err, ErrTruncated), "prefix %d: %v", n, err)
		assert.True(t, IsFormatError(err), "prefix %d", n)
	}
}

func TestParseTrailingBytes(t *testing.T) {
	buf := append(newClass(t, "T").bytes(), 0x00)
	_, err := Parse(buf, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrailingBytes))
}

func TestParseClassAccessFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags AccessFlags
		ok    bool
	}{
		{"public super", AccPublic | AccSuper, true},
		{"interface", AccPublic | AccInterface | AccAbstract, true},
		{"annotation", AccInterface | AccAbstract | AccAnnotation, true},
		{"interface and final", AccInterface | AccAbstract | AccFinal, false},
		{"interface without abstract", AccInterface, false},
		{"interface and super", AccInterface | AccAbstract | AccSuper, false},
		{"interface and enum", AccInterface | AccAbstract | AccEnum, false},
		{"annotation on class", AccPublic | AccAnnotation, false},
		{"module on class", AccModule | AccPublic, false},
		{"final and abstract", AccFinal | AccAbstract, false},
		{"zero mask", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newClass(t, "F")
			b.flags = tt.flags
			_, err := b.parse()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAccessFlags), "got %v", err)
			assert.True(t, IsVerificationError(err))
		})
	}
}

func TestParseSuperclass(t *testing.T) {
	t.Run("java/lang/Object has none", func(t *testing.T) {
		b := newClass(t, "java/lang/Object")
		b.superClass = 0
		cf := b.mustParse()
		assert.Equal(t, "", cf.SuperClassName())
	})
	t.Run("other classes need one", func(t *testing.T) {
		b := newClass(t, "Orphan")
		b.superClass = 0
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrNoSuperclass))
	})
	t.Run("super_class must be a Class", func(t *testing.T) {
		b := newClass(t, "Odd")
		b.superClass = b.utf8("java/lang/Object")
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrWrongTag))
	})
	t.Run("this_class out of range", func(t *testing.T) {
		b := newClass(t, "Odd")
		b.thisClass = 200
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrBadIndex))
	})
}

func TestParseInterfaces(t *testing.T) {
	b := newClass(t, "Impl")
	b.interfaces = []uint16{b.class("java/lang/Runnable"), b.class("java/io/Serializable")}
	cf := b.mustParse()
	assert.Equal(t, []string{"java/lang/Runnable", "java/io/Serializable"}, cf.InterfaceNames)

	b = newClass(t, "Impl")
	b.interfaces = []uint16{b.utf8("java/lang/Runnable")}
	_, err := b.parse()
	assert.True(t, errors.Is(err, ErrWrongTag))
}

func TestParseFields(t *testing.T) {
	b := newClass(t, "Consts")
	b.field(AccPublic|AccStatic|AccFinal, "I", "I", b.attr(AttrConstantValue, u16s(b.integer(7))))
	b.field(AccStatic|AccFinal, "J", "J", b.attr(AttrConstantValue, u16s(b.long(-1))))
	b.field(AccStatic|AccFinal, "F", "F", b.attr(AttrConstantValue, u16s(b.float(0.5))))
	b.field(AccStatic|AccFinal, "D", "D", b.attr(AttrConstantValue, u16s(b.double(1e100))))
	b.field(AccStatic|AccFinal, "S", "Ljava/lang/String;", b.attr(AttrConstantValue, u16s(b.str("s"))))
	b.field(AccStatic|AccFinal, "Z", "Z", b.attr(AttrConstantValue, u16s(b.integer(1))))
	b.field(AccPrivate, "plain", "Ljava/lang/Object;",
		b.attr("RuntimeVisibleAnnotations", []byte{0, 0}),
		b.attr(AttrSynthetic, nil),
		b.attr(AttrDeprecated, nil))

	cf := b.mustParse()
	want := map[string]any{"I": int32(7), "J": int64(-1), "F": float32(0.5), "D": 1e100, "S": "s", "Z": int32(1)}
	for name, v := range want {
		f := cf.FindField(name)
		require.NotNil(t, f, name)
		assert.Equal(t, v, f.ConstantValue, name)
	}
	plain := cf.FindField("plain")
	require.NotNil(t, plain)
	assert.Nil(t, plain.ConstantValue)
	assert.True(t, plain.Synthetic)
	assert.True(t, plain.Deprecated)
	assert.Equal(t, "private", plain.AccessFlags.FieldString())
}

// recorder is a diag.Sink that keeps every record.
type recorder struct {
	mu      sync.Mutex
	records []record
}

type record struct {
	level diag.Level
	msg   string
}

func (r *recorder) Log(level diag.Level, msg string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{level, msg})
}

func (r *recorder) Enabled(diag.Level) bool { return true }
func (r *recorder) With(...any) diag.Sink   { return r }

func (r *recorder) count(level diag.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.level == level {
			n++
		}
	}
	return n
}

func TestParseConstantValueDegrades(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		index func(b *classBuilder) uint16
	}{
		{"string for int", "I", func(b *classBuilder) uint16 { return b.str("x") }},
		{"int for long", "J", func(b *classBuilder) uint16 { return b.integer(1) }},
		{"out of range", "I", func(*classBuilder) uint16 { return 999 }},
		{"zero", "I", func(*classBuilder) uint16 { return 0 }},
		{"array descriptor", "[I", func(b *classBuilder) uint16 { return b.integer(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newClass(t, "W")
			b.field(AccStatic|AccFinal, "f", tt.desc, b.attr(AttrConstantValue, u16s(tt.index(b))))
			rec := &recorder{}
			cf, err := Parse(b.bytes(), Options{Sink: rec})
			require.NoError(t, err)
			assert.Nil(t, cf.Fields[0].ConstantValue)
			assert.Equal(t, 1, rec.count(diag.Warning))
		})
	}
}

func TestParseFieldErrors(t *testing.T) {
	t.Run("ConstantValue length", func(t *testing.T) {
		b := newClass(t, "E")
		b.field(AccStatic, "f", "I", b.attr(AttrConstantValue, []byte{0, 1, 0}))
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAttributeLength))
	})
	t.Run("ConstantValue too short", func(t *testing.T) {
		b := newClass(t, "E")
		b.field(AccStatic, "f", "I", b.attr(AttrConstantValue, []byte{0}))
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAttributeLength))
		assert.Contains(t, err.Error(), "E.f")
	})
	t.Run("conflicting visibility", func(t *testing.T) {
		b := newClass(t, "E")
		b.field(AccPublic|AccPrivate, "f", "I")
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAccessFlags))
		var ve *VerificationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "E", ve.Class)
		assert.Equal(t, "f", ve.Member)
	})
	t.Run("final volatile", func(t *testing.T) {
		b := newClass(t, "E")
		b.field(AccFinal|AccVolatile, "f", "I")
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAccessFlags))
	})
	t.Run("interface field not static", func(t *testing.T) {
		b := newClass(t, "E")
		b.flags = AccInterface | AccAbstract
		b.field(AccPublic|AccFinal, "f", "I")
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAccessFlags))
	})
	t.Run("descriptor not Utf8", func(t *testing.T) {
		b := newClass(t, "E")
		var w Writer
		w.Write(u16s(0, b.utf8("f"), b.thisClass, 0))
		b.fields = append(b.fields, w.Bytes())
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrWrongTag))
	})
}

func TestParseMethodAttributes(t *testing.T) {
	b := newClass(t, "M")
	ioe := b.class("java/io/IOException")
	b.method(AccPublic, "read", "(I)I",
		b.attr("Unknown", []byte{1, 2, 3, 4, 5}),
		b.returnCode(),
		b.attr(AttrExceptions, u16s(1, ioe)),
		b.attr(AttrMethodParameters, cat([]byte{2}, u16s(b.utf8("n"), uint16(AccFinal), 0, 0))),
		b.attr(AttrSignature, u16s(b.utf8("(I)I"))),
		b.attr(AttrDeprecated, nil),
		b.attr(AttrSynthetic, nil))

	cf := b.mustParse()
	m := cf.FindMethodByName("read")
	require.NotNil(t, m)
	assert.NotNil(t, m.Code)
	assert.Equal(t, []string{"java/io/IOException"}, m.ExceptionNames)
	assert.Equal(t, []MethodParameter{
		{NameIndex: b.utf8("n"), Name: "n", AccessFlags: AccFinal},
		{},
	}, m.Parameters)
	assert.True(t, m.Deprecated)
	assert.True(t, m.Synthetic)
}

func TestParseMethodAttributeErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs func(b *classBuilder) [][]byte
		want  error
	}{
		{"duplicate Code", func(b *classBuilder) [][]byte {
			return [][]byte{b.returnCode(), b.returnCode()}
		}, ErrDuplicateAttribute},
		{"duplicate Exceptions", func(b *classBuilder) [][]byte {
			e := b.attr(AttrExceptions, u16s(0))
			return [][]byte{b.returnCode(), e, e}
		}, ErrDuplicateAttribute},
		{"Exceptions longer than contents", func(b *classBuilder) [][]byte {
			return [][]byte{b.returnCode(), b.attr(AttrExceptions, u16s(1, b.class("E"), 0))}
		}, ErrAttributeLength},
		{"Exceptions entry not a Class", func(b *classBuilder) [][]byte {
			return [][]byte{b.returnCode(), b.attr(AttrExceptions, u16s(1, b.utf8("E")))}
		}, ErrWrongTag},
		{"MethodParameters shorter than contents", func(b *classBuilder) [][]byte {
			return [][]byte{b.returnCode(), b.attr(AttrMethodParameters, []byte{1, 0, 0})}
		}, ErrTruncated},
		{"Deprecated with a body", func(b *classBuilder) [][]byte {
			return [][]byte{b.returnCode(), b.attr(AttrDeprecated, []byte{0})}
		}, ErrAttributeLength},
		{"attribute name not Utf8", func(b *classBuilder) [][]byte {
			var w Writer
			w.U16(b.thisClass)
			w.U32(0)
			return [][]byte{b.returnCode(), w.Bytes()}
		}, ErrWrongTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newClass(t, "M")
			b.method(AccPublic, "m", "()V", tt.attrs(b)...)
			_, err := b.parse()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseMethodErrorNamesPhase(t *testing.T) {
	b := newClass(t, "M")
	var w Writer
	w.Write(u16s(uint16(AccPublic), b.utf8("m"), 999, 0))
	b.methods = append(b.methods, w.Bytes())

	_, err := b.parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after name resolved")
	var ve *VerificationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "M", ve.Class)
	assert.Equal(t, "m", ve.Member)
}

func TestParseCodeLength(t *testing.T) {
	tests := []struct {
		name string
		n    int
		ok   bool
	}{
		{"0", 0, false},
		{"1", 1, true},
		{"65535", 65535, true},
		{"65536", 65536, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newClass(t, "L")
			code := make([]byte, tt.n) // nop
			b.method(AccStatic, "m", "()V", b.code(0, 0, code, nil))
			cf, err := b.parse()
			if tt.ok {
				require.NoError(t, err)
				assert.Len(t, cf.Methods[0].Code.Code, tt.n)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCodeLength))
			assert.True(t, IsVerificationError(err))
		})
	}
}

func TestParseCodeNestedAttributes(t *testing.T) {
	b := newClass(t, "C")
	b.method(AccStatic, "m", "()V", b.code(0, 0, []byte{0x00, 0xb1}, nil,
		b.attr("StackMapTable", []byte{0, 0}),
		b.lineNumbers(LineNumber{0, 10}),
		b.attr("LocalVariableTable", []byte{0, 0}),
		b.lineNumbers(LineNumber{1, 11})))
	cf := b.mustParse()
	assert.Equal(t, []LineNumber{{0, 10}, {1, 11}}, cf.Methods[0].Code.LineNumbers)

	t.Run("LineNumberTable longer than contents", func(t *testing.T) {
		b := newClass(t, "C")
		b.method(AccStatic, "m", "()V", b.code(0, 0, []byte{0xb1}, nil,
			b.attr(AttrLineNumberTable, cat(u16s(1, 0, 1), []byte{0xff}))))
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAttributeLength))
	})
	t.Run("Code longer than contents", func(t *testing.T) {
		b := newClass(t, "C")
		var w Writer
		w.Write(u16s(0, 0))
		w.U32(1)
		w.Write([]byte{0xb1})
		w.Write(u16s(0, 0, 0xffff))
		b.method(AccStatic, "m", "()V", b.attr(AttrCode, w.Bytes()))
		_, err := b.parse()
		assert.True(t, errors.Is(err, ErrAttributeLength))
	})
}

func TestParseSkipsUnknownClassAttributes(t *testing.T) {
	b := newClass(t, "K")
	b.attrs = append(b.attrs,
		b.attr("InnerClasses", []byte{0, 0}),
		b.attr(AttrDeprecated, nil),
		b.attr(AttrSignature, u16s(b.utf8("LK;"))),
		b.attr(AttrSynthetic, nil))
	cf := b.mustParse()
	assert.True(t, cf.Deprecated)
	assert.True(t, cf.Synthetic)
}

func TestParseBootstrapMethods(t *testing.T) {
	b := newClass(t, "Lambda")
	mf := b.methodref("java/lang/invoke/LambdaMetafactory", "metafactory", "()Ljava/lang/invoke/CallSite;")
	handle := b.add(1, TagMethodHandle, cat([]byte{RefInvokeStatic}, u16s(mf))...)
	arg := b.add(1, TagMethodType, u16s(b.utf8("()V"))...)
	b.add(1, TagInvokeDynamic, u16s(0, b.nat("run", "()Ljava/lang/Runnable;"))...)
	b.attrs = append(b.attrs, b.attr(AttrBootstrapMethods, u16s(1, handle, 1, arg)))

	cf := b.mustParse()
	assert.Equal(t, []BootstrapMethod{{MethodRef: handle, BootstrapArguments: []uint16{arg}}}, cf.BootstrapMethods)

	b = newClass(t, "Lambda")
	b.attrs = append(b.attrs, b.attr(AttrBootstrapMethods, u16s(1, b.thisClass, 0)))
	_, err := b.parse()
	assert.True(t, errors.Is(err, ErrWrongTag))
}

func TestParseReportsPoolViolations(t *testing.T) {
	b := newClass(t, "P")
	b.add(1, TagClass, u16s(b.thisClass)...)
	b.add(1, TagString, u16s(999)...)

	rec := &recorder{}
	_, err := Parse(b.bytes(), Options{ClassName: "P", Sink: rec})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrongTag))
	var ve *VerificationError
	require.True(t, errors.As(err, &ve))
	// this_class is not resolved yet, so the caller's name is used
	assert.Equal(t, "P", ve.Class)
	// two violations plus the final failure
	assert.Equal(t, 3, rec.count(diag.Severe))
}

func TestParseLogs(t *testing.T) {
	b := newClass(t, "Logged")
	b.method(AccPublic, "<init>", "()V", b.returnCode())

	var buf bytes.Buffer
	_, err := Parse(b.bytes(), Options{ClassName: "Logged", Sink: diag.New(&buf, diag.Finest)})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "level=CLASS")
	assert.Contains(t, out, "msg=\"class loaded\"")
	assert.Contains(t, out, "level=FINEST")
	assert.Contains(t, out, "<init>")

	buf.Reset()
	_, err = Parse(b.bytes(), Options{ClassName: "Logged", Sink: diag.New(&buf, diag.Warning)})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
