package classfile

// Status describes how far a ClassFile has progressed through decoding.
type Status int

const (
	Unparsed Status = iota
	StructurallyParsed
	IntegrityChecked
)

func (s Status) String() string {
	switch s {
	case StructurallyParsed:
		return "StructurallyParsed"
	case IntegrityChecked:
		return "IntegrityChecked"
	default:
		return "Unparsed"
	}
}

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []Field
	Methods      []Method
	Status       Status

	// Resolved names, in internal form (java/lang/Object).
	Name           string
	SuperName      string
	InterfaceNames []string

	SourceFile       string
	Deprecated       bool
	Synthetic        bool
	BootstrapMethods []BootstrapMethod
}

// ShortName returns the class name.
func (cf *ClassFile) ShortName() string { return cf.Name }

// SuperClassName returns the super class name, or "" for java/lang/Object.
func (cf *ClassFile) SuperClassName() string { return cf.SuperName }

func (cf *ClassFile) IsPublic() bool     { return cf.AccessFlags.Has(AccPublic) }
func (cf *ClassFile) IsFinal() bool      { return cf.AccessFlags.Has(AccFinal) }
func (cf *ClassFile) IsSuper() bool      { return cf.AccessFlags.Has(AccSuper) }
func (cf *ClassFile) IsInterface() bool  { return cf.AccessFlags.Has(AccInterface) }
func (cf *ClassFile) IsAbstract() bool   { return cf.AccessFlags.Has(AccAbstract) }
func (cf *ClassFile) IsSynthetic() bool  { return cf.AccessFlags.Has(AccSynthetic) }
func (cf *ClassFile) IsAnnotation() bool { return cf.AccessFlags.Has(AccAnnotation) }
func (cf *ClassFile) IsEnum() bool       { return cf.AccessFlags.Has(AccEnum) }
func (cf *ClassFile) IsModule() bool     { return cf.AccessFlags.Has(AccModule) }

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *Method {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *Method {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name.
func (cf *ClassFile) FindField(name string) *Field {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// Field represents a field in a class file.
type Field struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string

	// ConstantValueIndex is the pool index named by a ConstantValue
	// attribute, 0 if there was none.
	ConstantValueIndex uint16
	// ConstantValue is the resolved initializer: int32, int64, float32,
	// float64 or string. Nil when absent or unusable.
	ConstantValue any

	Deprecated bool
	Synthetic  bool
}

// Method represents a method in a class file.
type Method struct {
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Code            *CodeAttribute

	// Exceptions lists the pool indices of the declared checked exceptions;
	// ExceptionNames holds their resolved class names. Nil when the method
	// has no Exceptions attribute.
	Exceptions     []uint16
	ExceptionNames []string
	Parameters     []MethodParameter
	Deprecated     bool
	Synthetic      bool
}

// MethodParameter is one entry of a MethodParameters attribute. NameIndex 0
// means the parameter is unnamed.
type MethodParameter struct {
	NameIndex   uint16
	Name        string
	AccessFlags AccessFlags
}

// ExceptionHandler represents an entry in the exception table.
// CatchType 0 catches everything (finally blocks).
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CatchAll reports whether the handler has no catch type.
func (h ExceptionHandler) CatchAll() bool { return h.CatchType == 0 }

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	CodeLength        uint32
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	LineNumbers       []LineNumber
}

// BootstrapMethod is one entry of the BootstrapMethods class attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}
