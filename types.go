// types.go: the type registry.
//
// A type name resolves once, when a CallDescriptor is built, into a
// TypeDescriptor carrying a closed TypeTag. Every encode/decode afterwards
// switches on the tag; no string is parsed on the call path.

package dynffi

import (
	"fmt"
	"math/bits"
	"runtime"
	"sort"
	"unsafe"
)

// TypeTag identifies one supported native primitive.
type TypeTag uint8

const (
	TagInt8 TypeTag = iota + 1
	TagUint8
	TagInt16
	TagUint16
	TagInt32
	TagUint32
	TagInt64
	TagUint64
	TagFloat
	TagDouble
	TagLongDouble
	TagChar
	TagUchar
	TagPointer
	TagString
	TagVoid
	TagCallback
)

// ValueClass partitions tags by how their bits are interpreted.
type ValueClass uint8

const (
	ClassInteger ValueClass = iota
	ClassFloating
	ClassPointer
)

func (c ValueClass) String() string {
	switch c {
	case ClassInteger:
		return "integer"
	case ClassFloating:
		return "floating"
	case ClassPointer:
		return "pointer"
	}
	return "unknown"
}

// MaxSlotSize is the width of one argument or result slot. It covers the
// largest primitive (long double) and keeps every slot aligned for any tag.
const MaxSlotSize = 16

const ptrSize = unsafe.Sizeof(uintptr(0))

// TypeDescriptor is the resolved form of a type name.
type TypeDescriptor struct {
	Tag    TypeTag
	Name   string // canonical tag name
	Size   uintptr
	Class  ValueClass
	Signed bool
}

func (d TypeDescriptor) String() string { return d.Name }

// IsVoid reports whether d is the void tag.
func (d TypeDescriptor) IsVoid() bool { return d.Tag == TagVoid }

var tagTable = map[TypeTag]TypeDescriptor{}

// names holds canonical names and platform aliases.
var names = map[string]TypeTag{}

func defTag(tag TypeTag, name string, size uintptr, class ValueClass, signed bool) {
	tagTable[tag] = TypeDescriptor{Tag: tag, Name: name, Size: size, Class: class, Signed: signed}
	names[name] = tag
}

func init() {
	defTag(TagInt8, "int8", 1, ClassInteger, true)
	defTag(TagUint8, "uint8", 1, ClassInteger, false)
	defTag(TagInt16, "int16", 2, ClassInteger, true)
	defTag(TagUint16, "uint16", 2, ClassInteger, false)
	defTag(TagInt32, "int32", 4, ClassInteger, true)
	defTag(TagUint32, "uint32", 4, ClassInteger, false)
	defTag(TagInt64, "int64", 8, ClassInteger, true)
	defTag(TagUint64, "uint64", 8, ClassInteger, false)
	defTag(TagFloat, "float", 4, ClassFloating, true)
	defTag(TagDouble, "double", 8, ClassFloating, true)
	defTag(TagLongDouble, "longdouble", longDoubleSize, ClassFloating, true)
	defTag(TagChar, "char", 1, ClassInteger, true)
	defTag(TagUchar, "uchar", 1, ClassInteger, false)
	defTag(TagPointer, "pointer", ptrSize, ClassPointer, false)
	defTag(TagString, "string", ptrSize, ClassPointer, false)
	defTag(TagVoid, "void", 0, ClassInteger, false)
	defTag(TagCallback, "callback", ptrSize, ClassPointer, false)

	names["int"] = TagInt32
	names["uint"] = TagUint32
	names["size_t"] = TagUint64
	names["ssize_t"] = TagInt64
	if cLongBits() == 64 {
		names["long"] = TagInt64
		names["ulong"] = TagUint64
	} else {
		names["long"] = TagInt32
		names["ulong"] = TagUint32
	}
}

// cLongBits is the width of C long: LLP64 on windows, the machine word elsewhere.
func cLongBits() int {
	if runtime.GOOS == "windows" {
		return 32
	}
	return bits.UintSize
}

// ResolveType maps a type name (canonical or alias) to its descriptor.
// Unknown names fail with InvalidType.
func ResolveType(name string) (TypeDescriptor, error) {
	tag, ok := names[name]
	if !ok {
		return TypeDescriptor{}, newError(KindInvalidType, "", "unknown type %q", name)
	}
	return tagTable[tag], nil
}

// Descriptor returns the descriptor of a tag.
func (t TypeTag) Descriptor() TypeDescriptor { return tagTable[t] }

func (t TypeTag) String() string {
	if d, ok := tagTable[t]; ok {
		return d.Name
	}
	return fmt.Sprintf("TypeTag(%d)", uint8(t))
}

// TypeNames lists every recognized type name, aliases included, sorted.
func TypeNames() []string {
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// CallDescriptor is one native call shape. It is immutable once built.
type CallDescriptor struct {
	Ret  TypeDescriptor
	Args []TypeDescriptor
}

// NewCallDescriptor resolves ret and args. void is only valid as a return
// type.
func NewCallDescriptor(ret string, args []string) (*CallDescriptor, error) {
	rd, err := ResolveType(ret)
	if err != nil {
		return nil, newError(KindInvalidType, "", "return type: unknown type %q", ret)
	}
	d := &CallDescriptor{Ret: rd, Args: make([]TypeDescriptor, len(args))}
	for i, a := range args {
		ad, err := ResolveType(a)
		if err != nil {
			return nil, newError(KindInvalidType, "", "argument %d: unknown type %q", i, a)
		}
		if ad.IsVoid() {
			return nil, newError(KindInvalidType, "", "argument %d: void is not a valid argument type", i)
		}
		d.Args[i] = ad
	}
	return d, nil
}

func (d *CallDescriptor) String() string {
	s := "("
	for i, a := range d.Args {
		if i > 0 {
			s += ", "
		}
		s += a.Name
	}
	return s + ") -> " + d.Ret.Name
}
