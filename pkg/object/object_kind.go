// pkg/object/object_kind.go
package object

// Kind represents the type of a variable using an enum for faster comparisons.
type Kind uint8

const (
	KindUnresolved Kind = iota
	KindInt
	KindFloat
	KindString
	KindStringConcat
	KindList
	KindForList
	KindReference
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindStringConcat:
		return "STRING_CONCAT"
	case KindList:
		return "LIST"
	case KindForList:
		return "FOR_LIST"
	case KindReference:
		return "REFERENCE"
	case KindBool:
		return "BOOLEAN"
	default:
		return "UNRESOLVED"
	}
}

// Resolved reports whether a variable of this kind carries a usable payload.
func (k Kind) Resolved() bool {
	return k != KindUnresolved
}

// Numeric reports whether arithmetic and ordering apply to the kind.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}
