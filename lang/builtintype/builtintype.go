// Package builtintype enumerates the handful of built-in type tokens that
// PushBuiltinTy can reference directly, without a constant-pool round trip.
// It is kept separate from both lang/compiler and lang/vm so that the code
// generator and the virtual machine agree on the numbering without either
// importing the other.
package builtintype

// ID is one of the built-in type tokens addressable by PushBuiltinTy<id8>.
type ID uint8

const (
	Any ID = iota
	Int
	Float
	Bool
	String
	List
	Type
	Unit
)

var names = map[string]ID{
	"Any":    Any,
	"Int":    Int,
	"Float":  Float,
	"Bool":   Bool,
	"String": String,
	"List":   List,
	"Type":   Type,
	"Unit":   Unit,
}

var strings = [...]string{
	Any: "Any", Int: "Int", Float: "Float", Bool: "Bool",
	String: "String", List: "List", Type: "Type", Unit: "Unit",
}

// Lookup returns the ID for a built-in type name, such as the compiler uses
// to resolve a TypeRef naming one of these tokens.
func Lookup(name string) (ID, bool) {
	id, ok := names[name]
	return id, ok
}

func (id ID) String() string {
	if int(id) < len(strings) {
		return strings[id]
	}
	return "invalid builtintype"
}
