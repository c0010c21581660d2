// Package script defines the minimal tagged value model the behavior-tree
// core consumes from its host scripting language. The language itself (the
// reader, evaluator, garbage collector, and full value domain) is an
// external collaborator — this package only implements the narrow slice of
// the value model the core needs: nil/bool/int/float/symbol/string/cons,
// plus a small reader sufficient to parse the BT form grammar the compiler
// recognizes (see pkg/bt/compiler). It is an adapter, not a language.
//
// This package intentionally does not implement a garbage collector, macro
// expander, or general evaluator; those live in the host language.
package script

import "fmt"

// Kind discriminates the tagged value variants the core understands.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindSymbol
	KindString
	KindCons
)

// Value is a tagged, immutable value in the host scripting language's value
// domain, restricted to the variants the BT core needs to cross the host
// boundary.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	text string // symbol or string payload
	car  *Value
	cdr  *Value
}

// Nil returns the nil value.
func Nil() Value { return Value{kind: KindNil} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a 64-bit float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Symbol wraps a symbol name.
func Symbol(name string) Value { return Value{kind: KindSymbol, text: name} }

// String wraps a string literal.
func String(text string) Value { return Value{kind: KindString, text: text} }

// Cons builds a pair cell (car . cdr).
func Cons(car, cdr Value) Value {
	return Value{kind: KindCons, car: &car, cdr: &cdr}
}

// List builds a proper list terminated by Nil, the way the reader's cons
// cells do.
func List(items ...Value) Value {
	out := Nil()
	for i := len(items) - 1; i >= 0; i-- {
		out = Cons(items[i], out)
	}
	return out
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) IsCons() bool { return v.kind == KindCons }
func (v Value) IsSymbol() bool { return v.kind == KindSymbol }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsInt() bool { return v.kind == KindInt }
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// BoolValue returns the boolean payload; the zero value if not a bool.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integer payload; the zero value if not an int.
func (v Value) IntValue() int64 { return v.i }

// FloatValue returns the float payload; the zero value if not a float.
func (v Value) FloatValue() float64 { return v.f }

// SymbolName returns the symbol payload; empty if not a symbol.
func (v Value) SymbolName() string { return v.text }

// StringValue returns the string payload; empty if not a string.
func (v Value) StringValue() string { return v.text }

// Car returns the head of a cons cell. Panics if v is not a cons.
func (v Value) Car() Value {
	if v.kind != KindCons {
		panic("script: Car of non-cons value")
	}
	return *v.car
}

// Cdr returns the tail of a cons cell. Panics if v is not a cons.
func (v Value) Cdr() Value {
	if v.kind != KindCons {
		panic("script: Cdr of non-cons value")
	}
	return *v.cdr
}

// Items flattens a proper list into a slice, the way the compiler's
// vector_from_list helper does in the original implementation.
func Items(list Value) ([]Value, error) {
	var out []Value
	cur := list
	for {
		if cur.IsNil() {
			return out, nil
		}
		if !cur.IsCons() {
			return nil, fmt.Errorf("script: improper list")
		}
		out = append(out, cur.Car())
		cur = cur.Cdr()
	}
}

// String renders a value for diagnostics and trace/log reprs.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "#t"
		}
		return "#f"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindSymbol:
		return v.text
	case KindString:
		return fmt.Sprintf("%q", v.text)
	case KindCons:
		items, err := Items(v)
		if err != nil {
			return fmt.Sprintf("(%s . %s)", v.Car(), v.Cdr())
		}
		out := "("
		for i, it := range items {
			if i > 0 {
				out += " "
			}
			out += it.String()
		}
		return out + ")"
	default:
		return "<unknown>"
	}
}
