package bencode

import (
	"bytes"
	"fmt"
	"sort"

	"btfetch/common/fault"

	"github.com/elliotchance/orderedmap"
)

type Kind int

const (
	KindInt Kind = iota + 1
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one of Int, String, List or *Dict.
type Value interface {
	Kind() Kind
	isValue()
}

type Int int64

type String []byte

type List []Value

// Dict keeps keys in the order they were inserted. Keys are raw byte strings.
type Dict struct {
	m *orderedmap.OrderedMap
}

func (Int) Kind() Kind    { return KindInt }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (*Dict) Kind() Kind  { return KindDict }

func (Int) isValue()    {}
func (String) isValue() {}
func (List) isValue()   {}
func (*Dict) isValue()  {}

func NewDict() *Dict {
	return &Dict{m: orderedmap.NewOrderedMap()}
}

// Set returns false if key already existed; its value is replaced in place.
func (d *Dict) Set(key string, v Value) bool {
	return d.m.Set(key, v)
}

func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.m.Get(key)
	if !ok {
		return nil, false
	}
	return v.(Value), true
}

func (d *Dict) Has(key string) bool {
	_, ok := d.m.Get(key)
	return ok
}

func (d *Dict) Delete(key string) {
	d.m.Delete(key)
}

func (d *Dict) Len() int {
	return d.m.Len()
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []string {
	raw := d.m.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

// SortedKeys returns keys ordered by raw bytes, the canonical encoding order.
func (d *Dict) SortedKeys() []string {
	keys := d.Keys()
	sort.Strings(keys)
	return keys
}

func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Int:
		return x == b.(Int)
	case String:
		return bytes.Equal(x, b.(String))
	case List:
		y := b.(List)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y := b.(*Dict)
		if x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, ok := y.Get(k)
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToAny converts v into plain Go values: int64, []byte, []any and
// map[string]any.
func ToAny(v Value) any {
	switch x := v.(type) {
	case Int:
		return int64(x)
	case String:
		return []byte(x)
	case List:
		ret := make([]any, 0, len(x))
		for _, item := range x {
			ret = append(ret, ToAny(item))
		}
		return ret
	case *Dict:
		ret := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			item, _ := x.Get(k)
			ret[k] = ToAny(item)
		}
		return ret
	default:
		return nil
	}
}

// FromAny is the inverse of ToAny. It also accepts int, uint32 and string for
// convenience when building messages by hand.
func FromAny(obj any) (Value, error) {
	switch x := obj.(type) {
	case Value:
		return x, nil
	case int:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case string:
		return String(x), nil
	case []byte:
		return String(x), nil
	case []any:
		ret := make(List, 0, len(x))
		for _, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			ret = append(ret, v)
		}
		return ret, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := NewDict()
		for _, k := range keys {
			v, err := FromAny(x[k])
			if err != nil {
				return nil, err
			}
			d.Set(k, v)
		}
		return d, nil
	default:
		return nil, fault.Parse("unsupported type: %T", obj)
	}
}
