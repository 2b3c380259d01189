package bencode

import (
	"strconv"
	"strings"

	"btfetch/common/fault"
)

// Encode produces the canonical encoding of v: minimal integers and
// dictionary keys sorted by their raw bytes.
func Encode(v Value) ([]byte, error) {
	builder := strings.Builder{}
	err := encodeAny(&builder, v)
	if err != nil {
		return nil, err
	}
	return []byte(builder.String()), nil
}

// BEncode encodes plain Go values (see FromAny).
func BEncode(obj any) ([]byte, error) {
	v, err := FromAny(obj)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

func encodeInt(builder *strings.Builder, val Int) {
	builder.WriteByte('i')
	builder.WriteString(strconv.FormatInt(int64(val), 10))
	builder.WriteByte('e')
}

func encodeString(builder *strings.Builder, val string) {
	builder.WriteString(strconv.Itoa(len(val)))
	builder.WriteByte(':')
	builder.WriteString(val)
}

func encodeBytes(builder *strings.Builder, data []byte) {
	builder.WriteString(strconv.Itoa(len(data)))
	builder.WriteByte(':')
	builder.Write(data)
}

func encodeDict(builder *strings.Builder, d *Dict) error {
	builder.WriteByte('d')
	for _, k := range d.SortedKeys() {
		v, _ := d.Get(k)
		encodeString(builder, k)
		err := encodeAny(builder, v)
		if err != nil {
			return err
		}
	}
	builder.WriteByte('e')
	return nil
}

func encodeList(builder *strings.Builder, list List) error {
	builder.WriteByte('l')
	for _, item := range list {
		err := encodeAny(builder, item)
		if err != nil {
			return err
		}
	}
	builder.WriteByte('e')
	return nil
}

func encodeAny(builder *strings.Builder, item Value) error {
	switch v := item.(type) {
	case Int:
		encodeInt(builder, v)
	case String:
		encodeBytes(builder, v)
	case List:
		return encodeList(builder, v)
	case *Dict:
		if v == nil {
			return fault.Parse("nil dictionary")
		}
		return encodeDict(builder, v)
	case nil:
		return fault.Parse("nil value")
	default:
		return fault.Parse("unsupported value %T", item)
	}
	return nil
}
