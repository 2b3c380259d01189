package bencode

import (
	"btfetch/common/fault"
	"strconv"
)

type decoder struct {
	buf    []byte
	strict bool
}

// Decode parses exactly one value from the front of buf and returns the
// bytes that follow it.
func Decode(buf []byte) (Value, []byte, error) {
	d := decoder{buf: buf}
	v, offset, err := d.decodeAny(0)
	if err != nil {
		return nil, nil, err
	}
	return v, buf[offset:], nil
}

// Unmarshal decodes buf as a single value. Trailing bytes are an error.
func Unmarshal(buf []byte) (Value, error) {
	v, rest, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fault.Parse("trailing data after value: %d bytes", len(rest))
	}
	return v, nil
}

// DecodeStrict is Unmarshal that additionally rejects anything not in
// canonical form: leading zeros, -0 and unsorted dictionary keys.
func DecodeStrict(buf []byte) (Value, error) {
	d := decoder{buf: buf, strict: true}
	v, offset, err := d.decodeAny(0)
	if err != nil {
		return nil, err
	}
	if offset != len(buf) {
		return nil, fault.Parse("trailing data after value: %d bytes", len(buf)-offset)
	}
	return v, nil
}

// DecodeDict decodes one dictionary from the front of buf and returns the
// offset right after it.
func DecodeDict(buf []byte) (*Dict, int, error) {
	d := decoder{buf: buf}
	if len(buf) == 0 || buf[0] != 'd' {
		return nil, 0, fault.Parse("expected dictionary")
	}
	return d.decodeDict(0)
}

func (d *decoder) decodeAny(pos int) (Value, int, error) {
	if pos >= len(d.buf) {
		return nil, 0, fault.Parse("unexpected end of input at %d", pos)
	}
	switch d.buf[pos] {
	case 'i':
		return d.decodeInt(pos)
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return d.decodeString(pos)
	case 'l':
		return d.decodeList(pos)
	case 'd':
		return d.decodeDict(pos)
	default:
		return nil, 0, fault.Parse("unhandled value %q at %d", d.buf[pos], pos)
	}
}

func (d *decoder) decodeList(pos int) (List, int, error) {
	ret := make(List, 0)
	i := pos + 1
	for i < len(d.buf) && d.buf[i] != 'e' {
		item, offset, err := d.decodeAny(i)
		if err != nil {
			return nil, 0, err
		}
		ret = append(ret, item)
		i = offset
	}
	if i >= len(d.buf) {
		return nil, 0, fault.Parse("unterminated list at %d", pos)
	}
	return ret, i + 1, nil
}

func (d *decoder) decodeDict(pos int) (*Dict, int, error) {
	ret := NewDict()
	i := pos + 1
	last := ""
	for i < len(d.buf) && d.buf[i] != 'e' {
		if d.buf[i] < '0' || d.buf[i] > '9' {
			return nil, 0, fault.Parse("dictionary key is not a string at %d", i)
		}
		key, offset, err := d.decodeString(i)
		if err != nil {
			return nil, 0, err
		}
		k := string(key)
		if ret.Has(k) {
			return nil, 0, fault.Parse("duplicate dictionary key %q", k)
		}
		if d.strict && ret.Len() > 0 && k <= last {
			return nil, 0, fault.Parse("dictionary key %q out of order", k)
		}
		item, offset, err := d.decodeAny(offset)
		if err != nil {
			return nil, 0, err
		}
		ret.Set(k, item)
		last = k
		i = offset
	}
	if i >= len(d.buf) {
		return nil, 0, fault.Parse("unterminated dictionary at %d", pos)
	}
	return ret, i + 1, nil
}

func (d *decoder) decodeString(pos int) (String, int, error) {
	i := pos
	for ; i < len(d.buf) && d.buf[i] != ':'; i++ {
		if d.buf[i] < '0' || d.buf[i] > '9' {
			return nil, 0, fault.Parse("invalid string length at %d", pos)
		}
	}
	if i >= len(d.buf) {
		return nil, 0, fault.Parse("missing ':' after string length at %d", pos)
	}
	digits := d.buf[pos:i]
	if d.strict && len(digits) > 1 && digits[0] == '0' {
		return nil, 0, fault.Parse("string length with leading zero at %d", pos)
	}
	l, err := strconv.ParseUint(string(digits), 10, 63)
	if err != nil {
		return nil, 0, fault.Wrap(fault.ErrParse, err, "string length at %d", pos)
	}
	begin := i + 1
	if l > uint64(len(d.buf)-begin) {
		return nil, 0, fault.Parse("string length %d exceeds remaining %d bytes", l, len(d.buf)-begin)
	}
	end := begin + int(l)
	return String(d.buf[begin:end]), end, nil
}

func (d *decoder) decodeInt(pos int) (Int, int, error) {
	begin := pos + 1
	i := begin
	for ; i < len(d.buf) && d.buf[i] != 'e'; i++ {
	}
	if i >= len(d.buf) {
		return 0, 0, fault.Parse("unterminated integer at %d", pos)
	}
	digits := string(d.buf[begin:i])
	if d.strict {
		if digits == "-0" {
			return 0, 0, fault.Parse("negative zero at %d", pos)
		}
		if (len(digits) > 1 && digits[0] == '0') || (len(digits) > 2 && digits[:2] == "-0") {
			return 0, 0, fault.Parse("integer with leading zero at %d", pos)
		}
	}
	if len(digits) > 0 && digits[0] == '+' {
		return 0, 0, fault.Parse("invalid integer %q at %d", digits, pos)
	}
	ret, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, 0, fault.Wrap(fault.ErrParse, err, "integer at %d", pos)
	}
	return Int(ret), i + 1, nil
}
