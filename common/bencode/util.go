package bencode

import (
	"strings"
)

// GetByPath walks nested dictionaries along a dotted path, e.g. "info.name".
func GetByPath(dict *Dict, path string) Value {
	parts := strings.Split(path, ".")
	var v Value = dict
	for _, part := range parts {
		d, ok := v.(*Dict)
		if !ok || d == nil {
			return nil
		}
		v, ok = d.Get(part)
		if !ok {
			return nil
		}
	}
	return v
}

func GetString(dict *Dict, path string) (string, bool) {
	s, ok := GetByPath(dict, path).(String)
	if !ok {
		return "", false
	}
	return string(s), true
}

func GetBytes(dict *Dict, path string) ([]byte, bool) {
	s, ok := GetByPath(dict, path).(String)
	if !ok {
		return nil, false
	}
	return []byte(s), true
}

func GetInt(dict *Dict, path string) (int64, bool) {
	i, ok := GetByPath(dict, path).(Int)
	if !ok {
		return 0, false
	}
	return int64(i), true
}

func GetList(dict *Dict, path string) (List, bool) {
	l, ok := GetByPath(dict, path).(List)
	return l, ok
}

func GetDict(dict *Dict, path string) (*Dict, bool) {
	d, ok := GetByPath(dict, path).(*Dict)
	return d, ok && d != nil
}

func CheckMapPath(dict *Dict, path string) bool {
	return GetByPath(dict, path) != nil
}
