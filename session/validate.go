package session

// IsValid reports whether every required field is present in v. A nil or
// empty mapping is invalid. IsValid never mutates v.
func IsValid(v Values) bool {
	for _, name := range RequiredFields {
		if _, ok := v[name]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the required fields absent from v, in check order. It is
// meant for diagnostics; callers deciding trust must use IsValid.
func Missing(v Values) []string {
	var out []string
	for _, name := range RequiredFields {
		if _, ok := v[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// HasEmptyKey reports whether the key field is present but carries an
// empty value (nil, "" or a zero-length byte slice).
func HasEmptyKey(v Values) bool {
	val, ok := v[FieldKey]
	if !ok {
		return false
	}
	switch k := val.(type) {
	case nil:
		return true
	case string:
		return k == ""
	case []byte:
		return len(k) == 0
	default:
		return false
	}
}
