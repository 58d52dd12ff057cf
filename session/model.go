package session

// Field names every complete session carries.
const (
	FieldUUID   = "uuid"
	FieldConfig = "config"
	FieldKey    = "key"
	FieldAuth   = "auth"
)

// RequiredFields lists the fields checked by IsValid, in check order.
var RequiredFields = [...]string{FieldUUID, FieldConfig, FieldKey, FieldAuth}

// Values is the per-client state bag. Values are opaque to this package.
type Values map[string]any

// Session is a stored session: its opaque ID, its values and its lifetime
// bounds in Unix seconds.
type Session struct {
	ID        string
	Values    Values
	CreatedAt int64
	ExpiresAt int64
}

// Clone returns a shallow copy of v. Nested values are shared.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Has reports whether name is present, regardless of its value.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}
