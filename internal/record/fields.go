package record

import (
	"strings"
	"time"
)

// Fields is a sticky write payload: a map of attribute name to JSON value
// from which absent values have been dropped. Merging a Fields value into a
// stored document can only add or overwrite attributes, never clear them.
//
// The builder methods skip empty strings and nil pointers and return the
// receiver so calls can be chained.
type Fields map[string]any

// Str sets key to v unless v is blank.
func (f Fields) Str(key, v string) Fields {
	if strings.TrimSpace(v) != "" {
		f[key] = v
	}
	return f
}

// Num sets key to *v unless v is nil. Zero is a present value.
func (f Fields) Num(key string, v *float64) Fields {
	if v != nil {
		f[key] = *v
	}
	return f
}

// Bool sets key to *v unless v is nil.
func (f Fields) Bool(key string, v *bool) Fields {
	if v != nil {
		f[key] = *v
	}
	return f
}

// Time sets key to the RFC 3339 form of *v unless v is nil or zero.
func (f Fields) Time(key string, v *time.Time) Fields {
	if v != nil && !v.IsZero() {
		f[key] = FormatTime(*v)
	}
	return f
}

// Set sets key to v unconditionally. Use for engine-owned attributes such as
// status.
func (f Fields) Set(key string, v any) Fields {
	f[key] = v
	return f
}

// Merge copies every entry of other into f, overwriting existing keys.
func (f Fields) Merge(other Fields) Fields {
	for k, v := range other {
		f[k] = v
	}
	return f
}

// Empty reports whether the payload carries nothing.
func (f Fields) Empty() bool {
	return len(f) == 0
}

// FormatTime is the persisted representation of timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Ptr returns a pointer to v. Handy for optional fields in literals.
func Ptr[T any](v T) *T {
	return &v
}
