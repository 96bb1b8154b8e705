package model

import (
	"bytes"
	"encoding/json"
)

// Optional carries a field of a partial update. Set is true when the
// field was present in the request at all; Null is true when it was
// present with an explicit JSON null. A zero Optional means "leave the
// stored value untouched".
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON is only invoked by encoding/json when the key exists,
// which is what distinguishes "absent" from "present".
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		var zero T
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// ProfilePatch lists the user fields that a profile update may change.
// Only fields with Set == true are applied.
type ProfilePatch struct {
	Login    Optional[string] `json:"login"`
	Password Optional[string] `json:"password"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return !p.Login.Set && !p.Password.Set
}
