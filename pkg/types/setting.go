package types

// Setting is one row of the generic key/value configuration store. Value
// holds an opaque JSON document; interpretation belongs to the caller.
type Setting struct {
	Key       string
	ValueJSON string
	UpdatedAt int64
}
