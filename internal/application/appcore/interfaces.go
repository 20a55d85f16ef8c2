// Package appcore holds building blocks shared by application use cases.
package appcore

// Result carries the value produced by a use case.
type Result[T any] struct {
	Value T
	Error error
}

// IsSuccess reports whether the operation finished without error.
func (r Result[T]) IsSuccess() bool {
	return r.Error == nil
}
