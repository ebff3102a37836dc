package optional

// Optional is a value which may or may not be set. Its zero value is an
// unset Optional.
type Optional[T any] struct {
	value T
	set   bool
}

// Set stores the given value and marks the Optional as having one.
func (o *Optional[T]) Set(value T) {
	o.value = value
	o.set = true
}

// Get returns the stored value. It returns the type's zero value when
// nothing has been set.
func (o *Optional[T]) Get() T {
	return o.value
}

// HasValue returns true if a value has been set.
func (o *Optional[T]) HasValue() bool {
	return o.set
}
