package mocks

// CallLog records arguments of calls to a mocked method.
type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

// Last returns arguments of the latest call.
func (l CallLog[T]) Last() (T, bool) {
	if len(l) == 0 {
		return *new(T), false
	}
	return l[len(l)-1], true
}
