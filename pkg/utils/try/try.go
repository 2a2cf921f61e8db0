// Package try shortens handling of (value, error) pairs, mainly in tests.
package try

// something have method `Fatal`.
//
// For example in standard libraries: *testing.T, log.Logger
type Fataler interface {
	Fatal(...any)
}

// Result of a call returning (T, error).
type Either[T any] struct {
	value T
	err   error
}

// To wraps a (value, error) pair.
func To[T any](value T, err error) Either[T] {
	return Either[T]{value: value, err: err}
}

func (e Either[T]) Get() (T, error) {
	if e.err != nil {
		return *new(T), e.err
	}
	return e.value, nil
}

// OrFatal returns the value, or calls ftl.Fatal(err) when it has an error.
//
// If ftl has "Helper()" method (like *testing.T), also that is called before `Fatal`.
func (e Either[T]) OrFatal(ftl Fataler) T {
	if e.err == nil {
		return e.value
	}
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(e.err)
	return *new(T)
}

// OrDefault returns the value, or d when it has an error.
func (e Either[T]) OrDefault(d T) T {
	if e.err != nil {
		return d
	}
	return e.value
}
