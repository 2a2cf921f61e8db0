package try_test

import (
	"errors"
	"testing"

	"github.com/opst/modelflow/pkg/utils/try"
)

type fataler struct {
	called []any
}

func (f *fataler) Fatal(args ...any) {
	f.called = append(f.called, args...)
}

func TestEither(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := &fataler{}
		if v := try.To(42, nil).OrFatal(f); v != 42 || len(f.called) != 0 {
			t.Errorf("value, fatal = %d, %v", v, f.called)
		}
		if v := try.To(42, nil).OrDefault(0); v != 42 {
			t.Errorf("value = %d", v)
		}
	})

	t.Run("ng", func(t *testing.T) {
		expected := errors.New("fake error")
		f := &fataler{}
		if v := try.To(42, expected).OrFatal(f); v != 0 || len(f.called) != 1 || f.called[0] != expected {
			t.Errorf("value, fatal = %d, %v", v, f.called)
		}
		if v := try.To(42, expected).OrDefault(7); v != 7 {
			t.Errorf("value = %d", v)
		}
		if v, err := try.To(42, expected).Get(); v != 0 || !errors.Is(err, expected) {
			t.Errorf("value, err = %d, %v", v, err)
		}
	})
}
