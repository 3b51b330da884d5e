package kernel

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCallableRegistryInvokeReturnsValue(t *testing.T) {
	r := NewCallableRegistry()
	r.Register("add", func(a, b int) int { return a + b })

	result, err := r.Invoke("add", []any{2, 3}, nil)
	assert.NilError(t, err)
	assert.Equal(t, result, 5)
}

func TestCallableRegistryInvokeTrailingKwargsMap(t *testing.T) {
	r := NewCallableRegistry()
	r.Register("greet", func(name string, opts map[string]any) string {
		if loud, _ := opts["loud"].(bool); loud {
			return name + "!"
		}
		return name
	})

	result, err := r.Invoke("greet", []any{"hi"}, map[string]any{"loud": true})
	assert.NilError(t, err)
	assert.Equal(t, result, "hi!")
}

func TestCallableRegistryInvokePropagatesTrailingError(t *testing.T) {
	r := NewCallableRegistry()
	boom := errors.New("boom")
	r.Register("fail", func() (int, error) { return 0, boom })

	_, err := r.Invoke("fail", nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestCallableRegistryInvokeUnknownName(t *testing.T) {
	r := NewCallableRegistry()
	_, err := r.Invoke("missing", nil, nil)
	assert.ErrorContains(t, err, "no callable registered")
}

func TestCallableRegistryRegisterPanicsOnNonFunc(t *testing.T) {
	r := NewCallableRegistry()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic registering a non-function")
		}
	}()
	r.Register("bad", 5)
}
