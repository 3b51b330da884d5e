package kernel

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestNamespaceSetGetDelete(t *testing.T) {
	ns := NewNamespace()
	ns.Set("x", 5)

	v, ok := ns.Get("x")
	assert.Assert(t, ok)
	assert.Equal(t, v, 5)

	ns.Delete("x")
	_, ok = ns.Get("x")
	assert.Assert(t, !ok)

	// deleting an absent name is not an error
	ns.Delete("x")
}

func TestNamespaceResetClearsEverything(t *testing.T) {
	ns := NewNamespace()
	ns.Set("x", 1)
	ns.Set("y", 2)
	ns.Reset()

	assert.Equal(t, len(ns.Names()), 0)
}

func TestNamespaceSnapshotIsACopy(t *testing.T) {
	ns := NewNamespace()
	ns.Set("x", 1)

	snap := ns.Snapshot()
	snap["x"] = 99
	snap["y"] = 2

	v, _ := ns.Get("x")
	assert.Equal(t, v, 1)
	_, ok := ns.Get("y")
	assert.Assert(t, !ok)
}

func TestNamespaceApplySnapshotMerges(t *testing.T) {
	ns := NewNamespace()
	ns.Set("x", 1)

	ns.ApplySnapshot(map[string]any{"x": 2, "y": 3})

	v, _ := ns.Get("x")
	assert.Equal(t, v, 2)
	v, _ = ns.Get("y")
	assert.Equal(t, v, 3)
}
