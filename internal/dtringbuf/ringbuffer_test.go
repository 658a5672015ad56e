package dtringbuf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestRingBufferAdd(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[string](3)

	for _, id := range []string{"a", "b", "c"} {
		_, ok := rb.Add(id)
		assertEqual(t, ok, false)
	}

	dropped, ok := rb.Add("d")
	assertEqual(t, ok, true)
	assertEqual(t, dropped, "a")

	dropped, ok = rb.Add("e")
	assertEqual(t, ok, true)
	assertEqual(t, dropped, "b")

	newest, oldest, count := rb.Stats()
	assertEqual(t, newest, "e")
	assertEqual(t, oldest, "c")
	assertEqual(t, count, 3)
}

func TestRingBufferStats(t *testing.T) {
	t.Parallel()

	{
		rb := NewRingBuffer[int](0)

		newest, oldest, n := rb.Stats()
		assertEqual(t, newest, 0)
		assertEqual(t, oldest, 0)
		assertEqual(t, n, 0)

		dropped, ok := rb.Add(1)
		assertEqual(t, dropped, 1)
		assertEqual(t, ok, true)

		_, _, n = rb.Stats()
		assertEqual(t, n, 0)
	}

	{
		rb := NewRingBuffer[int](5)
		assertEqual(t, rb.Cap(), 5)

		rb.Add(1)
		newest, oldest, n := rb.Stats()
		assertEqual(t, newest, 1)
		assertEqual(t, oldest, 1)
		assertEqual(t, n, 1)

		for i := 2; i <= 12; i++ {
			rb.Add(i)
		}
		newest, oldest, n = rb.Stats()
		assertEqual(t, newest, 12)
		assertEqual(t, oldest, 8)
		assertEqual(t, n, 5)
	}
}
