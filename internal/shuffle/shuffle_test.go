package shuffle

import "testing"

func TestSlice_preservesMultiset(t *testing.T) {
	s := []int{0, 1, 2, 3, 4, 5, 6, 7}
	want := map[int]int{}
	for _, v := range s {
		want[v]++
	}

	Slice(s)

	got := map[int]int{}
	for _, v := range s {
		got[v]++
	}
	if len(got) != len(want) {
		t.Fatalf(`shuffle changed the multiset: got %v, want %v`, got, want)
	}
	for k, n := range want {
		if got[k] != n {
			t.Fatalf(`shuffle changed the multiset: got %v, want %v`, got, want)
		}
	}
}

func TestSlice_eventuallyPermutes(t *testing.T) {
	// a single shuffle call is allowed to return the identity permutation;
	// confirm that across many calls, at least one produces a different
	// order, i.e. Slice isn't secretly a no-op.
	for i := 0; i < 100; i++ {
		s := []int{0, 1, 2, 3, 4, 5, 6, 7}
		orig := append([]int{}, s...)
		Slice(s)
		changed := false
		for i := range s {
			if s[i] != orig[i] {
				changed = true
				break
			}
		}
		if changed {
			return
		}
	}
	t.Fatal(`expected at least one of 100 shuffles to reorder the slice`)
}

func TestSlice_emptyAndSingleton(t *testing.T) {
	Slice([]int{})
	Slice([]int{1})
}
