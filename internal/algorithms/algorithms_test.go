package algorithms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	t.Run("empty slice", func(t *testing.T) {
		require := require.New(t)

		var s []int
		got := Map(s, func(i int) int { return i })
		require.Equal([]int{}, got)
	})
	t.Run("non-empty slice", func(t *testing.T) {
		require := require.New(t)

		s := []int{1, 2, 3}
		got := Map(s, func(i int) int { return i * 2 })
		require.Equal([]int{2, 4, 6}, got)
	})
}

func TestFilter(t *testing.T) {
	t.Run("empty slice", func(t *testing.T) {
		require := require.New(t)

		var s []int
		got := Filter(s, func(i int) bool { return i%2 == 0 })
		require.Equal([]int{}, got)
	})
	t.Run("non-empty slice", func(t *testing.T) {
		require := require.New(t)

		s := []int{1, 2, 3}
		got := Filter(s, func(i int) bool { return i%2 == 0 })
		require.Equal([]int{2}, got)
	})
}

func TestReverse(t *testing.T) {
	require := require.New(t)

	s := []int{1, 2, 3, 4}
	Reverse(s)
	require.Equal([]int{4, 3, 2, 1}, s)
}

func TestUniq(t *testing.T) {
	require := require.New(t)

	require.Equal([]int{3, 1, 2}, Uniq([]int{3, 1, 3, 2, 1}))
	require.Equal([]string{}, Uniq([]string(nil)))
}

func TestWithout(t *testing.T) {
	t.Run("deny wins over allow", func(t *testing.T) {
		require := require.New(t)

		got := Without([]int{1, 2, 3}, []int{1}, []int{3})
		require.Equal([]int{2}, got)
	})
	t.Run("no exclusions", func(t *testing.T) {
		require := require.New(t)

		require.Equal([]int{1, 2}, Without([]int{1, 2}))
	})
}

func TestContains(t *testing.T) {
	require := require.New(t)

	require.True(Contains([]string{"a", "b"}, "b"))
	require.False(Contains([]string{"a", "b"}, "c"))
	require.False(Contains(nil, "c"))
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		size int
		want [][]int
	}{
		{"empty", nil, 3, nil},
		{"exact", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", []int{1, 2, 3}, 2, [][]int{{1, 2}, {3}}},
		{"zero size", []int{1, 2}, 0, [][]int{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			require.Equal(tt.want, Chunk(tt.in, tt.size))
		})
	}
}
