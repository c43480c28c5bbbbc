package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPayload(t *testing.T) {
	tests := []struct {
		input  string
		first  string
		second string
	}{
		{"", "", ""},
		{"a", "", "a"},
		{"ab", "a", "b"},
		{"WORLDLY!!", "WORL", "DLY!!"},
		{"0123456789", "01234", "56789"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			first := SplitPayload([]byte(tt.input), FirstHalf)
			second := SplitPayload([]byte(tt.input), SecondHalf)
			assert.Equal(t, tt.first, string(first))
			assert.Equal(t, tt.second, string(second))
			assert.Equal(t, tt.input, string(first)+string(second))
		})
	}
}

func TestTruncateFollowsCoin(t *testing.T) {
	fi := NewFaultInjector(&scriptedCoin{flips: []bool{true, false}}, nil, 0)

	kept, half := fi.Truncate([]byte("abcdef"))
	assert.Equal(t, FirstHalf, half)
	assert.Equal(t, "abc", string(kept))

	kept, half = fi.Truncate([]byte("abcdef"))
	assert.Equal(t, SecondHalf, half)
	assert.Equal(t, "def", string(kept))
}

func TestRandomCoinIsFair(t *testing.T) {
	coin := NewRandomCoin(42)

	const flips = 10000
	heads := 0
	for i := 0; i < flips; i++ {
		if coin.Flip() {
			heads++
		}
	}

	// Five standard deviations around the mean
	assert.InDelta(t, flips/2, heads, 250)
}

func TestRandomCoinSeedIsReproducible(t *testing.T) {
	a, b := NewRandomCoin(7), NewRandomCoin(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Flip(), b.Flip())
	}
}

func TestHalfString(t *testing.T) {
	assert.Equal(t, "first", FirstHalf.String())
	assert.Equal(t, "second", SecondHalf.String())
}

func TestRecordersFanOut(t *testing.T) {
	a, b := &fakeRecorder{}, &fakeRecorder{}
	fi := NewFaultInjector(&scriptedCoin{flips: []bool{true}}, Recorders(a, nil, b), 0)

	fi.record("/target/f", 4, FirstHalf, 6, 3)

	want := Fault{Path: "/target/f", Offset: 4, Half: FirstHalf, Requested: 6, Persisted: 3}
	assert.Equal(t, []Fault{want}, a.faults)
	assert.Equal(t, []Fault{want}, b.faults)
}
