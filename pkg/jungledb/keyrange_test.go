package jungledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyRangeIncludes(t *testing.T) {
	tests := []struct {
		name  string
		rng   KeyRange
		key   any
		want  bool
	}{
		{"zero value matches everything", KeyRange{}, "anything", true},
		{"only matches the exact key", Only("b"), "b", true},
		{"only rejects a different key", Only("b"), "c", false},
		{"lower bound inclusive", LowerBound("b", false), "b", true},
		{"lower bound exclusive", LowerBound("b", true), "b", false},
		{"lower bound exclusive allows greater", LowerBound("b", true), "c", true},
		{"upper bound inclusive", UpperBound("b", false), "b", true},
		{"upper bound exclusive", UpperBound("b", true), "b", false},
		{"bound within range", Bound("a", "c", false, false), "b", true},
		{"bound below range", Bound("a", "c", false, false), "0", false},
		{"bound above range", Bound("a", "c", false, false), "d", false},
		{"bound open lower excludes lower", Bound("a", "c", true, false), "a", false},
		{"bound open upper excludes upper", Bound("a", "c", false, true), "c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rng.Includes(tt.key))
		})
	}
}

func TestKeyRangeIncludesMinMax(t *testing.T) {
	assert.True(t, Bound("a", "c", false, false).IncludesMin())
	assert.False(t, Bound("a", "c", true, false).IncludesMin())
	assert.False(t, UpperBound("c", false).IncludesMin())

	assert.True(t, Bound("a", "c", false, false).IncludesMax())
	assert.False(t, Bound("a", "c", false, true).IncludesMax())
	assert.False(t, LowerBound("a", false).IncludesMax())
}

func TestQueryConstructors(t *testing.T) {
	eq := Eq("byName", "alice")
	assert.Equal(t, "byName", eq.Index)
	assert.True(t, eq.Range.Includes("alice"))
	assert.False(t, eq.Range.Includes("bob"))

	within := Within("byAge", 10, 20)
	assert.True(t, within.Range.Includes(10))
	assert.True(t, within.Range.Includes(20))
	assert.False(t, within.Range.Includes(21))

	rq := RangeQuery("byAge", 10, 20, true, true)
	assert.False(t, rq.Range.Includes(10))
	assert.False(t, rq.Range.Includes(20))
	assert.True(t, rq.Range.Includes(15))
}
