package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func constant(name, v string, ok bool, calls *[]string) Strategy[int, string] {
	return New(name, func(int) (string, bool) {
		*calls = append(*calls, name)
		return v, ok
	})
}

func TestChain_FirstSuccessWins(t *testing.T) {
	t.Parallel()

	var calls []string
	chain := Chain[int, string]{
		constant("jsonld", "", false, &calls),
		constant("heading", "Joe's Pizza", true, &calls),
		constant("title", "never", true, &calls),
	}

	res := chain.Resolve(0)
	assert.True(t, res.OK)
	assert.Equal(t, "Joe's Pizza", res.Value)
	assert.Equal(t, "heading", res.Strategy)
	assert.Empty(t, res.Reason)
	assert.Equal(t, []string{"jsonld", "heading"}, calls)
}

func TestChain_NoMatch(t *testing.T) {
	t.Parallel()

	var calls []string
	res := Chain[int, string]{constant("a", "", false, &calls), constant("b", "", false, &calls)}.Resolve(1)
	assert.False(t, res.OK)
	assert.Equal(t, "", res.Value)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	res := Chain[int, string]{}.Resolve(1)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonEmptyChain, res.Reason)
}

func TestChain_PanicIsAMiss(t *testing.T) {
	t.Parallel()

	chain := Chain[[]int, int]{
		New("index", func(in []int) (int, bool) { return in[5], true }),
		{Name: "nil-fn"},
		New("len", func(in []int) (int, bool) { return len(in), true }),
	}

	res := chain.Resolve([]int{1, 2})
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Value)
	assert.Equal(t, "len", res.Strategy)
	if assert.Len(t, res.Errors, 1) {
		assert.Contains(t, res.Errors[0], "index: panic")
	}
}

func TestChain_AllPanic(t *testing.T) {
	t.Parallel()

	res := Chain[int, string]{New("boom", func(int) (string, bool) { panic("bad markup") })}.Resolve(0)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, []string{"boom: panic: bad markup"}, res.Errors)
}
