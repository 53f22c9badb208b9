package code

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := Generate(nil)
		require.NoError(t, err)
		assert.True(t, Valid(c), "code %q is not 4 digits", c)
	}
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	taken := map[string]bool{}
	for i := 0; i < 500; i++ {
		c, err := Generate(func(s string) bool { return taken[s] })
		require.NoError(t, err)
		require.False(t, taken[c], "duplicate code %s", c)
		taken[c] = true
	}
}

func TestGenerateExhausted(t *testing.T) {
	draws := 0
	g := Generator{Intn: func(n int) (int, error) {
		draws++
		return 42, nil
	}}

	_, err := g.Generate(func(string) bool { return true })
	require.ErrorIs(t, err, ErrCapacityExhausted)
	assert.Equal(t, MaxAttempts, draws)
}

func TestGenerateRetriesUntilFree(t *testing.T) {
	seq := []int{451, 451, 7}
	i := 0
	g := Generator{Intn: func(n int) (int, error) {
		v := seq[i]
		i++
		return v, nil
	}}

	c, err := g.Generate(func(s string) bool { return s == "0451" })
	require.NoError(t, err)
	assert.Equal(t, "0007", c)
	assert.Equal(t, 3, i)
}

func TestGenerateHalfSpaceFree(t *testing.T) {
	// Only codes below 5000 are free; with uniform draws the chance of 100
	// consecutive misses is 2^-100.
	c, err := Generate(func(s string) bool { return s >= "5000" })
	require.NoError(t, err)
	assert.Less(t, c, "5000")
}

func TestGenerateDrawError(t *testing.T) {
	boom := errors.New("entropy")
	g := Generator{Intn: func(int) (int, error) { return 0, boom }}

	_, err := g.Generate(nil)
	require.ErrorIs(t, err, boom)
}

func TestGenerateCoversSpace(t *testing.T) {
	// Every leading digit should appear over a few thousand draws.
	seen := map[byte]int{}
	for i := 0; i < 5000; i++ {
		c, err := Generate(nil)
		require.NoError(t, err)
		seen[c[0]]++
	}
	assert.Len(t, seen, 10)
}

func TestFormatAndValid(t *testing.T) {
	assert.Equal(t, "0000", Format(0))
	assert.Equal(t, "0451", Format(451))
	assert.Equal(t, "9999", Format(9999))

	assert.True(t, Valid("0451"))
	assert.False(t, Valid("451"))
	assert.False(t, Valid("04a1"))
	assert.False(t, Valid("04511"))
}

func TestRandomIndexRange(t *testing.T) {
	for _, n := range []int{1, 2, Space} {
		for i := 0; i < 100; i++ {
			got, err := randomIndex(n)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0)
			assert.Less(t, got, n)
		}
	}
}
