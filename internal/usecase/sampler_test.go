package usecase

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-chopper/internal/models/entities"
)

func candidates(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(1000 + i)
	}
	return ids
}

func TestSampler_Sample(t *testing.T) {
	sampler := NewSampler(rand.New(rand.NewPCG(1, 2)))

	for _, k := range []int{0, 1, 5, 19, 20} {
		input := candidates(20)
		original := slices.Clone(input)

		got, err := sampler.Sample(input, k)
		require.NoError(t, err)

		assert.Len(t, got, k)
		assert.Equal(t, original, input, "input must not be mutated")

		seen := make(map[int64]struct{}, k)
		for _, id := range got {
			assert.Contains(t, input, id)
			_, dup := seen[id]
			assert.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}
		}
	}
}

func TestSampler_TooManyRequested(t *testing.T) {
	sampler := NewSampler(nil)

	_, err := sampler.Sample(candidates(3), 4)
	require.ErrorIs(t, err, entities.ErrInvalidSampleSize)

	_, err = sampler.Sample(candidates(3), -1)
	require.ErrorIs(t, err, entities.ErrInvalidSampleSize)
}

func TestSampler_UniformCoverage(t *testing.T) {
	const (
		n      = 10
		k      = 3
		trials = 30000
	)

	sampler := NewSampler(rand.New(rand.NewPCG(42, 7)))
	input := candidates(n)
	counts := make(map[int64]int, n)
	firsts := make(map[int64]int, n)

	for range trials {
		got, err := sampler.Sample(input, k)
		require.NoError(t, err)
		for _, id := range got {
			counts[id]++
		}
		firsts[got[0]]++
	}

	// Каждый элемент попадает в выборку с вероятностью k/n
	expected := float64(trials) * k / n
	for _, id := range input {
		assert.InDelta(t, expected, counts[id], expected*0.05, "id %d selected %d times", id, counts[id])
	}

	// Порядок результата тоже не зависит от позиции во входе
	expectedFirst := float64(trials) / n
	for _, id := range input {
		assert.InDelta(t, expectedFirst, firsts[id], expectedFirst*0.12, "id %d first %d times", id, firsts[id])
	}
}
