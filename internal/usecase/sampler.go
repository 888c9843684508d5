package usecase

import (
	"fmt"
	"math/rand/v2"

	"data-chopper/internal/models/entities"
)

// Sampler выбирает k различных идентификаторов равновероятно, без возвращения.
// Используется алгоритм Флойда: O(k) по памяти и случайным числам,
// входной срез не перемешивается и не изменяется.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler создает выборщик. При rng == nil используется глобальный генератор;
// собственный rng не потокобезопасен и нужен только для детерминированных тестов.
func NewSampler(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

func (s *Sampler) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	return s.rng.IntN(n)
}

// Sample возвращает k случайных элементов candidates
func (s *Sampler) Sample(candidates []int64, k int) ([]int64, error) {
	n := len(candidates)
	if k < 0 || k > n {
		return nil, fmt.Errorf("sample %d of %d: %w", k, n, entities.ErrInvalidSampleSize)
	}

	chosen := make(map[int]struct{}, k)
	out := make([]int64, 0, k)

	for j := n - k; j < n; j++ {
		t := s.intN(j + 1)
		if _, taken := chosen[t]; taken {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, candidates[t])
	}

	// Порядок вывода Флойда смещен к концу входа, перемешиваем результат
	for i := len(out) - 1; i > 0; i-- {
		j := s.intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}
