// Package rng provides the deterministic uniform source used by agents.
// The state is a single counter so it round-trips through snapshots.
package rng

import "hash/fnv"

type Source struct {
	State uint64
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// New derives a source from the world seed and a stable key (usually an agent id).
func New(seed int64, key string) *Source {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &Source{State: mix64(uint64(seed) ^ h.Sum64())}
}

func (s *Source) Uint64() uint64 {
	s.State += 0x9e3779b97f4a7c15
	return mix64(s.State)
}

// Float64 returns a value in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Range returns a value in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}
