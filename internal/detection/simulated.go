package detection

import (
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultHeadMovementProbability = 0.3
	DefaultDeviceProbability       = 0.1
)

// SimulatedConfig holds the per-tick probabilities of the simulated detector.
type SimulatedConfig struct {
	HeadMovementProbability float64
	DeviceProbability       float64
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed uint64
}

// SimulatedSource draws independent head movement and device events on every
// tick. It stands in for a real inference pipeline.
type SimulatedSource struct {
	cfg SimulatedConfig
}

func NewSimulatedSource(cfg SimulatedConfig) *SimulatedSource {
	if cfg.HeadMovementProbability < 0 || cfg.HeadMovementProbability > 1 {
		cfg.HeadMovementProbability = DefaultHeadMovementProbability
	}
	if cfg.DeviceProbability < 0 || cfg.DeviceProbability > 1 {
		cfg.DeviceProbability = DefaultDeviceProbability
	}
	return &SimulatedSource{cfg: cfg}
}

// Begin derives the sequence seed from the source seed and the session id, so
// two sessions under the same seed do not replay each other.
func (s *SimulatedSource) Begin(sessionID string) Sequence {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return &simulatedSequence{
		rng:      rand.New(rand.NewPCG(seed, h.Sum64())),
		headProb: s.cfg.HeadMovementProbability,
		devProb:  s.cfg.DeviceProbability,
	}
}

type simulatedSequence struct {
	mu       sync.Mutex
	rng      *rand.Rand
	headProb float64
	devProb  float64
	closed   bool
}

func (q *simulatedSequence) Next(at time.Time) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	var out []Event
	if q.rng.Float64() < q.headProb {
		out = append(out, Event{Kind: KindHeadMovement, OccurredAt: at})
	}
	if q.rng.Float64() < q.devProb {
		out = append(out, Event{Kind: KindDeviceDetection, OccurredAt: at})
	}
	return out
}

func (q *simulatedSequence) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
