package detection

import (
	"sync"
	"time"
)

// ScriptedSource replays a fixed list of per-tick batches. Every sequence it
// begins starts from the top of the script; once the script is drained the
// sequence yields nothing until more batches are injected.
type ScriptedSource struct {
	mu      sync.Mutex
	script  [][]Kind
	current *scriptedSequence
	begun   int
}

func NewScriptedSource(batches ...[]Kind) *ScriptedSource {
	return &ScriptedSource{script: batches}
}

// Repeat builds n single-event batches of the given kind.
func Repeat(kind Kind, n int) [][]Kind {
	out := make([][]Kind, n)
	for i := range out {
		out[i] = []Kind{kind}
	}
	return out
}

func (s *ScriptedSource) Begin(_ string) Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := make([][]Kind, len(s.script))
	copy(queue, s.script)
	seq := &scriptedSequence{queue: queue}
	s.current = seq
	s.begun++
	return seq
}

// Inject appends one batch to the most recently begun sequence.
func (s *ScriptedSource) Inject(kinds ...Kind) {
	s.mu.Lock()
	seq := s.current
	s.mu.Unlock()
	if seq == nil {
		return
	}
	seq.push(kinds)
}

// Begun reports how many sequences have been handed out.
func (s *ScriptedSource) Begun() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun
}

type scriptedSequence struct {
	mu     sync.Mutex
	queue  [][]Kind
	closed bool
}

func (q *scriptedSequence) push(kinds []Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.queue = append(q.queue, kinds)
}

func (q *scriptedSequence) Next(at time.Time) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.queue) == 0 {
		return nil
	}
	batch := q.queue[0]
	q.queue = q.queue[1:]
	out := make([]Event, 0, len(batch))
	for _, k := range batch {
		out = append(out, Event{Kind: k, OccurredAt: at})
	}
	return out
}

func (q *scriptedSequence) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.queue = nil
}
