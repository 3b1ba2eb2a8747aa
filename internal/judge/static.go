package judge

import (
	"context"
	"sync"
)

// Static is a canned judge used in tests and dry runs. It answers every
// sample with a fixed reply, or fails with a fixed error. Safe for
// concurrent use.
type Static struct {
	JudgeID    string
	VoteWeight float64
	Reply      string
	Err        error

	mu         sync.Mutex
	EvalCount  int
	LastSample Sample
}

// NewStatic builds a canned judge with the given reply.
func NewStatic(id string, weight float64, reply string) *Static {
	return &Static{JudgeID: id, VoteWeight: weight, Reply: reply}
}

func (s *Static) ID() string {
	return s.JudgeID
}

func (s *Static) Weight() float64 {
	return s.VoteWeight
}

func (s *Static) Enabled() bool {
	return s != nil
}

func (s *Static) Evaluate(_ context.Context, sample Sample) (Response, error) {
	s.mu.Lock()
	s.EvalCount++
	s.LastSample = sample
	s.mu.Unlock()
	if s.Err != nil {
		return Response{}, s.Err
	}
	return Response{Text: s.Reply}, nil
}

// Calls returns how many samples this judge has seen.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EvalCount
}
