package events

import "sync"

// Stats tracks what happened during one chat session.
type Stats struct {
	mu sync.Mutex

	queries    int
	answered   int
	failed     int
	turns      int
	toolCalls  int
	toolErrors int
	// chosen counts resource selections; order keeps first-seen order
	chosen map[string]int
	order  []string
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	Queries    int
	Answered   int
	Failed     int
	Turns      int
	ToolCalls  int
	ToolErrors int
	Resources  []ResourceCount
}

// ResourceCount is how often a resource was chosen as context.
type ResourceCount struct {
	URI   string
	Count int
}

// NewStats creates empty session statistics.
func NewStats() *Stats {
	return &Stats{chosen: make(map[string]int)}
}

// Record folds an event into the statistics. It is a Handler.
func (s *Stats) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case StateChanged:
		switch ev.State {
		case StateGatheringContext:
			s.queries++
		case StateAwaitingModel:
			s.turns++
		}
	case ResourceChosen:
		if _, ok := s.chosen[ev.URI]; !ok {
			s.order = append(s.order, ev.URI)
		}
		s.chosen[ev.URI]++
	case ToolCall:
		s.toolCalls++
	case ToolResult:
		if ev.IsError {
			s.toolErrors++
		}
	case Done:
		s.answered++
	case Failed:
		s.failed++
	}
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		Queries:    s.queries,
		Answered:   s.answered,
		Failed:     s.failed,
		Turns:      s.turns,
		ToolCalls:  s.toolCalls,
		ToolErrors: s.toolErrors,
	}
	for _, uri := range s.order {
		out.Resources = append(out.Resources, ResourceCount{URI: uri, Count: s.chosen[uri]})
	}
	return out
}

// Reset clears all counters for a new session.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries, s.answered, s.failed, s.turns = 0, 0, 0, 0
	s.toolCalls, s.toolErrors = 0, 0
	s.chosen = make(map[string]int)
	s.order = nil
}
