package monitor

import (
	"sync"

	"fundarb/internal/domain/model"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

type pairState struct {
	spread float64
	dir    Dir
	seen   bool
}

// State remembers the last spread per pair so the renderer can color
// widening and narrowing moves between ticks.
type State struct {
	mu    sync.Mutex
	pairs map[string]*pairState
}

func NewState() *State {
	return &State{pairs: make(map[string]*pairState)}
}

// Apply folds one board refresh into the direction history.
func (s *State) Apply(rows []model.OpportunityRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		ps := s.pairs[row.ID]
		if ps == nil {
			ps = &pairState{}
			s.pairs[row.ID] = ps
		}
		next := row.SpreadRate1yNominal
		switch {
		case !ps.seen:
			ps.dir = DirSame
		case next > ps.spread:
			ps.dir = DirUp
		case next < ps.spread:
			ps.dir = DirDown
		default:
			ps.dir = DirSame
		}
		ps.spread = next
		ps.seen = true
	}
}

// DirFor returns the last observed move for a pair.
func (s *State) DirFor(id string) Dir {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps := s.pairs[id]; ps != nil {
		return ps.dir
	}
	return DirSame
}
