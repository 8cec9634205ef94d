// Package monitor renders the funding opportunity board to a terminal on a
// fixed interval. It is a read-only view over the same market path the HTTP
// board uses.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/application/service"
	domsvc "fundarb/internal/domain/service"
)

type ServiceDeps struct {
	Board    *service.BoardService
	Filter   domsvc.BoardFilter
	Interval time.Duration
	TopN     int
	Sink     port.Sink
}

type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	if deps.TopN <= 0 {
		deps.TopN = 5
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Minute
	}
	return &Service{
		deps: deps,
		st:   NewState(),
		fmt:  NewFormatter(deps.TopN),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Board == nil || s.deps.Sink == nil {
		return errors.New("monitor needs a board service and a sink")
	}

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	s.tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

func (s *Service) tick(ctx context.Context, now time.Time) {
	view, err := s.deps.Board.Board(ctx, s.deps.Filter, false)
	if err != nil {
		log.Warn().Err(err).Msg("monitor board fetch failed")
		return
	}
	s.st.Apply(view.Rows)
	_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(s.st, view))
}
