package service

import (
	"context"
	"time"

	"fundarb/internal/domain/model"
	domsvc "fundarb/internal/domain/service"
)

// BoardView is one rendered opportunity board.
type BoardView struct {
	Rows        []model.OpportunityRow `json:"rows"`
	SortedBy    string                 `json:"sorted_by"`
	GeneratedAt time.Time              `json:"generated_at"`
	Meta        FetchMeta              `json:"meta"`
}

// BoardService turns market snapshots into the ranked opportunity board.
type BoardService struct {
	market *MarketProvider
	now    func() time.Time
}

func NewBoardService(market *MarketProvider) *BoardService {
	return &BoardService{market: market, now: time.Now}
}

func (s *BoardService) Board(ctx context.Context, filter domsvc.BoardFilter, force bool) (*BoardView, error) {
	data, err := s.market.Snapshots(ctx, force)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rows, sortedBy := domsvc.BuildBoardRows(data.Snapshots, filter, now)
	return &BoardView{
		Rows:        rows,
		SortedBy:    sortedBy,
		GeneratedAt: now,
		Meta:        data.Meta,
	}, nil
}

// Snapshots exposes the raw per-venue rows with fetch metadata.
func (s *BoardService) Snapshots(ctx context.Context, force bool) (*MarketData, error) {
	return s.market.Snapshots(ctx, force)
}
