package app

import (
	"context"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
)

const (
	defaultLimit = 500
	maxLimit     = 5000
)

type SnapshotReader interface {
	QueryRange(ctx context.Context, holderID string, start, end time.Time, instrument *string) ([]domain.Snapshot, error)
	GetByOrderID(ctx context.Context, orderID string) ([]domain.Snapshot, error)
}

type QueryService struct {
	snapshots SnapshotReader
}

func NewQueryService(snapshots SnapshotReader) *QueryService {
	return &QueryService{snapshots: snapshots}
}

type QueryInput struct {
	HolderID   string
	Start      time.Time
	End        time.Time
	Instrument *string
	Limit      int
	Offset     int
}

// OrderView groups the snapshots of one order, newest first. Rows holds
// the full observed history in latest-only mode too, so handlers can
// expose either shape without re-querying.
type OrderView struct {
	OrderID string
	Rows    []domain.Snapshot
}

// QueryOrders returns per-order views for one holder within a time range,
// paginated over orders rather than rows so an order's history is never
// split across pages.
func (s *QueryService) QueryOrders(ctx context.Context, in QueryInput) ([]OrderView, error) {
	if in.HolderID == "" {
		return nil, domain.ErrHolderRequired
	}
	if in.End.Before(in.Start) {
		return nil, domain.ErrInvalidTimeRange
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 0 || limit > maxLimit {
		return nil, domain.ErrInvalidLimit
	}
	if in.Offset < 0 {
		return nil, domain.ErrInvalidOffset
	}

	snapshots, err := s.snapshots.QueryRange(ctx, in.HolderID, in.Start, in.End, in.Instrument)
	if err != nil {
		return nil, err
	}

	orders := groupByOrder(snapshots)

	if in.Offset >= len(orders) {
		return []OrderView{}, nil
	}
	orders = orders[in.Offset:]
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// OrderHistory returns one order's snapshots newest-first across all
// holders and times.
func (s *QueryService) OrderHistory(ctx context.Context, orderID string) (OrderView, error) {
	snapshots, err := s.snapshots.GetByOrderID(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if len(snapshots) == 0 {
		return OrderView{}, domain.ErrOrderNotFound
	}
	return OrderView{OrderID: orderID, Rows: snapshots}, nil
}

// groupByOrder relies on the store returning rows already sorted by
// order id, then observed_at and inserted_at descending, so consecutive
// rows with the same order id form one complete group.
func groupByOrder(snapshots []domain.Snapshot) []OrderView {
	var orders []OrderView
	for _, snap := range snapshots {
		n := len(orders)
		if n > 0 && orders[n-1].OrderID == snap.OrderID {
			orders[n-1].Rows = append(orders[n-1].Rows, snap)
			continue
		}
		orders = append(orders, OrderView{OrderID: snap.OrderID, Rows: []domain.Snapshot{snap}})
	}
	return orders
}
