package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hftengine/pkg/types"
)

// PaperRouter is an in-process OrderRouter that always fills immediately at
// the requested price, generalizing the teacher's dry-run fake-success
// branch into the default router for --mode paper and for tests.
type PaperRouter struct {
	mu       sync.Mutex
	orders   map[string]PlaceRequest
	logger   *slog.Logger
}

// NewPaperRouter builds a PaperRouter.
func NewPaperRouter(logger *slog.Logger) *PaperRouter {
	return &PaperRouter{
		orders: make(map[string]PlaceRequest),
		logger: logger.With("component", "paper_router"),
	}
}

func (p *PaperRouter) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.orders[id] = req
	p.mu.Unlock()
	p.logger.Debug("paper fill", "order_id", id, "token_id", req.TokenID, "side", req.Side, "price", req.Price, "size", req.Size)
	return PlaceResult{Success: true, OrderID: id}, nil
}

func (p *PaperRouter) Cancel(ctx context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return false, fmt.Errorf("paper router: unknown order %s", orderID)
	}
	delete(p.orders, orderID)
	return true, nil
}

func (p *PaperRouter) CancelAll(ctx context.Context, asset string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = make(map[string]PlaceRequest)
	return true, nil
}

func (p *PaperRouter) GetPositions(ctx context.Context) ([]types.ExternalPosition, error) {
	return nil, nil
}
