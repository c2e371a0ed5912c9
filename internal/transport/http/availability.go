package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dealdrop/dealdrop/internal/app"
)

// AvailabilitySnapshotter computes the capacity view for a set of offers.
type AvailabilitySnapshotter interface {
	Snapshot(ctx context.Context, offerIDs []string) (map[string]app.Availability, error)
}

type AvailabilityHandler struct {
	svc       AvailabilitySnapshotter
	logger    *zap.Logger
	interval  time.Duration
	heartbeat time.Duration
}

func NewAvailabilityHandler(svc AvailabilitySnapshotter, logger *zap.Logger, interval, heartbeat time.Duration) *AvailabilityHandler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &AvailabilityHandler{svc: svc, logger: logger, interval: interval, heartbeat: heartbeat}
}

type availabilityView struct {
	RedeemedCount int  `json:"redeemedCount"`
	Left          *int `json:"left"`
	SoldOut       bool `json:"soldOut"`
	Capacity      *int `json:"capacity"`
}

type availabilityEvent struct {
	Map map[string]availabilityView `json:"map"`
}

// Stream pushes availability deltas over server-sent events. All per-
// connection work hangs off the request context: when the client goes away
// the tickers stop and the handler returns, leaking nothing.
func (h *AvailabilityHandler) Stream(c echo.Context) error {
	offerIDs := splitCSV(c.QueryParam("offers"))
	if len(offerIDs) == 0 {
		return writeError(c, http.StatusBadRequest, codeOffersRequired, "offers query parameter required")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	var last map[string]availabilityView
	if err := h.push(ctx, res, offerIDs, &last); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			if err := h.push(ctx, res, offerIDs, &last); err != nil {
				return nil
			}
		}
	}
}

// push emits only the entries that changed since the previous tick; the
// first call emits the full map.
func (h *AvailabilityHandler) push(ctx context.Context, res *echo.Response, offerIDs []string, last *map[string]availabilityView) error {
	snapshot, err := h.svc.Snapshot(ctx, offerIDs)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("availability snapshot failed", zap.Error(err))
		return nil
	}

	current := make(map[string]availabilityView, len(snapshot))
	for id, a := range snapshot {
		current[id] = availabilityView{
			RedeemedCount: a.RedeemedCount,
			Left:          a.Left,
			SoldOut:       a.SoldOut,
			Capacity:      a.Capacity,
		}
	}

	delta := current
	if *last != nil {
		delta = make(map[string]availabilityView)
		for id, view := range current {
			if prev, ok := (*last)[id]; !ok || !viewsEqual(prev, view) {
				delta[id] = view
			}
		}
	}
	*last = current
	if len(delta) == 0 {
		return nil
	}

	payload, err := json.Marshal(availabilityEvent{Map: delta})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func viewsEqual(a, b availabilityView) bool {
	return a.RedeemedCount == b.RedeemedCount &&
		a.SoldOut == b.SoldOut &&
		intPtrEqual(a.Left, b.Left) &&
		intPtrEqual(a.Capacity, b.Capacity)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func splitCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
