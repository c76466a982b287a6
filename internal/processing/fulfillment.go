package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

// Fulfiller performs the external side effect of an order.
type Fulfiller interface {
	Fulfill(ctx context.Context, order models.Order) error
}

// SimulatedFulfiller stands in for a fulfillment system: it waits Delay and
// succeeds.
type SimulatedFulfiller struct {
	Delay time.Duration
}

func (f SimulatedFulfiller) Fulfill(ctx context.Context, _ models.Order) error {
	if f.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTPFulfiller asks an external fulfillment system to ship an order.
type HTTPFulfiller struct {
	address string
	client  *http.Client
	Logger  *zap.SugaredLogger
}

type fulfillRequest struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
	Amount      string `json:"amount"`
}

func NewHTTPFulfiller(address string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPFulfiller {
	return &HTTPFulfiller{
		address: strings.TrimRight(address, "/"),
		client:  &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

func (f *HTTPFulfiller) Fulfill(ctx context.Context, order models.Order) error {
	url := fmt.Sprintf("%s/api/fulfill", f.address)
	f.Logger.Debugw("requesting fulfillment", "url", url, "order_id", order.ID)

	body, err := json.Marshal(fulfillRequest{
		OrderID:     order.ID,
		ProductName: order.ProductName,
		Amount:      order.Amount.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
