/*
client.go - HTTP transport to the sync endpoint

The wire types here are deliberately local to the client rather than
shared with the server packages: a till ships on its own release cadence
and must tolerate the server adding fields.
*/
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/shopledger/ledger"
)

// SyncReport is the server's verdict on one pushed batch. Keys present
// in Errored were rejected; everything else submitted was applied (or
// already applied) and is safe to mark synced locally.
type SyncReport struct {
	Accepted   int
	Duplicates int
	Errored    map[string]string // idempotency key -> reason
}

// SyncClient pushes a batch of pending sales to the server.
type SyncClient interface {
	Push(ctx context.Context, sales []PendingSale) (*SyncReport, error)
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

type HTTPClient struct {
	BaseURL string
	Shop    ledger.ShopID
	Device  ledger.DeviceID
	Actor   ledger.ActorID
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string, shop ledger.ShopID, device ledger.DeviceID, actor ledger.ActorID) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Shop:    shop,
		Device:  device,
		Actor:   actor,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type wireSaleItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ProductID      string          `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SoldAt         time.Time       `json:"sold_at"`
}

type wireSyncRequest struct {
	Sales []wireSaleItem `json:"sales"`
}

type wireItemError struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason"`
}

type wireSyncResponse struct {
	Submitted         int             `json:"submitted"`
	Accepted          int             `json:"accepted"`
	DuplicatesIgnored int             `json:"duplicates_ignored"`
	Errors            []wireItemError `json:"errors"`
	Status            string          `json:"status"`
}

// Push submits the batch. A non-nil error means transport-level failure
// and the whole batch should be retried later; item-level rejections
// come back inside the report.
func (c *HTTPClient) Push(ctx context.Context, sales []PendingSale) (*SyncReport, error) {
	req := wireSyncRequest{Sales: make([]wireSaleItem, 0, len(sales))}
	for _, s := range sales {
		req.Sales = append(req.Sales, wireSaleItem{
			IdempotencyKey: s.IdempotencyKey,
			ProductID:      string(s.Product),
			Quantity:       s.Quantity,
			UnitPrice:      s.UnitPrice,
			SoldAt:         s.SoldAt,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/sales/sync", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shop-ID", string(c.Shop))
	httpReq.Header.Set("X-Device-ID", string(c.Device))
	httpReq.Header.Set("X-Actor-ID", string(c.Actor))

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrSyncUnavailable, err)
	}
	defer resp.Body.Close()

	// 200, 207 and 422 all carry a parseable outcome body; anything else
	// is treated as transport failure.
	switch resp.StatusCode {
	case http.StatusOK, http.StatusMultiStatus, http.StatusUnprocessableEntity:
	default:
		return nil, fmt.Errorf("%w: server returned %d", ledger.ErrSyncUnavailable, resp.StatusCode)
	}

	var wire wireSyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ledger.ErrSyncUnavailable, err)
	}

	report := &SyncReport{
		Accepted:   wire.Accepted,
		Duplicates: wire.DuplicatesIgnored,
		Errored:    make(map[string]string, len(wire.Errors)),
	}
	for _, e := range wire.Errors {
		report.Errored[e.IdempotencyKey] = e.Reason
	}
	return report, nil
}
