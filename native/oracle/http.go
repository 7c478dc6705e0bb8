package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fracvault/native/common"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP fetches pool readings from a market-data service exposing
// GET {endpoint}/pools/{pool}.
type HTTP struct {
	client   HTTPDoer
	endpoint string
}

// NewHTTP constructs an HTTP oracle. When client is nil a traced client with a
// ten second timeout is used.
func NewHTTP(client HTTPDoer, endpoint string) (*HTTP, error) {
	ep := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if ep == "" {
		return nil, fmt.Errorf("http oracle: endpoint required")
	}
	if _, err := url.Parse(ep); err != nil {
		return nil, fmt.Errorf("http oracle: endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTP{client: client, endpoint: ep}, nil
}

type poolPayload struct {
	TWAPPrice        uint64 `json:"twapPrice,string"`
	LiquidityPercent uint64 `json:"liquidityPercent"`
	VolumePercent30d uint64 `json:"volumePercent30d"`
	PoolAgeSeconds   int64  `json:"poolAgeSeconds"`
	ObservedAt       int64  `json:"observedAt"`
}

func (o *HTTP) Snapshot(ctx context.Context, pool [32]byte) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/pools/"+common.FormatID(pool), nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("http oracle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Snapshot{}, fmt.Errorf("%w: %x", ErrPoolUnknown, pool)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("http oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload poolPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("http oracle: decode: %w", err)
	}
	if payload.PoolAgeSeconds < 0 {
		return Snapshot{}, fmt.Errorf("http oracle: negative pool age")
	}
	snap := Snapshot{
		TWAPPrice:        payload.TWAPPrice,
		LiquidityPercent: payload.LiquidityPercent,
		VolumePercent30d: payload.VolumePercent30d,
		PoolAgeSeconds:   payload.PoolAgeSeconds,
		Source:           "http",
	}
	if payload.ObservedAt > 0 {
		snap.ObservedAt = time.Unix(payload.ObservedAt, 0)
	}
	return snap, nil
}
