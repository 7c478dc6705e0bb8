package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps the vaultd REST endpoints.
type Client struct {
	baseURL    *url.URL
	adminToken string
	httpClient *http.Client
}

// Option mutates the client configuration during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAdminToken sets the bearer token presented to admin endpoints.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = strings.TrimSpace(token)
	}
}

// New constructs a client pointed at the supplied base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	parsed, err := url.Parse(trimmedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// APIError is returned for non-2xx responses. Reason, Required and Actual are
// populated when a reclaim was rejected by an eligibility check.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Reason     string `json:"reason"`
	Required   string `json:"required"`
	Actual     string `json:"actual"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("vaultd %d: %s (reason %s, required %s, actual %s)", e.StatusCode, e.Message, e.Reason, e.Required, e.Actual)
	}
	return fmt.Sprintf("vaultd %d: %s", e.StatusCode, e.Message)
}

// Reclaim mirrors the in-progress reclaim block of a vault response.
type Reclaim struct {
	Initiator      string `json:"initiator"`
	InitiatedAt    int64  `json:"initiatedAt"`
	TokensInEscrow string `json:"tokensInEscrow"`
	EscrowEndsAt   int64  `json:"escrowEndsAt"`
	ExpiresAt      int64  `json:"expiresAt"`
}

// Thresholds mirrors the reclaim gates fixed at fractionalization.
type Thresholds struct {
	MinLPAgeSeconds      int64 `json:"minLpAgeSeconds"`
	MinReclaimPercentage uint8 `json:"minReclaimPercentage"`
	MinLiquidityPercent  uint8 `json:"minLiquidityPercent"`
	MinVolumePercent30d  uint8 `json:"minVolumePercent30d"`
}

// Vault mirrors GET /vaults/{id}. Amounts are decimal strings.
type Vault struct {
	ID                    string     `json:"id"`
	AssetID               string     `json:"assetId"`
	AssetLedgerID         string     `json:"assetLedgerId"`
	FractionMint          string     `json:"fractionMint"`
	Creator               string     `json:"creator"`
	TotalSupply           string     `json:"totalSupply"`
	Status                string     `json:"status"`
	CreatedAt             int64      `json:"createdAt"`
	ReclaimedAt           int64      `json:"reclaimedAt"`
	TWAPPriceAtReclaim    string     `json:"twapPriceAtReclaim"`
	TotalCompensation     string     `json:"totalCompensation"`
	RemainingCompensation string     `json:"remainingCompensation"`
	MinorityTokens        string     `json:"minorityTokens"`
	Thresholds            Thresholds `json:"thresholds"`
	Reclaim               *Reclaim   `json:"reclaim,omitempty"`
}

// Holdings mirrors GET /vaults/{id}/holdings/{account}.
type Holdings struct {
	Vault       string `json:"vault"`
	Account     string `json:"account"`
	Fractions   string `json:"fractions"`
	Quote       string `json:"quote"`
	FundHeld    string `json:"fundHeld"`
	MintSupply  string `json:"mintSupply"`
	MintEscrow  string `json:"mintEscrow"`
	AssetHolder string `json:"assetHolder,omitempty"`
}

// Disbursement mirrors POST /vaults/{id}/disburse.
type Disbursement struct {
	Vault                 string   `json:"vault"`
	Paid                  []string `json:"paid"`
	Total                 string   `json:"total"`
	Status                string   `json:"status"`
	RemainingCompensation string   `json:"remainingCompensation"`
}

// Claim is one holder's redemption in a disbursement batch.
type Claim struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

// FractionalizeRequest mirrors POST /vaults.
type FractionalizeRequest struct {
	Creator              string `json:"creator"`
	AssetID              string `json:"assetId"`
	AssetLedgerID        string `json:"assetLedgerId,omitempty"`
	TotalSupply          string `json:"totalSupply"`
	MinLPAgeSeconds      int64  `json:"minLpAgeSeconds,omitempty"`
	MinReclaimPercentage uint8  `json:"minReclaimPercentage,omitempty"`
	MinLiquidityPercent  uint8  `json:"minLiquidityPercent,omitempty"`
	MinVolumePercent30d  uint8  `json:"minVolumePercent30d,omitempty"`
}

// RequestOption tweaks request metadata such as the Idempotency-Key header.
type RequestOption func(*requestOptions)

type requestOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey sets the Idempotency-Key header for the request.
func WithIdempotencyKey(key string) RequestOption {
	return func(opts *requestOptions) {
		opts.idempotencyKey = strings.TrimSpace(key)
	}
}

// Fractionalize creates a vault.
func (c *Client) Fractionalize(ctx context.Context, req FractionalizeRequest, opts ...RequestOption) (*Vault, error) {
	var out Vault
	if err := c.do(ctx, http.MethodPost, "/vaults", req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vault fetches a vault record.
func (c *Client) Vault(ctx context.Context, id string) (*Vault, error) {
	var out Vault
	if err := c.do(ctx, http.MethodGet, "/vaults/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Holdings fetches an account's balances relative to a vault.
func (c *Client) Holdings(ctx context.Context, id, account string) (*Holdings, error) {
	var out Holdings
	path := "/vaults/" + url.PathEscape(id) + "/holdings/" + url.PathEscape(account)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateReclaim starts a reclaim for initiator presenting amount fractions.
func (c *Client) InitiateReclaim(ctx context.Context, id, initiator, amount, pool string, opts ...RequestOption) (*Vault, error) {
	payload := map[string]string{"initiator": initiator, "amount": amount, "pool": pool}
	return c.transition(ctx, id, "reclaim", payload, opts...)
}

// FinalizeReclaim completes the reclaim once the escrow period has elapsed.
func (c *Client) FinalizeReclaim(ctx context.Context, id, caller, pool string, opts ...RequestOption) (*Vault, error) {
	payload := map[string]string{"caller": caller}
	if strings.TrimSpace(pool) != "" {
		payload["pool"] = pool
	}
	return c.transition(ctx, id, "finalize", payload, opts...)
}

// CancelReclaim abandons the reclaim on behalf of its initiator.
func (c *Client) CancelReclaim(ctx context.Context, id, caller string, opts ...RequestOption) (*Vault, error) {
	return c.transition(ctx, id, "cancel", map[string]string{"caller": caller}, opts...)
}

// ExpireReclaim unwinds a reclaim whose expiry window has passed.
func (c *Client) ExpireReclaim(ctx context.Context, id string, opts ...RequestOption) (*Vault, error) {
	return c.transition(ctx, id, "expire", nil, opts...)
}

// Close retires a fully disbursed vault.
func (c *Client) Close(ctx context.Context, id string, opts ...RequestOption) (*Vault, error) {
	return c.transition(ctx, id, "close", nil, opts...)
}

// Disburse redeems each claim for compensation in a single atomic batch.
func (c *Client) Disburse(ctx context.Context, id string, claims []Claim, opts ...RequestOption) (*Disbursement, error) {
	var out Disbursement
	path := "/vaults/" + url.PathEscape(id) + "/disburse"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"claims": claims}, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// DepositQuote credits quote asset to account and returns the new balance.
func (c *Client) DepositQuote(ctx context.Context, account, amount string, opts ...RequestOption) (string, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	path := "/accounts/" + url.PathEscape(account) + "/deposit"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"amount": amount}, &out, opts...); err != nil {
		return "", err
	}
	return out.Balance, nil
}

// SetPaused toggles the vault module pause flag. Requires an admin token.
func (c *Client) SetPaused(ctx context.Context, paused bool) (bool, error) {
	var out struct {
		Paused bool `json:"paused"`
	}
	if err := c.do(ctx, http.MethodPost, "/admin/pause", map[string]bool{"paused": paused}, &out); err != nil {
		return false, err
	}
	return out.Paused, nil
}

func (c *Client) transition(ctx context.Context, id, action string, payload any, opts ...RequestOption) (*Vault, error) {
	var out Vault
	path := "/vaults/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, payload, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, out any, opts ...RequestOption) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	rel := &url.URL{Path: strings.TrimRight(c.baseURL.Path, "/") + endpoint}
	target := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", ro.idempotencyKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
