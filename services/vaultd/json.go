package vaultd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fracvault/core"
	"fracvault/native/common"
	"fracvault/native/vault"
)

// quantity decodes a uint64 from either a JSON string or number and always
// encodes as a string so amounts survive JavaScript clients.
type quantity uint64

func (q quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(q), 10))
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		return fmt.Errorf("amount required")
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", raw)
	}
	*q = quantity(parsed)
	return nil
}

type thresholdsView struct {
	MinLPAgeSeconds      int64 `json:"minLpAgeSeconds"`
	MinReclaimPercentage uint8 `json:"minReclaimPercentage"`
	MinLiquidityPercent  uint8 `json:"minLiquidityPercent"`
	MinVolumePercent30d  uint8 `json:"minVolumePercent30d"`
}

type reclaimView struct {
	Initiator      string   `json:"initiator"`
	InitiatedAt    int64    `json:"initiatedAt"`
	TokensInEscrow quantity `json:"tokensInEscrow"`
	EscrowEndsAt   int64    `json:"escrowEndsAt"`
	ExpiresAt      int64    `json:"expiresAt"`
}

type vaultView struct {
	ID                    string         `json:"id"`
	AssetID               string         `json:"assetId"`
	AssetLedgerID         string         `json:"assetLedgerId"`
	FractionMint          string         `json:"fractionMint"`
	Creator               string         `json:"creator"`
	TotalSupply           quantity       `json:"totalSupply"`
	Status                string         `json:"status"`
	CreatedAt             int64          `json:"createdAt"`
	ReclaimedAt           int64          `json:"reclaimedAt,omitempty"`
	TWAPPriceAtReclaim    quantity       `json:"twapPriceAtReclaim"`
	TotalCompensation     quantity       `json:"totalCompensation"`
	RemainingCompensation quantity       `json:"remainingCompensation"`
	MinorityTokens        quantity       `json:"minorityTokens"`
	Thresholds            thresholdsView `json:"thresholds"`
	Reclaim               *reclaimView   `json:"reclaim,omitempty"`
}

func newVaultView(v *vault.Vault, params vault.Params) vaultView {
	view := vaultView{
		ID:                    common.FormatID(v.ID()),
		AssetID:               common.FormatID(v.AssetID),
		AssetLedgerID:         common.FormatID(v.AssetLedgerID),
		FractionMint:          common.FormatID(v.FractionMint),
		Creator:               common.FormatID(v.Creator),
		TotalSupply:           quantity(v.TotalSupply),
		Status:                v.Status.String(),
		CreatedAt:             v.CreatedAt,
		ReclaimedAt:           v.ReclaimedAt,
		TWAPPriceAtReclaim:    quantity(v.TWAPPriceAtReclaim),
		TotalCompensation:     quantity(v.TotalCompensation),
		RemainingCompensation: quantity(v.RemainingCompensation),
		MinorityTokens:        quantity(v.MinorityTokens()),
		Thresholds: thresholdsView{
			MinLPAgeSeconds:      v.MinLPAgeSeconds,
			MinReclaimPercentage: v.MinReclaimPercentage,
			MinLiquidityPercent:  v.MinLiquidityPercent,
			MinVolumePercent30d:  v.MinVolumePercent30d,
		},
	}
	if v.Status == vault.StatusReclaimInitiated {
		view.Reclaim = &reclaimView{
			Initiator:      common.FormatID(v.ReclaimInitiator),
			InitiatedAt:    v.ReclaimInitiatedAt,
			TokensInEscrow: quantity(v.TokensInEscrow),
			EscrowEndsAt:   params.EscrowEndsAt(v.ReclaimInitiatedAt),
			ExpiresAt:      params.ExpiresAt(v.ReclaimInitiatedAt),
		}
	}
	return view
}

type holdingsView struct {
	Vault       string   `json:"vault"`
	Account     string   `json:"account"`
	Fractions   quantity `json:"fractions"`
	Quote       quantity `json:"quote"`
	FundHeld    quantity `json:"fundHeld"`
	MintSupply  quantity `json:"mintSupply"`
	MintEscrow  quantity `json:"mintEscrow"`
	AssetHolder string   `json:"assetHolder,omitempty"`
}

func newHoldingsView(id, account [32]byte, h core.Holdings) holdingsView {
	view := holdingsView{
		Vault:      common.FormatID(id),
		Account:    common.FormatID(account),
		Fractions:  quantity(h.Fractions),
		Quote:      quantity(h.Quote),
		FundHeld:   quantity(h.FundHeld),
		MintSupply: quantity(h.MintSupply),
		MintEscrow: quantity(h.MintEscrow),
	}
	if h.AssetHolder != ([32]byte{}) {
		view.AssetHolder = common.FormatID(h.AssetHolder)
	}
	return view
}

type errorBody struct {
	Error    string `json:"error"`
	Reason   string `json:"reason,omitempty"`
	Required string `json:"required,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
