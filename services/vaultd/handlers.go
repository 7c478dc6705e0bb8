package vaultd

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fracvault/core"
	"fracvault/native/common"
	"fracvault/native/vault"
	vaultmw "fracvault/services/vaultd/middleware"
)

func pathID(r *http.Request, param string) ([32]byte, error) {
	id, err := common.ParseID(chi.URLParam(r, param))
	if err != nil {
		return id, fmt.Errorf("%w: %s: %v", errBadRequest, param, err)
	}
	return id, nil
}

func bodyID(field, raw string) ([32]byte, error) {
	id, err := common.ParseID(raw)
	if err != nil {
		return id, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return id, nil
}

// optionalID parses raw when present and returns the zero identifier
// otherwise.
func optionalID(field, raw string) ([32]byte, error) {
	if raw == "" {
		return [32]byte{}, nil
	}
	return bodyID(field, raw)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func (s *Server) writeVault(w http.ResponseWriter, status int, v *vault.Vault) {
	writeJSON(w, status, newVaultView(v, s.node.Params()))
}

type fractionalizeRequest struct {
	Creator              string   `json:"creator"`
	AssetID              string   `json:"assetId"`
	AssetLedgerID        string   `json:"assetLedgerId"`
	TotalSupply          quantity `json:"totalSupply"`
	MinLPAgeSeconds      int64    `json:"minLpAgeSeconds"`
	MinReclaimPercentage uint8    `json:"minReclaimPercentage"`
	MinLiquidityPercent  uint8    `json:"minLiquidityPercent"`
	MinVolumePercent30d  uint8    `json:"minVolumePercent30d"`
}

// Fractionalize creates a vault and mints its fraction supply.
func (s *Server) Fractionalize(w http.ResponseWriter, r *http.Request) {
	var req fractionalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	creator, err := bodyID("creator", req.Creator)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset, err := bodyID("assetId", req.AssetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ledger, err := optionalID("assetLedgerId", req.AssetLedgerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TotalSupply == 0 {
		s.writeError(w, r, fmt.Errorf("%w: totalSupply must be positive", errBadRequest))
		return
	}
	v, err := s.node.Fractionalize(r.Context(), vault.FractionalizeRequest{
		Creator:       creator,
		AssetID:       asset,
		AssetLedgerID: ledger,
		TotalSupply:   uint64(req.TotalSupply),
		Thresholds: vault.Thresholds{
			MinLPAgeSeconds:      req.MinLPAgeSeconds,
			MinReclaimPercentage: req.MinReclaimPercentage,
			MinLiquidityPercent:  req.MinLiquidityPercent,
			MinVolumePercent30d:  req.MinVolumePercent30d,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusCreated, v)
}

// GetVault returns the vault record.
func (s *Server) GetVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.Vault(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

// GetHoldings reports an account's balances relative to a vault.
func (s *Server) GetHoldings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := pathID(r, "account")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.node.Holdings(id, account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldingsView(id, account, h))
}

// GetEvents lists journaled events for a vault.
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "event journal disabled"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
	}
	entries, err := s.journal.ForVault(hex.EncodeToString(id[:]), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vault": common.FormatID(id), "events": entries})
}

type reclaimRequest struct {
	Initiator string   `json:"initiator"`
	Amount    quantity `json:"amount"`
	Pool      string   `json:"pool"`
}

// InitiateReclaim starts a reclaim against the fraction pool's market state.
func (s *Server) InitiateReclaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req reclaimRequest
	if !s.decode(w, r, &req) {
		return
	}
	initiator, err := bodyID("initiator", req.Initiator)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := bodyID("pool", req.Pool)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.InitiateReclaim(r.Context(), id, initiator, uint64(req.Amount), pool)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

type callerRequest struct {
	Caller string `json:"caller"`
	Pool   string `json:"pool,omitempty"`
}

// FinalizeReclaim completes a reclaim after the escrow period.
func (s *Server) FinalizeReclaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := bodyID("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := optionalID("pool", req.Pool)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.FinalizeReclaim(r.Context(), id, caller, pool)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

// CancelReclaim returns escrowed fractions and compensation to the initiator.
func (s *Server) CancelReclaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req callerRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := bodyID("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.CancelReclaim(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

// ExpireReclaim unwinds a stale reclaim. It requires no caller.
func (s *Server) ExpireReclaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.ExpireReclaim(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

type claimRequest struct {
	Holder string   `json:"holder"`
	Amount quantity `json:"amount"`
}

type disburseRequest struct {
	Holder string         `json:"holder,omitempty"`
	Amount quantity       `json:"amount,omitempty"`
	Claims []claimRequest `json:"claims,omitempty"`
}

type disburseResponse struct {
	Vault  string     `json:"vault"`
	Paid   []quantity `json:"paid"`
	Total  quantity   `json:"total"`
	Status string     `json:"status"`
	Remain quantity   `json:"remainingCompensation"`
}

// Disburse redeems fractions for compensation. A single holder/amount pair or
// a claims list is accepted; a list is applied atomically.
func (s *Server) Disburse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req disburseRequest
	if !s.decode(w, r, &req) {
		return
	}
	raw := req.Claims
	if len(raw) == 0 {
		raw = []claimRequest{{Holder: req.Holder, Amount: req.Amount}}
	}
	claims := make([]core.Claim, 0, len(raw))
	for i, c := range raw {
		holder, err := bodyID(fmt.Sprintf("claims[%d].holder", i), c.Holder)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		claims = append(claims, core.Claim{Holder: holder, Amount: uint64(c.Amount)})
	}
	paid, err := s.node.DisburseBatch(r.Context(), id, claims)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.Vault(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := disburseResponse{
		Vault:  common.FormatID(id),
		Paid:   make([]quantity, 0, len(paid)),
		Status: v.Status.String(),
		Remain: quantity(v.RemainingCompensation),
	}
	for _, p := range paid {
		resp.Paid = append(resp.Paid, quantity(p))
		resp.Total += quantity(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Close retires a fully disbursed vault.
func (s *Server) Close(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.node.Close(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeVault(w, http.StatusOK, v)
}

type transferRequest struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount quantity `json:"amount"`
}

// TransferFractions moves free fraction balance between accounts.
func (s *Server) TransferFractions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	from, err := bodyID("from", req.From)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := bodyID("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.TransferFractions(r.Context(), id, from, to, uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.node.Holdings(id, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldingsView(id, to, h))
}

type depositRequest struct {
	Amount quantity `json:"amount"`
}

// DepositQuote credits quote asset to an account.
func (s *Server) DepositQuote(w http.ResponseWriter, r *http.Request) {
	account, err := pathID(r, "account")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	balance, err := s.node.DepositQuote(r.Context(), account, uint64(req.Amount))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": common.FormatID(account), "balance": quantity(balance)})
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

// SetPause toggles the vault module pause flag.
func (s *Server) SetPause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Paused == nil {
		s.writeError(w, r, fmt.Errorf("%w: paused required", errBadRequest))
		return
	}
	s.node.SetPaused(*req.Paused)
	s.logger.Warn("vault module pause updated", "paused", *req.Paused, "request_id", vaultmw.RequestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.node.Paused()})
}
