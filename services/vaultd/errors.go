package vaultd

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"fracvault/core"
	"fracvault/native/bank"
	"fracvault/native/common"
	"fracvault/native/custody"
	"fracvault/native/fractions"
	"fracvault/native/vault"
)

var errBadRequest = errors.New("bad request")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrAssetTransferFailed),
		errors.Is(err, core.ErrOracleUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, vault.ErrInvalidState),
		errors.Is(err, vault.ErrVaultExists),
		errors.Is(err, vault.ErrCompensationOutstanding),
		errors.Is(err, vault.ErrInvalidTimestamp),
		errors.Is(err, custody.ErrAlreadyInCustody):
		return http.StatusConflict
	case errors.Is(err, vault.ErrNotEligible),
		errors.Is(err, vault.ErrInsufficientHolding),
		errors.Is(err, vault.ErrInsufficientEscrow),
		errors.Is(err, vault.ErrEscrowPeriodActive),
		errors.Is(err, vault.ErrReclaimNotExpired),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrMathOverflow),
		errors.Is(err, fractions.ErrInsufficientBalance),
		errors.Is(err, fractions.ErrInvalidAmount),
		errors.Is(err, fractions.ErrSupplyOverflow),
		errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var violation *vault.Ineligibility
	if errors.As(err, &violation) {
		body.Reason = string(violation.Reason)
		body.Required = strconv.FormatUint(violation.Required, 10)
		body.Actual = strconv.FormatUint(violation.Actual, 10)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		if status == http.StatusInternalServerError {
			body.Error = http.StatusText(status)
		}
	}
	writeJSON(w, status, body)
}
