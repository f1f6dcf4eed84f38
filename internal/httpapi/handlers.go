package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/concurrent-ledger/internal/breaker"
	"github.com/sheikh-saqib/concurrent-ledger/internal/ledger"
	"github.com/sheikh-saqib/concurrent-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/concurrent-ledger/internal/storage/memory"
)

// AccountStore is the account directory the handlers resolve ids against.
type AccountStore interface {
	Create(initial decimal.Decimal) (*ledger.Account, error)
	Get(id uuid.UUID) (*ledger.Account, error)
	List() []*ledger.Account
}

// Snapshotter reads a consistent total across accounts.
type Snapshotter interface {
	Total(ctx context.Context, accounts ...*ledger.Account) (decimal.Decimal, error)
}

type Handlers struct {
	accounts  AccountStore
	transfers ledger.Transferer
	snapshots Snapshotter
	logger    *zap.Logger
}

// NewHandlers wires the handlers. transfers is usually a decorator chain
// ending in the same *ledger.Ledger passed as snapshots.
func NewHandlers(accounts AccountStore, transfers ledger.Transferer, snapshots Snapshotter, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{accounts: accounts, transfers: transfers, snapshots: snapshots, logger: logger}
}

type createAccountRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

type accountResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type transferRequest struct {
	FromAccount uuid.UUID       `json:"from_account"`
	ToAccount   uuid.UUID       `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
}

type totalResponse struct {
	Accounts int             `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Create(req.Balance)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{AccountID: account.ID(), Balance: req.Balance})
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("account_id")
	if raw == "" {
		writeErr(w, http.StatusBadRequest, "account_id is a mandatory field")
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "account_id must be a uuid")
		return
	}

	account, err := h.accounts.Get(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	balance, err := account.Balance(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{AccountID: id, Balance: balance})
}

// GetTotal reports the sum of all balances, read under every account's guard.
func (h *Handlers) GetTotal(w http.ResponseWriter, r *http.Request) {
	accounts := h.accounts.List()
	total, err := h.snapshots.Total(r.Context(), accounts...)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, totalResponse{Accounts: len(accounts), Total: total})
}

func (h *Handlers) PostTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, err := h.accounts.Get(req.FromAccount)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	to, err := h.accounts.Get(req.ToAccount)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if err := h.transfers.Transfer(r.Context(), from, to, req.Amount); err != nil {
		h.respondErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "transferred"})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func (h *Handlers) respondErr(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.Int("status", code), zap.Error(err))
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeErr(w, code, publicErrMessage(code, err))
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrLockTimeout), errors.Is(err, breaker.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	switch code {
	case http.StatusServiceUnavailable:
		return "temporarily unavailable, retry"
	case http.StatusInternalServerError:
		return "internal error"
	}
	return err.Error()
}
