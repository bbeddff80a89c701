package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kvault/native/batch"
	"kvault/native/minter"
	"kvault/native/router"
	"kvault/native/vault"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, batch.ErrNotFound),
		errors.Is(err, router.ErrBatchNotFound),
		errors.Is(err, router.ErrProposalNotFound),
		errors.Is(err, vault.ErrRequestNotFound),
		errors.Is(err, minter.ErrRequestNotFound),
		errors.Is(err, minter.ErrDistributorNotFound):
		return http.StatusNotFound
	case errors.Is(err, batch.ErrUnauthorized),
		errors.Is(err, router.ErrUnauthorized),
		errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, minter.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, router.ErrCooldownActive),
		errors.Is(err, router.ErrProposalPending),
		errors.Is(err, router.ErrAlreadyExecuted),
		errors.Is(err, batch.ErrAlreadyClosed),
		errors.Is(err, batch.ErrAlreadySettled),
		errors.Is(err, vault.ErrNotSettled),
		errors.Is(err, vault.ErrBatchNotOpen),
		errors.Is(err, vault.ErrRequestNotPending),
		errors.Is(err, minter.ErrNotSettled),
		errors.Is(err, minter.ErrBatchNotOpen),
		errors.Is(err, minter.ErrRequestNotPending):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("request_id", RequestID(r.Context())), slog.String("error", err.Error()))
	}
	writeError(w, status, err)
}

func decodeBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// --- batch endpoints ---

type batchResponse struct {
	ID               string            `json:"id"`
	Vault            string            `json:"vault"`
	Asset            string            `json:"asset"`
	Number           uint64            `json:"number"`
	Status           string            `json:"status"`
	Receiver         string            `json:"receiver,omitempty"`
	CreatedAt        int64             `json:"createdAt"`
	ClosedAt         int64             `json:"closedAt,omitempty"`
	SettledAt        int64             `json:"settledAt,omitempty"`
	DepositedInBatch string            `json:"depositedInBatch"`
	WithdrawnInBatch string            `json:"withdrawnInBatch"`
	Snapshot         *snapshotResponse `json:"snapshot,omitempty"`
}

type snapshotResponse struct {
	TotalAssets    string `json:"totalAssets"`
	TotalNetAssets string `json:"totalNetAssets"`
	TotalSupply    string `json:"totalSupply"`
	SharePrice     string `json:"sharePrice"`
	NetSharePrice  string `json:"netSharePrice"`
}

func newBatchResponse(b *batch.Batch) *batchResponse {
	resp := &batchResponse{
		ID:               formatID(b.ID),
		Vault:            formatAddress(b.Vault),
		Asset:            formatAddress(b.Asset),
		Number:           b.Number,
		Status:           b.Status().String(),
		CreatedAt:        b.CreatedAt,
		ClosedAt:         b.ClosedAt,
		SettledAt:        b.SettledAt,
		DepositedInBatch: formatAmount(b.DepositedInBatch),
		WithdrawnInBatch: formatAmount(b.WithdrawnInBatch),
	}
	if b.HasReceiver {
		resp.Receiver = formatAddress(b.Receiver)
	}
	if b.Snapshot != nil {
		resp.Snapshot = &snapshotResponse{
			TotalAssets:    formatAmount(b.Snapshot.TotalAssets),
			TotalNetAssets: formatAmount(b.Snapshot.TotalNetAssets),
			TotalSupply:    formatAmount(b.Snapshot.TotalSupply),
			SharePrice:     formatAmount(b.Snapshot.SharePrice),
			NetSharePrice:  formatAmount(b.Snapshot.NetSharePrice),
		}
	}
	return resp
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	record, ok, err := s.batches.Get(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, batch.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(record))
}

type createBatchRequest struct {
	Caller string `json:"caller"`
	Vault  string `json:"vault"`
	Asset  string `json:"asset"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vaultAddr, err := parseAddress(req.Vault)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.batches.CreateBatch(caller, vaultAddr, asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

type closeBatchRequest struct {
	Caller     string `json:"caller"`
	CreateNext bool   `json:"createNext"`
}

func (s *Server) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req closeBatchRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	nextID, err := s.batches.CloseBatch(caller, id, req.CreateNext)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]string{"id": formatID(id)}
	if req.CreateNext {
		resp["nextId"] = formatID(nextID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	vaultAddr, err := parseAddress(chi.URLParam(r, "vault"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok, err := s.batches.Current(vaultAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, batch.ErrNotFound)
		return
	}
	record, ok, err := s.batches.Get(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, batch.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(record))
}

func (s *Server) handleBatchBalances(w http.ResponseWriter, r *http.Request) {
	vaultAddr, err := parseAddress(chi.URLParam(r, "vault"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balances, err := s.router.BatchBalances(vaultAddr, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"deposited":       formatAmount(balances.Deposited),
		"requested":       formatAmount(balances.Requested),
		"requestedShares": formatAmount(balances.RequestedShares),
	})
}

// --- settlement endpoints ---

type proposalResponse struct {
	ID           string `json:"id"`
	Asset        string `json:"asset"`
	Vault        string `json:"vault"`
	BatchID      string `json:"batchId"`
	TotalAssets  string `json:"totalAssets"`
	Netted       string `json:"netted"`
	Yield        string `json:"yield"`
	ExecuteAfter int64  `json:"executeAfter"`
	CreatedAt    int64  `json:"createdAt"`
}

func (s *Server) handlePendingProposal(w http.ResponseWriter, r *http.Request) {
	vaultAddr, err := parseAddress(chi.URLParam(r, "vault"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	proposal, ok, err := s.router.PendingProposal(vaultAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, router.ErrProposalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, proposalResponse{
		ID:           formatID(proposal.ID),
		Asset:        formatAddress(proposal.Asset),
		Vault:        formatAddress(proposal.Vault),
		BatchID:      formatID(proposal.BatchID),
		TotalAssets:  formatAmount(proposal.TotalAssets),
		Netted:       formatAmount(proposal.Netted),
		Yield:        formatAmount(proposal.Yield),
		ExecuteAfter: proposal.ExecuteAfter,
		CreatedAt:    proposal.CreatedAt,
	})
}

type proposeSettlementRequest struct {
	Caller              string `json:"caller"`
	Asset               string `json:"asset"`
	Vault               string `json:"vault"`
	BatchID             string `json:"batchId"`
	TotalAssets         string `json:"totalAssets"`
	LastFeesManagement  int64  `json:"lastFeesManagement"`
	LastFeesPerformance int64  `json:"lastFeesPerformance"`
}

func (s *Server) handleProposeSettlement(w http.ResponseWriter, r *http.Request) {
	var req proposeSettlementRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vaultAddr, err := parseAddress(req.Vault)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	batchID, err := parseID(req.BatchID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totalAssets, err := parseAmount(req.TotalAssets)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.router.ProposeSettleBatch(caller, asset, vaultAddr, batchID, totalAssets, req.LastFeesManagement, req.LastFeesPerformance)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

func (s *Server) handleExecuteSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.router.ExecuteSettleBatch(id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "executed"})
}

type cancelSettlementRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleCancelSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req cancelSettlementRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.router.CancelProposal(caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "cancelled"})
}

// --- minter endpoints ---

type mintRequest struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.minter.Mint(caller, asset, recipient, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

func (s *Server) handleRequestBurn(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.minter.RequestBurn(caller, asset, recipient, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) callerAndID(w http.ResponseWriter, r *http.Request) ([20]byte, [32]byte, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return [20]byte{}, [32]byte{}, false
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return [20]byte{}, [32]byte{}, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return [20]byte{}, [32]byte{}, false
	}
	return caller, id, true
}

func (s *Server) handleRedeemBurn(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	if err := s.minter.Burn(caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "redeemed"})
}

func (s *Server) handleCancelBurn(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	if err := s.minter.CancelBurnRequest(caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "cancelled"})
}

// --- vault endpoints ---

type stakeRequestBody struct {
	Caller    string `json:"caller"`
	Vault     string `json:"vault"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (s *Server) handleRequestStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequestBody
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vaultAddr, err := parseAddress(req.Vault)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.vaults.RequestStake(caller, vaultAddr, recipient, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

type unstakeRequestBody struct {
	Caller    string `json:"caller"`
	Vault     string `json:"vault"`
	Recipient string `json:"recipient"`
	Shares    string `json:"shares"`
}

func (s *Server) handleRequestUnstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequestBody
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vaultAddr, err := parseAddress(req.Vault)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.vaults.RequestUnstake(caller, vaultAddr, recipient, shares)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": formatID(id)})
}

func (s *Server) handleClaimStake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	shares, err := s.vaults.ClaimStakedShares(caller, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "shares": formatAmount(shares)})
}

func (s *Server) handleClaimUnstake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	assets, err := s.vaults.ClaimUnstakedAssets(caller, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "assets": formatAmount(assets)})
}

func (s *Server) handleCancelStake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	if err := s.vaults.CancelStakeRequest(caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "cancelled"})
}

func (s *Server) handleCancelUnstake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := s.callerAndID(w, r)
	if !ok {
		return
	}
	if err := s.vaults.CancelUnstakeRequest(caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": formatID(id), "status": "cancelled"})
}

func (s *Server) handleVirtualBalance(w http.ResponseWriter, r *http.Request) {
	vaultAddr, err := parseAddress(chi.URLParam(r, "vault"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shortfall, err := s.router.YieldShortfall(vaultAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"virtualBalance": formatAmount(s.router.VirtualBalance(vaultAddr)),
		"yieldShortfall": formatAmount(shortfall),
	})
}

func (s *Server) handleFeeState(w http.ResponseWriter, r *http.Request) {
	vaultAddr, err := parseAddress(chi.URLParam(r, "vault"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fs, err := s.vaults.FeeState(vaultAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"managementFeeBps":           fs.Config.ManagementFeeBps,
		"performanceFeeBps":          fs.Config.PerformanceFeeBps,
		"hurdleRateBps":              fs.Config.HurdleRateBps,
		"hardHurdle":                 fs.Config.HardHurdle,
		"watermark":                  formatAmount(fs.Watermark),
		"accruedFees":                formatAmount(fs.AccruedFees),
		"lastFeesChargedManagement":  fs.LastFeesChargedManagement,
		"lastFeesChargedPerformance": fs.LastFeesChargedPerformance,
	})
}

// --- request lookups ---

func (s *Server) handleGetStakeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, ok, err := s.vaults.StakeRequest(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, vault.ErrRequestNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        formatID(req.ID),
		"vault":     formatAddress(req.Vault),
		"user":      formatAddress(req.User),
		"recipient": formatAddress(req.Recipient),
		"amount":    formatAmount(req.Amount),
		"batchId":   formatID(req.BatchID),
		"timestamp": req.RequestTimestamp,
		"status":    uint8(req.Status),
	})
}

func (s *Server) handleGetUnstakeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, ok, err := s.vaults.UnstakeRequest(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, vault.ErrRequestNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        formatID(req.ID),
		"vault":     formatAddress(req.Vault),
		"user":      formatAddress(req.User),
		"recipient": formatAddress(req.Recipient),
		"shares":    formatAmount(req.Shares),
		"batchId":   formatID(req.BatchID),
		"timestamp": req.RequestTimestamp,
		"status":    uint8(req.Status),
	})
}

func (s *Server) handleGetBurnRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, ok, err := s.minter.BurnRequest(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, minter.ErrRequestNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          formatID(req.ID),
		"institution": formatAddress(req.Institution),
		"asset":       formatAddress(req.Asset),
		"recipient":   formatAddress(req.Recipient),
		"amount":      formatAmount(req.Amount),
		"batchId":     formatID(req.BatchID),
		"timestamp":   req.RequestTimestamp,
		"status":      uint8(req.Status),
	})
}

// --- token endpoints ---

func (s *Server) handleTokenSupply(w http.ResponseWriter, r *http.Request) {
	tokenAddr, err := parseAddress(chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"totalSupply": formatAmount(s.tokens.TotalSupply(tokenAddr)),
	})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	tokenAddr, err := parseAddress(chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	holder, err := parseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"balance": formatAmount(s.tokens.BalanceOf(tokenAddr, holder)),
	})
}

func (s *Server) handleDistributorBalance(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseID(chi.URLParam(r, "batch"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := s.arena.Balance(batchID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"balance": formatAmount(balance),
	})
}
