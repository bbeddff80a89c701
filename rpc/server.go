package rpc

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvault/native/batch"
	"kvault/native/minter"
	"kvault/native/registry"
	"kvault/native/router"
	"kvault/native/token"
	"kvault/native/vault"
)

// Server exposes the protocol engines over HTTP. Queries are open; mutating
// endpoints carry the caller address in the request body and rely on the
// engines' role checks.
type Server struct {
	logger   *slog.Logger
	batches  *batch.Ledger
	router   *router.Engine
	vaults   *vault.Engine
	minter   *minter.Engine
	arena    *minter.Arena
	tokens   *token.Ledger
	registry *registry.Registry
}

// Config collects the engine handles the server fronts.
type Config struct {
	Logger   *slog.Logger
	Batches  *batch.Ledger
	Router   *router.Engine
	Vaults   *vault.Engine
	Minter   *minter.Engine
	Arena    *minter.Arena
	Tokens   *token.Ledger
	Registry *registry.Registry
}

// NewServer builds a server from the supplied engines.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		batches:  cfg.Batches,
		router:   cfg.Router,
		vaults:   cfg.Vaults,
		minter:   cfg.Minter,
		arena:    cfg.Arena,
		tokens:   cfg.Tokens,
		registry: cfg.Registry,
	}
}

// Handler assembles the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observe(s.logger, "root"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/batches/{id}", s.handleGetBatch)
		v1.Post("/batches", s.handleCreateBatch)
		v1.Post("/batches/{id}/close", s.handleCloseBatch)

		v1.Get("/vaults/{vault}/batches/current", s.handleCurrentBatch)
		v1.Get("/vaults/{vault}/batches/{id}/balances", s.handleBatchBalances)
		v1.Get("/vaults/{vault}/proposal", s.handlePendingProposal)
		v1.Get("/vaults/{vault}/virtual-balance", s.handleVirtualBalance)
		v1.Get("/vaults/{vault}/fees", s.handleFeeState)

		v1.Post("/settlements", s.handleProposeSettlement)
		v1.Post("/settlements/{id}/execute", s.handleExecuteSettlement)
		v1.Post("/settlements/{id}/cancel", s.handleCancelSettlement)

		v1.Post("/mints", s.handleMint)

		v1.Post("/requests/stake", s.handleRequestStake)
		v1.Get("/requests/stake/{id}", s.handleGetStakeRequest)
		v1.Post("/requests/stake/{id}/claim", s.handleClaimStake)
		v1.Post("/requests/stake/{id}/cancel", s.handleCancelStake)
		v1.Post("/requests/unstake", s.handleRequestUnstake)
		v1.Get("/requests/unstake/{id}", s.handleGetUnstakeRequest)
		v1.Post("/requests/unstake/{id}/claim", s.handleClaimUnstake)
		v1.Post("/requests/unstake/{id}/cancel", s.handleCancelUnstake)
		v1.Post("/requests/burn", s.handleRequestBurn)
		v1.Get("/requests/burn/{id}", s.handleGetBurnRequest)
		v1.Post("/requests/burn/{id}/redeem", s.handleRedeemBurn)
		v1.Post("/requests/burn/{id}/cancel", s.handleCancelBurn)

		v1.Get("/tokens/{token}/supply", s.handleTokenSupply)
		v1.Get("/tokens/{token}/balances/{holder}", s.handleTokenBalance)

		v1.Get("/distributors/{batch}", s.handleDistributorBalance)
	})

	return r
}
