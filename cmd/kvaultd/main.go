package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"kvault/config"
	"kvault/core/events"
	"kvault/native/adapter"
	"kvault/native/batch"
	"kvault/native/minter"
	"kvault/native/registry"
	"kvault/native/router"
	"kvault/native/token"
	"kvault/native/vault"
	"kvault/observability"
	"kvault/observability/logging"
	"kvault/observability/metrics"
	"kvault/observability/otel"
	"kvault/rpc"
	"kvault/state"
	"kvault/storage"
)

const serviceName = "kvaultd"

// escrowAddress derives a deterministic address for an internal engine from
// its label. These addresses never collide with registered vaults because
// the label namespace is private to the daemon.
func escrowAddress(label string) [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("kvault/engine/" + label))
	copy(addr[:], hash[12:])
	return addr
}

func main() {
	configFile := flag.String("config", "./kvault.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithWriter(serviceName, cfg.Environment, logging.RotatingWriter(cfg.LogFile))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: serviceName,
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "kvault"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := buildNode(cfg, state.NewStore(db), logger)
	if err != nil {
		logger.Error("failed to wire engines", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("address", cfg.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

type node struct {
	server *rpc.Server
}

func (n *node) Handler() http.Handler { return n.server.Handler() }

// buildNode wires the engines together: registry and token ledger feed the
// batch ledger, router, staking vault and minter, with the router registered
// as the batch settler and the distributor arena as its distribution bank.
func buildNode(cfg *config.Config, store *state.Store, logger *slog.Logger) (*node, error) {
	reg := registry.New()
	tokens := token.NewLedger()
	emitter := observability.NewMeteredEmitter(events.NoopEmitter{})

	if err := grantRoles(reg, cfg); err != nil {
		return nil, err
	}

	batches := batch.NewLedger(store, reg, cfg.ChainID)
	batches.SetEmitter(emitter)

	routerSelf := escrowAddress("router")
	eng := router.New(store, batches, tokens, reg, routerSelf, cfg.Decimals)
	eng.SetEmitter(emitter)
	batches.SetSettler(routerSelf)

	vaults := vault.New(store, batches, eng, tokens, reg, cfg.Decimals)
	vaults.SetEmitter(emitter)
	eng.SetFeePolicy(vaults)

	arena := minter.NewArena(store)
	arena.SetEmitter(emitter)
	eng.SetDistributionBank(arena)

	minterSelf := escrowAddress("minter")
	minters := minter.New(store, batches, eng, tokens, reg, minterSelf)
	minters.SetEmitter(emitter)
	minters.SetDistributorBank(arena)

	if err := onboardAssets(cfg, reg, tokens, eng, vaults, routerSelf, minterSelf); err != nil {
		return nil, err
	}

	if cfg.SettlementCooldownSeconds > 0 {
		cooldown := time.Duration(cfg.SettlementCooldownSeconds) * time.Second
		if err := configureRouter(eng, cfg, cooldown); err != nil {
			return nil, err
		}
		metrics.Settlement().SetCooldownSeconds(cooldown.Seconds())
	}

	server := rpc.NewServer(rpc.Config{
		Logger:   logger,
		Batches:  batches,
		Router:   eng,
		Vaults:   vaults,
		Minter:   minters,
		Arena:    arena,
		Tokens:   tokens,
		Registry: reg,
	})
	return &node{server: server}, nil
}

func grantRoles(reg *registry.Registry, cfg *config.Config) error {
	grants := []struct {
		addrs []string
		grant func([20]byte) error
	}{
		{cfg.Admins, reg.GrantAdmin},
		{cfg.Relayers, reg.GrantRelayer},
		{cfg.Guardians, reg.GrantGuardian},
		{cfg.Institutions, reg.GrantInstitution},
	}
	for _, group := range grants {
		for _, raw := range group.addrs {
			addr, err := config.ParseAddress(raw)
			if err != nil {
				return err
			}
			if err := group.grant(addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// onboardAssets registers every configured asset with its vault pair,
// authorizes the engine escrow addresses as claim token minters and seeds a
// strategy adapter per vault so virtual balances track pushed deposits.
func onboardAssets(cfg *config.Config, reg *registry.Registry, tokens *token.Ledger, eng *router.Engine, vaults *vault.Engine, routerSelf, minterSelf [20]byte) error {
	admin, hasAdmin := firstAdmin(cfg)
	for _, entry := range cfg.Assets {
		asset, err := config.ParseAddress(entry.Address)
		if err != nil {
			return err
		}
		kToken, err := config.ParseAddress(entry.KToken)
		if err != nil {
			return err
		}
		minterVault, err := config.ParseAddress(entry.MinterVault)
		if err != nil {
			return err
		}
		stakingVault, err := config.ParseAddress(entry.StakingVault)
		if err != nil {
			return err
		}

		if err := reg.RegisterAsset(asset, kToken); err != nil {
			return err
		}
		if err := reg.RegisterVault(minterVault, asset, registry.VaultTypeMinter); err != nil {
			return err
		}
		if err := reg.RegisterVault(stakingVault, asset, registry.VaultTypeStaking); err != nil {
			return err
		}

		// The router adjusts claim token supply at settlement, the minter
		// issues and redeems claim tokens, and the staking vault mints its
		// own share token.
		for _, escrow := range [][20]byte{routerSelf, minterSelf} {
			if err := tokens.AuthorizeMinter(kToken, escrow); err != nil {
				return err
			}
		}
		if err := tokens.AuthorizeMinter(stakingVault, stakingVault); err != nil {
			return err
		}

		maxMint, err := config.ParseAmount(entry.MaxMintPerBatch)
		if err != nil {
			return err
		}
		if maxMint.Sign() > 0 {
			reg.SetMaxMintPerBatch(asset, maxMint)
		}
		maxBurn, err := config.ParseAmount(entry.MaxBurnPerBatch)
		if err != nil {
			return err
		}
		if maxBurn.Sign() > 0 {
			reg.SetMaxBurnPerBatch(asset, maxBurn)
		}
		maxTotal, err := config.ParseAmount(entry.MaxTotalAssets)
		if err != nil {
			return err
		}
		if maxTotal.Sign() > 0 {
			reg.SetMaxTotalAssets(stakingVault, maxTotal)
		}

		if hasAdmin {
			for _, vaultAddr := range [][20]byte{minterVault, stakingVault} {
				if err := eng.RegisterAdapter(admin, vaultAddr, adapter.NewStrategyAdapter(asset)); err != nil {
					return err
				}
			}
			feeCfg := vault.FeeConfig{
				ManagementFeeBps:  entry.Fees.ManagementFeeBps,
				PerformanceFeeBps: entry.Fees.PerformanceFeeBps,
				HurdleRateBps:     entry.Fees.HurdleRateBps,
				HardHurdle:        entry.Fees.HardHurdle,
			}
			if err := vaults.SetFeeConfig(admin, stakingVault, feeCfg); err != nil {
				return err
			}
		}
	}
	return nil
}

func configureRouter(eng *router.Engine, cfg *config.Config, cooldown time.Duration) error {
	admin, ok := firstAdmin(cfg)
	if !ok {
		return nil
	}
	if err := eng.SetCooldown(admin, cooldown); err != nil {
		return err
	}
	return eng.SetYieldTolerance(admin, cfg.YieldToleranceBps)
}

func firstAdmin(cfg *config.Config) ([20]byte, bool) {
	if len(cfg.Admins) == 0 {
		return [20]byte{}, false
	}
	addr, err := config.ParseAddress(cfg.Admins[0])
	if err != nil {
		return [20]byte{}, false
	}
	return addr, true
}
