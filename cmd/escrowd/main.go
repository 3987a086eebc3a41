package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zenswap/escrowd/params"
	"github.com/zenswap/escrowd/pkg/api"
	"github.com/zenswap/escrowd/pkg/escrow"
	"github.com/zenswap/escrowd/pkg/escrow/vault"
	"github.com/zenswap/escrowd/pkg/storage"
	"github.com/zenswap/escrowd/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.API.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.API.LogFile)

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.DBPath, "err", err)
	}
	defer store.Close()

	ledger := vault.NewLedger()

	engine := escrow.NewEngine(escrow.Config{
		MinLockTime: cfg.Escrow.MinLockTime,
		FlatFee:     cfg.Escrow.FlatFee,
		Admin:       cfg.Escrow.Admin,
		SystemOwner: cfg.Escrow.SystemOwner,
	}, ledger, store, util.RealClock{}, nil, sugar)

	// Rebuild the book from Pebble and seed the ledger's custody pool so the
	// restored trades stay refundable and settleable.
	state, ok, err := store.LoadState()
	if err != nil {
		sugar.Fatalw("state_load_failed", "err", err)
	}
	if ok {
		trades, err := store.LoadTrades()
		if err != nil {
			sugar.Fatalw("trades_load_failed", "err", err)
		}
		for _, t := range trades {
			switch t.Offered.Kind {
			case escrow.Native:
				ledger.SeedNativeCustody(t.Offered.Amount)
			case escrow.Fungible:
				ledger.SeedTokenCustody(t.Offered.Contract, t.Offered.Amount)
			case escrow.NFTSet:
				ledger.SeedItemCustody(t.Offered.Contract, t.ItemIDs)
			}
		}
		if state.AvailableFees != nil {
			ledger.SeedNativeCustody(state.AvailableFees)
		}
		engine.Restore(state, trades)
	}

	server := api.NewServer(engine, ledger, sugar)
	engine.SetSink(server)

	errc := make(chan error, 1)
	go func() { errc <- server.Start(cfg.API.Listen) }()

	sugar.Infow("escrowd_started",
		"listen", cfg.API.Listen,
		"admin", cfg.Escrow.Admin.Hex(),
		"system_owner", cfg.Escrow.SystemOwner.Hex(),
		"flat_fee", cfg.Escrow.FlatFee.String(),
		"min_lock_time", cfg.Escrow.MinLockTime)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		sugar.Infow("shutting_down", "signal", sig.String())
	case err := <-errc:
		sugar.Errorw("api_server_stopped", "err", err)
	}
}
