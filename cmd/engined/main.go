package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/darkpool-labs/ciphermatch/params"
	"github.com/darkpool-labs/ciphermatch/pkg/api"
	"github.com/darkpool-labs/ciphermatch/pkg/crypto"
	"github.com/darkpool-labs/ciphermatch/pkg/engine"
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
	"github.com/darkpool-labs/ciphermatch/pkg/storage"
	"github.com/darkpool-labs/ciphermatch/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Engine identity ----
	var signer *crypto.Signer
	if cfg.Engine.EngineKeyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(cfg.Engine.EngineKeyHex)
		if err != nil {
			sugar.Fatalw("engine_key_invalid", "err", err)
		}
	} else {
		signer, err = crypto.GenerateKey()
		if err != nil {
			sugar.Fatalw("engine_key_generation_failed", "err", err)
		}
		sugar.Warnw("engine_key_generated", "address", signer.Address().Hex(),
			"note", "ephemeral devnet key, set ENGINE_KEY for persistence")
	}
	engineAddr := signer.Address()

	// ---- Confidential runtime ----
	sealKey := make([]byte, 32)
	if cfg.Runtime.SealKeyHex != "" {
		sealKey, err = hex.DecodeString(cfg.Runtime.SealKeyHex)
		if err != nil || len(sealKey) != 32 {
			sugar.Fatalw("seal_key_invalid", "err", err, "len", len(sealKey))
		}
	} else {
		if _, err := rand.Read(sealKey); err != nil {
			sugar.Fatalw("seal_key_generation_failed", "err", err)
		}
		sugar.Warn("seal_key_generated - handles will not survive restarts, set SEAL_KEY for persistence")
	}

	rt, err := fhe.NewMock(sealKey, []byte(cfg.Runtime.OracleSeed), engineAddr)
	if err != nil {
		sugar.Fatalw("runtime_init_failed", "err", err)
	}
	sugar.Infow("runtime_initialized", "engine", engineAddr.Hex())

	// ---- Storage ----
	store, err := storage.NewPebbleStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err, "path", cfg.Node.DBPath)
	}
	defer store.Close()
	sugar.Infow("store_opened", "path", cfg.Node.DBPath)

	// ---- Matching engine ----
	eng, err := engine.New(rt, store, engineAddr, engine.Config{
		MaxSlippageBps: cfg.Engine.MaxSlippageBps,
		FillHistoryCap: cfg.Engine.FillHistoryCap,
		Settlement:     common.HexToAddress(cfg.Engine.SettlementAddr),
	}, util.RealClock{}, logger)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(eng, rt, cfg.Node.AdminToken, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("engine_started",
		"api_addr", cfg.Node.APIAddr,
		"max_slippage_bps", cfg.Engine.MaxSlippageBps,
		"fill_history_cap", cfg.Engine.FillHistoryCap)

	<-ctx.Done()
	sugar.Info("shutting down")
}
