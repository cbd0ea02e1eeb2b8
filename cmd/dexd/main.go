package main

import (
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Acero160/DEX/params"
	"github.com/Acero160/DEX/pkg/api"
	"github.com/Acero160/DEX/pkg/dex"
	"github.com/Acero160/DEX/pkg/dex/store"
	"github.com/Acero160/DEX/pkg/token"
	"github.com/Acero160/DEX/pkg/util"
)

// Devnet custody address. On a real deployment custody is the exchange
// contract itself; here it is just the address tokens settle against.
var custody = common.HexToAddress("0xDEC5000000000000000000000000000000000001")

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.Open(filepath.Join(cfg.Node.DataDir, "dex.db"))
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	bank := token.NewBank()

	ex, err := dex.New(dex.Options{
		QuoteTicker: cfg.Exchange.QuoteTicker,
		Admin:       cfg.Exchange.Admin,
		Custody:     custody,
		Tokens:      bank,
		Store:       st,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("build exchange", zap.Error(err))
	}

	if cfg.Node.DevSeed {
		seedDevnet(ex, bank, cfg, logger)
	}

	server := api.NewServer(ex, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Node.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server exited", zap.Error(err))
	}
}

// seedDevnet lists DAI/DOT/SOL against the in-memory bank and funds two
// test traders at fixed addresses.
func seedDevnet(ex *dex.Exchange, bank *token.Bank, cfg params.Config, logger *zap.Logger) {
	var (
		dai = common.HexToAddress("0xDA10000000000000000000000000000000000001")
		dot = common.HexToAddress("0xD070000000000000000000000000000000000001")
		sol = common.HexToAddress("0x5010000000000000000000000000000000000001")

		trader1 = common.HexToAddress("0x1000000000000000000000000000000000000001")
		trader2 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	)

	for ticker, tok := range map[string]common.Address{"DAI": dai, "DOT": dot, "SOL": sol} {
		if err := ex.AddInstrument(cfg.Exchange.Admin, ticker, tok); err != nil {
			logger.Warn("seed instrument", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		// 10k units at 18 decimals for each trader, fully approved.
		grant, _ := new(big.Int).SetString("10000000000000000000000", 10)
		for _, trader := range []common.Address{trader1, trader2} {
			bank.Mint(tok, trader, grant)
			bank.Approve(tok, trader, custody, grant)
		}
	}

	logger.Info("devnet seeded",
		zap.String("quote", cfg.Exchange.QuoteTicker),
		zap.String("trader1", trader1.Hex()),
		zap.String("trader2", trader2.Hex()))
}
