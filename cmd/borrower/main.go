package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/config"
	"fyBorrow/internal/contracts"
	"fyBorrow/internal/metrics"
	"fyBorrow/internal/quote"
	"fyBorrow/internal/revert"
)

func main() {
	root := &cobra.Command{
		Use:          "borrower",
		Short:        "Fixed-rate borrow client for fyToken pools",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "RPC URL")
	flags.Uint64("chain-id", 0, "required chain id, 0 accepts any")
	flags.String("pool", "", "fyToken pool address")
	flags.String("helper", "", "position helper address")
	flags.Uint8("base-decimals", 18, "base token decimals")
	flags.Uint16("slippage-bps", 50, "swap slippage tolerance in basis points")
	flags.Uint64("log-batch-size", 2000, "blocks per event log query")
	flags.Int("max-retries", 5, "maximum retry attempts for reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newQuoteCmd(), newBorrowCmd(), newClassifyCmd(), newMonitorCmd(), newHistoryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the collaborators shared by the online commands.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	client     *chain.Client
	pool       common.Address
	helper     common.Address
	classifier *revert.Classifier
	poolReader *contracts.PoolReader
	engine     *quote.Engine
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	pool, err := chain.ParseAddress(cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	var helper common.Address
	if cfg.Helper != "" {
		if helper, err = chain.ParseAddress(cfg.Helper); err != nil {
			return nil, fmt.Errorf("helper: %w", err)
		}
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		PrivateKey:   cfg.PrivateKey,
		LogBatchSize: cfg.LogBatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	classifier, err := revert.NewClassifier(pool, helper)
	if err != nil {
		client.Close()
		return nil, err
	}
	sampler := quote.NewCurveSampler(client, pool, logger)
	engine := quote.NewEngine(sampler, classifier,
		quote.WithLogger(logger),
		quote.WithObserver(metrics.Borrower()),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		pool:       pool,
		helper:     helper,
		classifier: classifier,
		poolReader: contracts.NewPoolReader(client, pool),
		engine:     engine,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
	_ = a.logger.Sync()
}

func (a *app) requiredChainID() *big.Int {
	if a.cfg.ChainID == 0 {
		return nil
	}
	return new(big.Int).SetUint64(a.cfg.ChainID)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
