package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fyBorrow/internal/borrow"
	"fyBorrow/internal/chain"
	"fyBorrow/internal/contracts"
	"fyBorrow/internal/journal"
	"fyBorrow/internal/metrics"
	"fyBorrow/internal/monitor"
	"fyBorrow/internal/position"
)

func newBorrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Deposit collateral, mint fyToken debt and sell it for base",
		RunE:  runBorrow,
	}
	f := cmd.Flags()
	f.String("private-key", "", "hex private key of the borrower")
	f.String("collateral-token", "", "collateral ERC20 address")
	f.String("series-id", "", "series id (bytes6 hex)")
	f.String("ilk-id", "", "collateral id (bytes6 hex)")
	f.Uint8("collateral-decimals", 18, "collateral decimals, overridden by the token when readable")
	f.String("store", "file", "position store (memory, file, leveldb, postgres)")
	f.String("store-path", "./data/positions.json", "file or leveldb path")
	f.String("pg-dsn", "", "Postgres DSN for the postgres store")
	f.String("journal", "./data/flow.jsonl", "flow journal JSONL path, empty disables")
	f.Duration("monitor-interval", 0, "pool check interval while borrowing, 0 disables")
	f.String("collateral", "", "collateral amount to deposit")
	f.String("amount", "", "base amount to receive")
	return cmd
}

func runBorrow(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	token, err := chain.ParseAddress(cfg.CollateralToken)
	if err != nil {
		return fmt.Errorf("collateral token: %w", err)
	}
	series, err := chain.ParseBytes6(cfg.SeriesID)
	if err != nil {
		return fmt.Errorf("series id: %w", err)
	}
	ilk, err := chain.ParseBytes6(cfg.IlkID)
	if err != nil {
		return fmt.Errorf("ilk id: %w", err)
	}
	if a.helper == (common.Address{}) {
		return fmt.Errorf("helper address is required")
	}

	tokens := contracts.NewTokenReader(a.client, nil, a.logger)
	spender, err := tokens.Join(ctx, a.helper, ilk)
	if err != nil {
		return fmt.Errorf("resolve collateral join: %w", err)
	}
	fyToken, err := a.poolReader.FYToken(ctx)
	if err != nil {
		return fmt.Errorf("resolve pool fyToken: %w", err)
	}

	collateralDecimals := cfg.CollateralDecimals
	if meta, err := tokens.Meta(ctx, token); err == nil {
		if meta.Decimals != collateralDecimals {
			a.logger.Info("using on-chain collateral decimals", zap.String("symbol", meta.Symbol), zap.Uint8("decimals", meta.Decimals))
		}
		collateralDecimals = meta.Decimals
	} else {
		a.logger.Warn("collateral metadata unavailable", zap.Error(err))
	}

	session, err := loadSession(ctx, a, tokens, token, spender)
	if err != nil {
		return err
	}

	store, closeStore, err := position.Open(ctx, position.OpenConfig{
		Backend: position.Backend(cfg.Store),
		Path:    cfg.StorePath,
		DSN:     cfg.PGDSN,
	})
	if err != nil {
		return fmt.Errorf("open position store: %w", err)
	}
	defer closeStore()

	observers := []borrow.TransitionObserver{metrics.Borrower()}
	if cfg.Journal != "" {
		observers = append(observers, journal.New(cfg.Journal, a.logger))
	}

	orch, err := borrow.New(borrow.Config{
		RequiredChainID:    a.requiredChainID(),
		Pool:               a.pool,
		Helper:             a.helper,
		CollateralToken:    token,
		FYToken:            fyToken,
		Spender:            spender,
		SeriesID:           series,
		IlkID:              ilk,
		BaseDecimals:       cfg.BaseDecimals,
		CollateralDecimals: collateralDecimals,
		SlippageBps:        cfg.SlippageBps,
	}, a.client, a.poolReader, a.engine, a.classifier, store,
		borrow.WithLogger(a.logger),
		borrow.WithObservers(observers...),
	)
	if err != nil {
		return err
	}

	if interval, _ := cmd.Flags().GetDuration("monitor-interval"); interval > 0 {
		m := monitor.New(a.poolReader, a.pool.Hex(), interval, metrics.Borrower(), a.logger)
		stopMonitor := m.Start(ctx)
		defer stopMonitor()
	}

	go func() {
		<-ctx.Done()
		orch.Abandon()
	}()

	collateral, _ := cmd.Flags().GetString("collateral")
	amount, _ := cmd.Flags().GetString("amount")
	out := cmd.OutOrStdout()
	res, err := orch.SubmitBorrow(ctx, borrow.Params{CollateralAmount: collateral, BorrowAmount: amount}, session, func(s borrow.FlowState) {
		if s.LastTxRef != "" {
			fmt.Fprintf(out, "%-22s last tx %s\n", s.Step, s.LastTxRef)
			return
		}
		fmt.Fprintf(out, "%s\n", s.Step)
	})
	if err != nil {
		var stepErr *borrow.StepError
		if errors.As(err, &stepErr) {
			if hint := orch.ClassifyFailure(err); hint != nil {
				a.logger.Info("revert hint", zap.String("kind", string(hint.Kind)))
			}
			return fmt.Errorf("%s", stepErr.Message())
		}
		return err
	}

	fmt.Fprintf(out, "position %s\nfyToken debt %s\nbase min out %s\nlast tx %s\n",
		res.PositionID.Hex(),
		formatU256(res.Quote.InputAmount, cfg.BaseDecimals),
		borrow.FormatAmount(res.MinBaseOut, cfg.BaseDecimals),
		res.State.LastTxRef,
	)
	return nil
}

func loadSession(ctx context.Context, a *app, tokens *contracts.TokenReader, token, spender common.Address) (*borrow.Session, error) {
	session := &borrow.Session{Signer: a.client.Signer()}
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	session.ChainID = chainID
	if session.Signer == nil {
		return session, nil
	}

	if balance, err := tokens.BalanceOf(ctx, token, *session.Signer); err == nil {
		session.CollateralBalance = balance
	} else {
		a.logger.Warn("collateral balance unavailable", zap.Error(err))
	}
	if allowance, err := tokens.Allowance(ctx, token, *session.Signer, spender); err == nil {
		session.Allowance = allowance
	} else {
		a.logger.Warn("allowance unavailable, approval will be sent", zap.Error(err))
	}
	return session, nil
}
