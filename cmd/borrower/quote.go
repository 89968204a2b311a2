package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fyBorrow/internal/borrow"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the fyToken needed to receive an amount of base",
		RunE:  runQuote,
	}
	cmd.Flags().String("amount", "", "desired base amount, e.g. 1000.5")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	amount, _ := cmd.Flags().GetString("amount")
	desired, err := borrow.ParseAmount(amount, a.cfg.BaseDecimals)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	state, err := a.poolReader.ReadState(ctx)
	if err != nil {
		return fmt.Errorf("read pool state: %w", err)
	}
	q, err := a.engine.QuoteMinimumInput(ctx, desired, state)
	if err != nil {
		return err
	}

	a.logger.Info("quote",
		zap.String("pool", a.pool.Hex()),
		zap.String("desired", desired.String()),
		zap.String("fy_in", q.InputAmount.ToBig().String()),
		zap.String("base_out", q.OutputAmount.ToBig().String()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "fyToken in: %s\nbase out:   %s\n",
		formatU256(q.InputAmount, a.cfg.BaseDecimals), formatU256(q.OutputAmount, a.cfg.BaseDecimals))
	return nil
}

// fyToken shares the base token's decimals.
func formatU256(v *uint256.Int, decimals uint8) string {
	return borrow.FormatAmount(v.ToBig(), decimals)
}
