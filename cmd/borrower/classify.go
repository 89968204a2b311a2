package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/revert"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <revert data | error message>",
		Short: "Decode a revert payload or error message against the pool and helper errors",
		Args:  cobra.ExactArgs(1),
		RunE:  runClassify,
	}
	cmd.Flags().Bool("message", false, "treat the argument as an error message even if it is hex")
	return cmd
}

// rawRevert presents a pasted payload the way rpc errors carry it.
type rawRevert struct {
	data string
}

func (e *rawRevert) Error() string          { return "execution reverted" }
func (e *rawRevert) ErrorData() interface{} { return e.data }

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var pool, helper common.Address
	if cfg.Pool != "" {
		if pool, err = chain.ParseAddress(cfg.Pool); err != nil {
			return fmt.Errorf("pool: %w", err)
		}
	}
	if cfg.Helper != "" {
		if helper, err = chain.ParseAddress(cfg.Helper); err != nil {
			return fmt.Errorf("helper: %w", err)
		}
	}
	classifier, err := revert.NewClassifier(pool, helper)
	if err != nil {
		return err
	}

	input := strings.TrimSpace(args[0])
	asMessage, _ := cmd.Flags().GetBool("message")
	var failure error
	if _, decodeErr := hexutil.Decode(input); decodeErr == nil && !asMessage {
		failure = &rawRevert{data: input}
	} else {
		failure = errors.New(input)
	}

	cl := classifier.Classify(failure)
	out, err := json.MarshalIndent(struct {
		revert.Classification
		Description string `json:"description"`
	}{cl, cl.Describe()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
