package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"faycoin_go/internal/app"
	"faycoin_go/internal/domain"
	"faycoin_go/internal/engine"
	"faycoin_go/internal/event"

	"github.com/spf13/cobra"
)

const flushTimeout = 5 * time.Second

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the current balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContext(cmd, func(b *app.Bootstrap) error {
			fmt.Fprintln(cmd.OutOrStdout(), b.Sync.Balance())
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add [amount]",
	Short: "Add coins to the balance",
	Args:  cobra.ExactArgs(1),
	RunE:  mutation(func(s *engine.Synchronizer, n int64) { s.AddCoins(n) }),
}

var subtractCmd = &cobra.Command{
	Use:   "subtract [amount]",
	Short: "Subtract coins (the balance never goes below zero)",
	Args:  cobra.ExactArgs(1),
	RunE:  mutation(func(s *engine.Synchronizer, n int64) { s.SubtractCoins(n) }),
}

var setCmd = &cobra.Command{
	Use:   "set [value]",
	Short: "Replace the balance",
	Args:  cobra.ExactArgs(1),
	RunE:  mutation(func(s *engine.Synchronizer, n int64) { s.SetBalance(n) }),
}

// parseAmount accepts non-negative integers only.
func parseAmount(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", arg, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", arg)
	}
	return n, nil
}

func mutation(apply func(*engine.Synchronizer, int64)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		n, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		return withContext(cmd, func(b *app.Bootstrap) error {
			out := cmd.OutOrStdout()
			unsubscribe := b.Bus.Subscribe(event.NameCoinChanged, func(ev event.Event) {
				if cc, ok := ev.(event.CoinChanged); ok {
					printGain(out, domain.BalanceChange{NewBalance: cc.NewBalance, OldBalance: cc.OldBalance})
				}
			})
			defer unsubscribe()

			apply(b.Sync, n)
			ctx, cancel := context.WithTimeout(cmdContext(cmd), flushTimeout)
			defer cancel()
			if err := b.Sync.Flush(ctx); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
			printBalance(out, b.Sync.Balance())
			return nil
		})
	}
}

func printBalance(w io.Writer, balance int64) {
	fmt.Fprintf(w, "Balance: %d Fay coins\n", balance)
}

// printGain prints the earned-coins notice; changes that did not gain print nothing.
func printGain(w io.Writer, change domain.BalanceChange) {
	if change.Gained() {
		fmt.Fprintf(w, "+%d Fay coins\n", change.Delta())
	}
}

// withContext runs fn against a fully bootstrapped context and tears it down afterwards.
func withContext(cmd *cobra.Command, fn func(*app.Bootstrap) error) error {
	b := app.NewBootstrap()
	if err := b.Initialize(cmdContext(cmd), configPath); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	runErr := fn(b)
	if err := b.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
