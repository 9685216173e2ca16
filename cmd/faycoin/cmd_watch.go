package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"faycoin_go/internal/app"
	"faycoin_go/internal/domain"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every balance change until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

// pageListener renders balance changes the way the task page does: the
// new total on every change and a gain notice when coins were earned.
type pageListener struct {
	out io.Writer
}

func (p *pageListener) OnBalanceChanged(newBalance, oldBalance int64) {
	printBalance(p.out, newBalance)
	printGain(p.out, domain.BalanceChange{NewBalance: newBalance, OldBalance: oldBalance})
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := app.NewBootstrap()
	if err := b.Initialize(ctx, configPath); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer b.Close()

	out := cmd.OutOrStdout()
	printBalance(out, b.Sync.Balance())

	listener := &pageListener{out: out}
	b.Sync.AddListener(listener)
	defer b.Sync.RemoveListener(listener)

	if !b.Sync.Replicating() {
		fmt.Fprintln(os.Stderr, "warning: no broadcast channel, only local changes will show")
	}

	<-ctx.Done()
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
