package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/InnClaw/InnClaw/internal/bus"
	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/engine"
	"github.com/InnClaw/InnClaw/internal/gateway"
	"github.com/InnClaw/InnClaw/internal/notify"
	"github.com/InnClaw/InnClaw/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reply engine and HTTP gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("🏨 InnClaw Serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewSQLite(filepath.Join(cfg.Paths.DataDir, "messages.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	b := bus.New()
	if slack := notify.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel); slack != nil {
		b.Subscribe(slack.HandleEvent)
		fmt.Println("Slack alerts: ✓ Enabled")
	}
	if kafka := notify.NewKafka(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic); kafka != nil {
		b.Subscribe(kafka.HandleEvent)
		defer kafka.Close()
		fmt.Printf("Kafka events: ✓ Enabled (topic %s)\n", cfg.Notify.KafkaTopic)
	}

	eng := engine.New(config.Load, st, b)
	gw := gateway.New(cfg.Gateway, st, eng, b)

	fmt.Printf("Engine mode: %s\n", cfg.Engine.Mode)
	fmt.Printf("Gateway:     http://%s\n", cfg.Gateway.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Dispatch(ctx) })
	g.Go(func() error { return gw.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("Shutdown complete.")
	return nil
}
