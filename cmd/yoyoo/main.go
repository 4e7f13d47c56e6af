// Command yoyoo runs the chat-driven task orchestration gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yoyoo-ai/yoyoo/internal/chat"
	"github.com/yoyoo-ai/yoyoo/internal/docstore"
	"github.com/yoyoo-ai/yoyoo/internal/gate"
	"github.com/yoyoo-ai/yoyoo/internal/intent"
	"github.com/yoyoo-ai/yoyoo/internal/model"
	"github.com/yoyoo-ai/yoyoo/internal/profile"
	"github.com/yoyoo-ai/yoyoo/internal/server"
	"github.com/yoyoo-ai/yoyoo/internal/team"
)

const version = "0.2.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "yoyoo",
		Short: "Chat gateway that turns conversations into gated task executions",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("yoyoo %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	p, err := profile.Load()
	if err != nil {
		return errors.Wrap(err, "load profile")
	}

	slog.Info("starting yoyoo gateway",
		"version", version,
		"addr", p.ListenAddr(),
		"data", p.Data,
		"dispatch_mode", p.DispatchMode,
		"backend", p.BackendBaseURL,
	)

	gateStore := docstore.New(p.GatePath(), model.EmptyGateDocument)
	chatStore := chat.NewStore(docstore.New(p.ChatPath(), model.EmptyChatDocument))
	executionGate := gate.New(gateStore, gate.Config{
		MaxRunningPerUser: p.MaxRunningPerUser,
		MaxRunningGlobal:  p.MaxRunningGlobal,
		MaxQueuePerUser:   p.MaxQueuePerUser,
		RunningTTL:        p.RunningTTL,
	})

	rules := intent.DefaultRules()
	if p.IntentRules != "" {
		rules, err = intent.LoadRules(p.IntentRules)
		if err != nil {
			slog.Warn("intent rules file invalid, using defaults", "path", p.IntentRules, "error", err)
		}
	}
	classifier := intent.NewClassifier(rules)

	teamClient := team.NewClient(team.Config{
		BaseURL:       p.BackendBaseURL,
		Timeout:       p.BackendTimeout,
		HealthTimeout: p.BackendHealthTimeout,
	})

	srv := server.New(p, executionGate, chatStore, classifier, teamClient)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if p.IntentRules != "" {
		go func() {
			if err := intent.Watch(ctx, classifier, p.IntentRules); err != nil && ctx.Err() == nil {
				slog.Warn("intent rules watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
	}
	return nil
}
