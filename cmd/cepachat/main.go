package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"CepaChat/internal/chat"
	"CepaChat/internal/chatbot"
	"CepaChat/internal/client"
	"CepaChat/internal/config"
	"CepaChat/internal/store"
	"CepaChat/internal/telemetry"
	"CepaChat/internal/tui"
)

const title = "CEPA Assistant"

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	meter   metric.Meter
	client  *client.Client
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	c, err := client.New(client.Options{
		BaseURL:  cfg.APIURL,
		Timeout:  cfg.HTTPTimeout,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
		CacheTTL: cfg.CacheTTL,
	})
	if err != nil {
		cleanup()
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}
	logger.Info("starting", "api_url", cfg.APIURL, "view", cfg.View, "store", cfg.StoreKind())

	return &app{
		cfg:     cfg,
		logger:  logger,
		meter:   meter,
		client:  c,
		closers: []func(){cleanup, func() { logFile.Close() }},
	}, nil
}

func (a *app) Close() {
	for _, fn := range a.closers {
		fn()
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "cepachat",
		Short:         "Chat with the CEPA assistant from your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Base URL of the chat backend")
	flags.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout (0 = none)")
	flags.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for logs, traces and metrics")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	local := root.Flags()
	local.StringVar(&cfg.View, "view", cfg.View, "Chat view (page|widget)")
	local.StringVar(&cfg.Store, "store", cfg.Store, "Session store for the page view (memory|file|sqlite|redis)")
	local.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "File or SQLite path for the session store")
	local.StringVar(&cfg.StoreKey, "store-key", cfg.StoreKey, "Key under which the session id is stored")
	local.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the redis store")
	local.StringVar(&cfg.SessionID, "session-id", cfg.SessionID, "Resume an existing session by ID")
	local.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Messages kept in the page view (0 = all)")
	local.BoolVar(&cfg.Plain, "plain", cfg.Plain, "Use the line-oriented chat instead of the terminal UI")

	root.AddCommand(newSessionsCmd(cfg))
	return root
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	conv := chat.New(a.client, chat.Options{
		MaxMessages: cfg.MaxMessages(),
		Pointer:     st,
		Logger:      a.logger,
		Meter:       a.meter,
	})

	switch {
	case cfg.SessionID != "":
		if err := conv.Resume(ctx, cfg.SessionID); err != nil {
			return fmt.Errorf("failed to resume session %s: %w", cfg.SessionID, err)
		}
	case cfg.View == config.ViewPage:
		conv.Restore(ctx)
	}

	if !cfg.Plain && isTerminal(in) && isTerminal(out) {
		p := tea.NewProgram(tui.New(ctx, conv, title), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("chat window failed: %w", err)
		}
		return nil
	}

	return chatbot.NewChatBot(conv, a.client, a.logger, in, out, title).Run(ctx)
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
