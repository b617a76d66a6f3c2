package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/dotsetgreg/wargabot/pkg/agent"
	"github.com/dotsetgreg/wargabot/pkg/bus"
	"github.com/dotsetgreg/wargabot/pkg/channels"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/gateway"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/store"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.debug {
		logger.SetLevel(logger.DEBUG)
	}
	return cfg, nil
}

func executeCLI() error {
	return buildRootCommand(true).Execute()
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Citizen services assistant for chat channels",
		Long: strings.TrimSpace(`wargabot answers citizens on chat channels: it files complaints,
starts service requests, reports case status and answers questions about
public services.

Run the gateway for Discord and HTTP traffic, or chat locally to try it out.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Config file (JSON or YAML)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newChatCommand(opts))
	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		root.AddCommand(newDocsCommand(func() *cobra.Command { return buildRootCommand(false) }))
	}
	return root
}

func newOnboardCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Write a default config file",
		Example: "  wargabot onboard\n  wargabot onboard --config ./wargabot.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", opts.configPath)
			}
			if err := config.SaveConfig(opts.configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", opts.configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Add provider credentials (or set WARGABOT_PROVIDERS_BUILTIN_KEYS) before starting.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		message string
		user    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Example: strings.Join([]string{
			"  wargabot chat",
			"  wargabot chat --user warga-1 --message \"cek LAP-20251201-001\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			loop := agent.NewLoop(bus.NewMessageBus(), svc.orch)
			if strings.TrimSpace(message) != "" {
				fmt.Fprintln(cmd.OutOrStdout(), loop.ProcessDirect(ctx, "cli", user, message))
				return nil
			}
			return interactiveChat(ctx, cmd.OutOrStdout(), loop, user)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	cmd.Flags().StringVarP(&user, "user", "u", "cli-user", "Citizen identifier for the session")
	return cmd
}

func interactiveChat(ctx context.Context, out io.Writer, loop *agent.Loop, user string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "anda> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".wargabot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "Type a message, /reset to start over, or exit to quit.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if reply := loop.ProcessDirect(ctx, "cli", user, line); reply != "" {
			fmt.Fprintf(out, "\nbot> %s\n\n", reply)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func newGatewayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "gateway",
		Short:   "Run the HTTP gateway and chat channels",
		Long:    "Serve /v1/turns over HTTP, run enabled chat channels and drain in-flight turns on shutdown.",
		Example: "  wargabot gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runGateway(cmd.OutOrStdout(), cfg)
		},
	}
}

func runGateway(out io.Writer, cfg *config.Config) error {
	svc, err := buildServices(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	manager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return err
	}
	server, err := gateway.New(svc.orch, gateway.OptionsFromConfig(cfg.Gateway))
	if err != nil {
		return err
	}
	loop := agent.NewLoop(msgBus, svc.orch)

	// Turns run on loopCtx; it outlives the signal so draining can finish them.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()

	if err := manager.StartAll(loopCtx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	enabled := manager.GetEnabledChannels()
	if len(enabled) == 0 {
		enabled = []string{"none"}
	}
	fmt.Fprintf(out, "Gateway listening on %s\n", server.Addr())
	fmt.Fprintf(out, "Channels: %s\n", strings.Join(enabled, ", "))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.ErrorCF("gateway", "Gateway server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	fmt.Fprintln(out, "Draining...")
	server.Drain()
	loop.Stop()
	if err := manager.StopAll(context.Background()); err != nil {
		logger.WarnCF("channels", "Channel shutdown error", map[string]interface{}{"error": err.Error()})
	}
	drained := svc.orch.Drain(context.Background(), cfg.DrainTimeout(), cfg.DrainPoll())
	stopLoop()
	<-loopDone

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Gateway shutdown error", map[string]interface{}{"error": err.Error()})
	}
	if !drained {
		fmt.Fprintln(out, "Stopped with turns still in flight")
		return nil
	}
	fmt.Fprintln(out, "Gateway stopped")
	return nil
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, storage and gateway status",
		Example: "  wargabot status\n  wargabot status --url http://127.0.0.1:18790",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), opts.configPath, cfg, url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Gateway base URL to query for live stats")
	return cmd
}

func printStatus(ctx context.Context, out io.Writer, configPath string, cfg *config.Config, url string) error {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "missing"
	}

	fmt.Fprintf(out, "%s %s\n\n", appName, formatVersion())
	_, err := os.Stat(configPath)
	fmt.Fprintf(out, "Config:      %s (%s)\n", configPath, mark(err == nil))
	fmt.Fprintf(out, "Credentials: %d\n", len(cfg.Providers.Credentials))
	fmt.Fprintf(out, "Models:      %s\n", strings.Join(cfg.ModelList(), ", "))
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Valid:       no\n  %s\n", strings.ReplaceAll(err.Error(), "\n", "\n  "))
	} else {
		fmt.Fprintln(out, "Valid:       yes")
	}

	path := cfg.StoragePath()
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(out, "Storage:     %s (not initialized)\n", path)
	} else if db, err := store.Open(path); err != nil {
		fmt.Fprintf(out, "Storage:     %s (%v)\n", path, err)
	} else {
		v, dirty, verr := store.Version(db)
		_ = db.Close()
		switch {
		case verr != nil:
			fmt.Fprintf(out, "Storage:     %s (%v)\n", path, verr)
		case dirty:
			fmt.Fprintf(out, "Storage:     %s (schema v%d, dirty)\n", path, v)
		default:
			fmt.Fprintf(out, "Storage:     %s (schema v%d)\n", path, v)
		}
	}
	fmt.Fprintf(out, "Discord:     %s\n", map[bool]string{true: "enabled", false: "disabled"}[cfg.Channels.Discord.Enabled])

	if url == "" {
		return nil
	}
	stats, err := fetchStats(ctx, url, cfg.Gateway)
	if err != nil {
		return fmt.Errorf("query gateway: %w", err)
	}
	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nGateway stats:\n%s\n", b)
	return nil
}

func fetchStats(ctx context.Context, baseURL string, gc config.GatewayConfig) (agent.Stats, error) {
	var stats agent.Stats
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/v1/stats", nil)
	if err != nil {
		return stats, err
	}
	if gc.JWTSecret != "" {
		token, err := gateway.IssueToken([]byte(gc.JWTSecret), gc.JWTIssuer, "cli", time.Minute)
		if err != nil {
			return stats, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("unexpected status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the storage schema",
	}
	withDB := func(fn func(cmd *cobra.Command, path string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return fn(cmd, cfg.StoragePath())
		}
	}

	root.AddCommand(&cobra.Command{
		Use:     "up",
		Short:   "Apply all pending migrations",
		Example: "  wargabot migrate up",
		RunE: withDB(func(cmd *cobra.Command, path string) error {
			db, err := store.OpenAndMigrate(path)
			if err != nil {
				return err
			}
			defer db.Close()
			v, _, err := store.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", v)
			return nil
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:     "down",
		Short:   "Roll back every migration",
		Example: "  wargabot migrate down",
		RunE: withDB(func(cmd *cobra.Command, path string) error {
			db, err := store.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Down(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema rolled back")
			return nil
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:     "version",
		Short:   "Print the current schema version",
		Example: "  wargabot migrate version",
		RunE: withDB(func(cmd *cobra.Command, path string) error {
			db, err := store.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			v, dirty, err := store.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		}),
	})
	return root
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Issue a bearer token for the gateway API",
		Example: "  wargabot token --subject web-portal --ttl 720h",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Gateway.JWTSecret == "" {
				return fmt.Errorf("gateway.jwt_secret is not configured")
			}
			token, err := gateway.IssueToken([]byte(cfg.Gateway.JWTSecret), cfg.Gateway.JWTIssuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "web", "Integration the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  wargabot version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
