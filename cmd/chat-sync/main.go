package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/alexjbarnes/chat-sync/internal/chat"
	"github.com/alexjbarnes/chat-sync/internal/config"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/mcpserver"
	"github.com/alexjbarnes/chat-sync/internal/metrics"
	"github.com/alexjbarnes/chat-sync/internal/server"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/alexjbarnes/chat-sync/internal/tokensource"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

func main() {
	// Subcommands are handled before config loading.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-key":
			hashKey()
			return
		case "dump":
			if err := dump(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}

			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashKey reads an MCP API key from stdin and prints its bcrypt hash
// for MCP_API_KEY_HASHES.
func hashKey() {
	fmt.Fprint(os.Stderr, "Enter API key: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword(scanner.Bytes(), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}

// dump prints the local mirror as YAML.
func dump() error {
	path := ""
	if len(os.Args) > 2 {
		path = os.Args[2]
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		path = cfg.StatePath
	}

	if path == "" {
		return errors.New("no store path: pass one or enable local storage")
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Dump()
	if err != nil {
		return fmt.Errorf("reading store: %w", err)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	return enc.Close()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("chat-sync starting",
		slog.String("version", Version),
		slog.Bool("local_storage", cfg.LocalStorageEnabled),
		slog.Bool("active", cfg.ActiveMode),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()

	client, err := chat.New(chat.Options{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		WSURL:               cfg.WSURL,
		Store:               st,
		LocalStorageEnabled: cfg.LocalStorageEnabled,
		Active:              cfg.ActiveMode,
		QueueMaxAge:         cfg.QueueMaxAge,
		WaitTimeout:         cfg.WaiterTimeout,
		Metrics:             m,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("creating chat client: %w", err)
	}
	defer client.Close()

	g, gctx := errgroup.WithContext(ctx)

	if err := connect(gctx, g, cfg, client, logger); err != nil {
		return err
	}

	logger.Info("connected",
		slog.String("user_id", client.CurrentUserID()),
		slog.String("connection_id", client.ConnectionID()),
	)

	if cfg.EnableMCP || cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runHTTP(gctx, cfg, client, m, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		return nil
	})

	return g.Wait()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.LocalStorageEnabled {
		return store.OpenEphemeral()
	}

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	return st, nil
}

// connect picks the identity source from config. A token file is also
// watched for rotations.
func connect(ctx context.Context, g *errgroup.Group, cfg *config.Config, client *chat.Client, logger *slog.Logger) error {
	info := auth.UserInfo{ID: cfg.UserID, Name: cfg.UserName}

	switch {
	case cfg.Guest:
		if err := client.ConnectGuestUser(ctx, info); err != nil {
			return fmt.Errorf("connecting guest user: %w", err)
		}

	case cfg.TokenFile != "":
		file := tokensource.NewFile(cfg.TokenFile, logger.With(slog.String("component", "tokensource")))

		tok, err := file.Read()
		if err != nil {
			return err
		}

		if info.ID == "" {
			info.ID = tok.UserID
		}

		if err := client.ConnectUser(ctx, info, file.Provider()); err != nil {
			return fmt.Errorf("connecting user: %w", err)
		}

		g.Go(func() error {
			err := file.Watch(ctx, client.SetToken)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})

	default:
		tok, err := auth.ParseToken(cfg.Token)
		if err != nil {
			return err
		}

		if info.ID == "" {
			info.ID = tok.UserID
		}

		provider := func(context.Context) (auth.Token, error) { return tok, nil }
		if err := client.ConnectUser(ctx, info, provider); err != nil {
			return fmt.Errorf("connecting user: %w", err)
		}
	}

	return nil
}

// runHTTP serves /health, /metrics and, when enabled, the MCP endpoint.
func runHTTP(ctx context.Context, cfg *config.Config, client *chat.Client, m *metrics.Metrics, logger *slog.Logger) error {
	httpLogger := logger.With(slog.String("service", "http"))

	muxCfg := server.MuxConfig{
		Metrics: m,
		Status:  func() connection.Status { return client.ConnectionStatus() },
		Logger:  httpLogger,
	}

	addr := cfg.MetricsAddr

	if cfg.EnableMCP {
		keys, err := cfg.ParseMCPAPIKeyHashes()
		if err != nil {
			return fmt.Errorf("parsing MCP API keys: %w", err)
		}

		mcpServer := mcp.NewServer(
			&mcp.Implementation{Name: "chat-sync-mcp", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(mcpServer, client)

		muxCfg.Keys = keys
		muxCfg.MCPHandler = mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)
		addr = cfg.MCPListenAddr
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewMux(muxCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	httpLogger.Info("starting HTTP server",
		slog.String("listen", addr),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		httpLogger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}
