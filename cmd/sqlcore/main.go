// Command sqlcore runs the SQL generation core's HTTP server, grounded on
// blackcoderx-falcon/cmd/falcon/main.go's cobra root-command-plus-subcommand
// layout, adapted from a TUI/CLI tool's command set to a long-lived
// service's serve/healthcheck/config subcommands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/agentpkg"
	"github.com/mptyl/thoth-sqlcore/internal/config"
	"github.com/mptyl/thoth-sqlcore/internal/contextretriever"
	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/explainer"
	"github.com/mptyl/thoth-sqlcore/internal/feedback"
	"github.com/mptyl/thoth-sqlcore/internal/httpapi"
	"github.com/mptyl/thoth-sqlcore/internal/modelprovider"
	"github.com/mptyl/thoth-sqlcore/internal/sessioncache"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "sqlcore",
		Short: "Thoth SQL generation core",
	}
	root.AddCommand(serveCmd(), healthcheckCmd(), configCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("sqlcore " + version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Load configuration and print the resolved, non-secret fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger().Sugar()
			cfg, err := config.Load(logger)
			if err != nil {
				return err
			}
			fmt.Printf("deadline=%s agent_timeout=%s db_timeout=%s eval_threshold=%.2f max_escalation_attempts=%d relevance_w_bm25=%.2f relevance_w_struct=%.2f http_addr=%s\n",
				cfg.Deadline, cfg.AgentTimeout, cfg.DBTimeout, cfg.EvalThreshold,
				cfg.MaxEscalationAttempts, cfg.RelevanceWeightBM25, cfg.RelevanceWeightStruct, cfg.HTTPAddr)
			return nil
		},
	})
	return cmd
}

func healthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running sqlcore instance's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + addr + "/health")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck: unexpected status %d", resp.StatusCode)
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address of the running instance")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func serve() error {
	zlog := newLogger()
	defer zlog.Sync()
	logger := zlog.Sugar()

	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("sqlcore: %w", err)
	}
	store := config.NewStore(cfg)

	registry := modelprovider.NewRegistry()
	if cfg.OpenAIAPIKey != "" {
		provider, err := modelprovider.NewOpenAIProvider(cfg.OpenAIAPIKey, "")
		if err != nil {
			return fmt.Errorf("sqlcore: openai provider: %w", err)
		}
		registry.Register("openai", modelprovider.NewRateLimited(provider, 10, 20))
	}
	if cfg.AnthropicAPIKey != "" {
		provider, err := modelprovider.NewAnthropicProvider(cfg.AnthropicAPIKey, "")
		if err != nil {
			return fmt.Errorf("sqlcore: anthropic provider: %w", err)
		}
		registry.Register("anthropic", modelprovider.NewRateLimited(provider, 10, 20))
	}

	embedder, err := vdbmanager.NewOpenAIEmbedder(cfg.EmbeddingAPIKey, "", cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("sqlcore: embedder: %w", err)
	}

	qdrantClient, err := newQdrantClient(cfg.VectorDBURL)
	if err != nil {
		return fmt.Errorf("sqlcore: qdrant client: %w", err)
	}
	vdb := vdbmanager.NewQdrantManager(qdrantClient, embedder, "evidence", "sql_examples")

	loader := workspace.NewStaticLoader(&workspace.Workspace{
		ID: 1, Dialect: workspace.DialectPostgres, DBConnection: cfg.DefaultDBURL, VDBConnection: cfg.VectorDBURL,
	})

	dbFactory := func(ctx context.Context, ws *workspace.Workspace) (dbmanager.Manager, error) {
		return dbmanager.NewPgxManager(ctx, ws.DBConnection, true)
	}
	vdbFactory := func(ctx context.Context, ws *workspace.Workspace) (vdbmanager.Manager, error) {
		return vdb, nil
	}

	cache := sessioncache.New(loader, registry, dbFactory, vdbFactory,
		contextretriever.DefaultLSHThreshold, sessioncache.DefaultTTL, logger)
	cache.SetDebugTimings(store.Get().DebugTimings)
	cache.SetConfigStore(store)

	sink := feedback.New(vdb)

	explainerAgent, err := buildExplainer(registry, logger)
	if err != nil {
		return fmt.Errorf("sqlcore: explainer: %w", err)
	}

	server := httpapi.NewServer(cache, loader, dbFactory, vdbFactory, sink, explainerAgent, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	server.Register(engine)

	httpServer := &http.Server{Addr: store.Get().HTTPAddr, Handler: engine}

	stop := make(chan struct{})
	go store.WatchReload(logger, stop)

	go func() {
		logger.Infow("sqlcore: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("sqlcore: server failed", "error", err)
		}
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	<-sigterm
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func newQdrantClient(rawURL string) (*qdrant.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("vdbmanager: parse vector db url: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		port = 6334
	}
	apiKey := ""
	if u.User != nil {
		apiKey, _ = u.User.Password()
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	})
}

// buildExplainer wires the module's built-in explainer template/agent. It
// is independent of any particular workspace's AgentPoolConfig.Explainer
// entry, used only by the standalone /explain-sql endpoint.
func buildExplainer(registry *modelprovider.Registry, logger *zap.SugaredLogger) (*explainer.Explainer, error) {
	templates, err := sessioncache.DefaultTemplates()
	if err != nil {
		return nil, err
	}
	cfg := workspace.AgentConfig{
		Name:        "explainer",
		Kind:        workspace.KindExplainer,
		Primary:     workspace.ModelHandle{Provider: "openai", ModelID: "gpt-4o-mini"},
		TemplateKey: string(workspace.KindExplainer),
	}
	agent := agentpkg.NewAgentAdapter(cfg, registry, templates, func(raw string) (string, error) {
		return strings.TrimSpace(raw), nil
	}, logger)
	return explainer.New(agent), nil
}
