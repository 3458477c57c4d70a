// Package config loads the process-wide configuration (spec §6): required
// provider/storage credentials plus the optional tunables that govern
// deadlines, timeouts, thresholds, and relevance weights. Grounded on
// blackcoderx-falcon/cmd/falcon/main.go's viper+godotenv+cobra layering,
// adapted from a CLI's file-based config to a service's env-first one and
// given SIGHUP reload since this module runs as a long-lived server.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the fully-resolved, process-wide configuration snapshot.
type Config struct {
	// Required (spec §6): LLM provider credentials, embedding provider,
	// vector DB and default workspace DB connection strings.
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	EmbeddingProvider string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	VectorDBURL       string
	DefaultDBURL      string

	// Optional tunables (spec §6), each with a spec-mandated default.
	Deadline              time.Duration
	AgentTimeout          time.Duration
	DBTimeout             time.Duration
	EvalThreshold         float64
	MaxEscalationAttempts int
	RelevanceWeightBM25   float64
	RelevanceWeightStruct float64

	HTTPAddr     string
	DebugTimings bool
}

const (
	defaultDeadline     = 120 * time.Second
	defaultAgentTimeout = 30 * time.Second
	defaultDBTimeout    = 10 * time.Second
)

func defaults(v *viper.Viper) {
	v.SetDefault("deadline_ms", defaultDeadline.Milliseconds())
	v.SetDefault("agent_timeout_ms", defaultAgentTimeout.Milliseconds())
	v.SetDefault("db_timeout_ms", defaultDBTimeout.Milliseconds())
	v.SetDefault("eval_threshold", 0.90)
	v.SetDefault("max_escalation_attempts", 2)
	v.SetDefault("relevance_w_bm25", 0.6)
	v.SetDefault("relevance_w_struct", 0.4)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("debug_timings", false)
}

// Load reads .env (if present), then environment variables, and returns the
// resolved Config. A missing .env file is not an error; a malformed one is
// only logged, matching the teacher's tolerant startup behavior.
func Load(logger *zap.SugaredLogger) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnw("config: failed to load .env", "error", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	cfg := Config{
		OpenAIAPIKey:      v.GetString("OPENAI_API_KEY"),
		AnthropicAPIKey:   v.GetString("ANTHROPIC_API_KEY"),
		EmbeddingProvider: v.GetString("EMBEDDING_PROVIDER"),
		EmbeddingAPIKey:   v.GetString("EMBEDDING_API_KEY"),
		EmbeddingModel:    v.GetString("EMBEDDING_MODEL"),
		VectorDBURL:       v.GetString("VECTOR_DB_URL"),
		DefaultDBURL:      v.GetString("DEFAULT_DB_URL"),

		Deadline:              time.Duration(v.GetInt64("deadline_ms")) * time.Millisecond,
		AgentTimeout:          time.Duration(v.GetInt64("agent_timeout_ms")) * time.Millisecond,
		DBTimeout:             time.Duration(v.GetInt64("db_timeout_ms")) * time.Millisecond,
		EvalThreshold:         v.GetFloat64("eval_threshold"),
		MaxEscalationAttempts: v.GetInt("max_escalation_attempts"),
		RelevanceWeightBM25:   v.GetFloat64("relevance_w_bm25"),
		RelevanceWeightStruct: v.GetFloat64("relevance_w_struct"),
		HTTPAddr:              v.GetString("http_addr"),
		DebugTimings:          v.GetBool("debug_timings"),
	}

	if err := cfg.validateRequired(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validateRequired() error {
	if c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("config: at least one of OPENAI_API_KEY or ANTHROPIC_API_KEY is required")
	}
	if c.EmbeddingProvider == "" || c.EmbeddingAPIKey == "" || c.EmbeddingModel == "" {
		return fmt.Errorf("config: EMBEDDING_PROVIDER, EMBEDDING_API_KEY, and EMBEDDING_MODEL are required")
	}
	if c.VectorDBURL == "" {
		return fmt.Errorf("config: VECTOR_DB_URL is required")
	}
	if c.DefaultDBURL == "" {
		return fmt.Errorf("config: DEFAULT_DB_URL is required")
	}
	return nil
}

// Store holds the live Config behind a mutex, letting WatchReload swap it
// out on SIGHUP without callers needing to restart.
type Store struct {
	mu     sync.RWMutex
	config Config
}

// NewStore wraps an initial Config.
func NewStore(initial Config) *Store {
	return &Store{config: initial}
}

// Get returns the current Config snapshot.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Deadline returns the live, SIGHUP-reloadable per-request deadline.
func (s *Store) Deadline() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Deadline
}

// MaxEscalationAttempts returns the live, SIGHUP-reloadable escalation budget.
func (s *Store) MaxEscalationAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.MaxEscalationAttempts
}

// AgentTimeout returns the live, SIGHUP-reloadable per-call LLM timeout.
func (s *Store) AgentTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.AgentTimeout
}

// DBTimeout returns the live, SIGHUP-reloadable per-call database timeout.
func (s *Store) DBTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.DBTimeout
}

// RelevanceWeights returns the live, SIGHUP-reloadable RelevanceGuard blend
// weights (spec §4.7 RELEVANCE_W_BM25/RELEVANCE_W_STRUCT).
func (s *Store) RelevanceWeights() (bm25, structural float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.RelevanceWeightBM25, s.config.RelevanceWeightStruct
}

// WatchReload blocks (in its own goroutine, started by the caller) reloading
// Config on every SIGHUP until the caller closes stop, matching spec §6's
// "reloadable on SIGHUP" configuration requirement.
func (s *Store) WatchReload(logger *zap.SugaredLogger, stop <-chan struct{}) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	for {
		select {
		case <-stop:
			return
		case <-sighup:
			cfg, err := Load(logger)
			if err != nil {
				logger.Errorw("config: reload failed, keeping previous config", "error", err)
				continue
			}
			s.mu.Lock()
			s.config = cfg
			s.mu.Unlock()
			logger.Infow("config: reloaded on SIGHUP")
		}
	}
}
