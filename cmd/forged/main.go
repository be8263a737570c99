// Command forged runs the forge-core service: the compliance record
// (DSAR, breach, consent, AI governance, audit chain) and the autonomous
// diagnostic session engine behind one process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/forge-health/forge-core/pkg/aigov"
	"github.com/forge-health/forge-core/pkg/artifacts"
	"github.com/forge-health/forge-core/pkg/audit"
	"github.com/forge-health/forge-core/pkg/auth"
	"github.com/forge-health/forge-core/pkg/bayes"
	"github.com/forge-health/forge-core/pkg/blacklist"
	"github.com/forge-health/forge-core/pkg/breach"
	"github.com/forge-health/forge-core/pkg/clock"
	"github.com/forge-health/forge-core/pkg/config"
	"github.com/forge-health/forge-core/pkg/consent"
	"github.com/forge-health/forge-core/pkg/council"
	"github.com/forge-health/forge-core/pkg/diagnosis"
	"github.com/forge-health/forge-core/pkg/dsar"
	"github.com/forge-health/forge-core/pkg/graph"
	"github.com/forge-health/forge-core/pkg/llm"
	"github.com/forge-health/forge-core/pkg/observability"
	"github.com/forge-health/forge-core/pkg/ontology"
	"github.com/forge-health/forge-core/pkg/policy"
	"github.com/forge-health/forge-core/pkg/repository"
	"github.com/forge-health/forge-core/pkg/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("forged exiting", "error", err)
		os.Exit(1)
	}
}

// app holds every wired service. Nothing lives in package globals.
type app struct {
	cfg      *config.Config
	repo     *repository.Repository
	audit    *audit.Log
	verifier *auth.Verifier
	policy   *policy.Engine
	dsar     *dsar.Service
	breach   *breach.Service
	consent  *consent.Registry
	aigov    *aigov.Service
	vault    artifacts.Vault
	llm      llm.Client
	council  *council.Council
	sessions *session.Controller
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "forge-core",
		Environment:  envOr("ENVIRONMENT", "development"),
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.OTLPEndpoint != "",
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	repo, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer func() { _ = repo.Close() }()

	// Restore the audit chain from the repository and verify every link
	// before accepting traffic. A broken chain aborts startup.
	auditLog := audit.NewLog(audit.WithSink(repo))
	persisted, err := repo.LoadAuditEvents(ctx)
	if err != nil {
		return fmt.Errorf("load audit events: %w", err)
	}
	if err := auditLog.Restore(persisted); err != nil {
		return fmt.Errorf("audit chain integrity check failed: %w", err)
	}
	logger.Info("audit chain restored", "events", len(persisted))

	local := blacklist.NewLocal()
	var bl blacklist.Store = local
	if cfg.RedisURL != "" {
		shared, err := blacklist.NewShared(cfg.RedisURL, local, clock.Wall, logger)
		if err != nil {
			return fmt.Errorf("connect redis blacklist: %w", err)
		}
		bl = shared
	}
	defer func() { _ = bl.Close() }()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, bl, clock.Wall)
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	passwords := auth.NewPasswordService(clock.Wall)
	if cfg.SeedAdminPassword != "" {
		if err := passwords.Seed("admin", cfg.SeedAdminPassword); err != nil {
			return fmt.Errorf("seed admin credential: %w", err)
		}
		logger.Info("admin credential seeded")
	} else {
		logger.Warn("SEED_ADMIN_PASSWORD not set, no admin credential seeded")
	}

	policyEngine := policy.NewEngine(policy.ModelHybrid, clock.Wall)
	if path := os.Getenv("POLICY_FILE"); path != "" {
		if err := policy.LoadFile(policyEngine, path); err != nil {
			return fmt.Errorf("load policy file: %w", err)
		}
		logger.Info("policy model loaded", "path", path)
	}

	auditor := &auditBridge{log: auditLog}
	ids := clock.UUIDSource{}
	dsarSvc := dsar.NewService(repo, auditor, clock.Wall, ids)
	breachSvc := breach.NewService(repo, auditor, clock.Wall, ids)
	consentReg := consent.NewRegistry(repo, clock.Wall, ids)
	aigovSvc := aigov.NewService(repo, clock.Wall, ids)

	scheduler := breach.NewScheduler(breachSvc, clock.Wall, nil, logger)
	go scheduler.Run(ctx)

	vault, err := artifacts.NewVaultFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("init export vault: %w", err)
	}

	llmClient := llm.NewFromConfig(llm.Config{
		OpenAIKey:      cfg.OpenAIKey,
		AnthropicKey:   cfg.AnthropicKey,
		OllamaEndpoint: cfg.OllamaEndpoint,
	}, logger)
	defer func() { _ = llmClient.Close() }()
	councilSvc := council.New(llmClient, council.Config{CacheEnabled: true, Logger: logger})

	onto, err := loadOntology(logger)
	if err != nil {
		return err
	}
	diseases, err := loadDiseaseGraph(ctx, logger)
	if err != nil {
		return err
	}
	engine := diagnosis.New(onto, diseases, bayes.NewScorer(bayes.Config{}), diagnosis.Config{}, clock.Wall, ids, logger)

	controller := session.NewController(engine, session.Config{
		AutoAdvance:       true,
		PauseForQuestions: true,
	}, clock.Wall, logger)
	controller.Run(ctx)
	defer controller.Stop()

	a := &app{
		cfg:      cfg,
		repo:     repo,
		audit:    auditLog,
		verifier: verifier,
		policy:   policyEngine,
		dsar:     dsarSvc,
		breach:   breachSvc,
		consent:  consentReg,
		aigov:    aigovSvc,
		vault:    vault,
		llm:      llmClient,
		council:  councilSvc,
		sessions: controller,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("forged listening", "port", cfg.Port, "llm_provider", llmClient.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// routes exposes the liveness probe plus an authenticated status endpoint.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/v1/status", auth.RequireAuth(http.HandlerFunc(a.handleStatus)))
	return auth.NewMiddleware(a.verifier)(mux)
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	chainOK, chainLen := a.audit.Verify()
	requests, err := a.repo.ListDSARs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	overdue, err := a.dsar.Overdue(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	incidents, err := a.repo.ListBreaches(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"audit_chain_ok":   chainOK,
		"audit_events":     chainLen,
		"dsar_requests":    len(requests),
		"dsar_overdue":     len(overdue),
		"breach_incidents": len(incidents),
		"llm_provider":     a.llm.Name(),
		"council_hits":     a.council.CacheHits(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// auditBridge adapts the hash-chained log to the per-service auditor
// interfaces.
type auditBridge struct {
	log *audit.Log
}

func (b *auditBridge) RecordDSAREvent(requestID, action, actor string, success bool) error {
	_, err := b.log.Append(audit.Event{
		Category:  audit.CategoryDSAR,
		EventType: "dsar." + action,
		Actor:     actor,
		Entity:    requestID,
		Action:    action,
		Success:   success,
		Risk:      audit.RiskMedium,
	})
	return err
}

func (b *auditBridge) RecordBreachEvent(incidentID, action, actor string, success bool) error {
	_, err := b.log.Append(audit.Event{
		Category:  audit.CategoryBreachResponse,
		EventType: "breach." + action,
		Actor:     actor,
		Entity:    incidentID,
		Action:    action,
		Success:   success,
		Risk:      audit.RiskHigh,
	})
	return err
}

// loadOntology parses the HPO release named by HPO_OBO_PATH. Without it
// the service starts with an empty ontology and logs a warning.
func loadOntology(logger *slog.Logger) (*ontology.Service, error) {
	path := os.Getenv("HPO_OBO_PATH")
	if path == "" {
		logger.Warn("HPO_OBO_PATH not set, ontology is empty")
		return ontology.New(nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ontology: %w", err)
	}
	defer func() { _ = f.Close() }()
	svc, err := ontology.ParseOBO(f)
	if err != nil {
		return nil, fmt.Errorf("parse ontology %s: %w", path, err)
	}
	logger.Info("ontology loaded", "path", path)
	return svc, nil
}

// loadDiseaseGraph seeds the in-memory disease store from the JSON file
// named by DISEASE_GRAPH_PATH.
func loadDiseaseGraph(ctx context.Context, logger *slog.Logger) (graph.Store, error) {
	g := graph.NewMemory()
	path := os.Getenv("DISEASE_GRAPH_PATH")
	if path == "" {
		logger.Warn("DISEASE_GRAPH_PATH not set, disease graph is empty")
		return g, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open disease graph: %w", err)
	}
	defer func() { _ = f.Close() }()
	var diseases []*graph.Disease
	if err := json.NewDecoder(f).Decode(&diseases); err != nil {
		return nil, fmt.Errorf("parse disease graph %s: %w", path, err)
	}
	if err := g.UpsertDiseases(ctx, diseases); err != nil {
		return nil, err
	}
	logger.Info("disease graph loaded", "path", path, "diseases", len(diseases))
	return g, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
