package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/yieldvision/internal/auth"
	"github.com/hitoshi/yieldvision/internal/chart"
	"github.com/hitoshi/yieldvision/internal/config"
	"github.com/hitoshi/yieldvision/internal/database"
	"github.com/hitoshi/yieldvision/internal/handler"
	"github.com/hitoshi/yieldvision/internal/logger"
	"github.com/hitoshi/yieldvision/internal/metrics"
	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/prediction"
	"github.com/hitoshi/yieldvision/internal/security"
	"github.com/hitoshi/yieldvision/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.SetupDefault(w, level), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, log)
	}
}

// application は配線済みの依存関係をまとめたもの。
type application struct {
	handler http.Handler
	manager *auth.Manager
	limiter *middleware.RateLimiter
	inbox   *notify.Inbox
	storage *storageBackend
}

// newApplication はストレージを開き、全依存関係をワイヤリングする。
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	// 1. ストレージ
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}

	// 2. 認証情報ディレクトリ
	hasherCfg := auth.DefaultHasherConfig()
	hasherCfg.Memory = cfg.Argon2MemoryKB
	hasherCfg.Time = cfg.Argon2Time
	hasher, err := auth.NewSecretHasher(hasherCfg)
	if err != nil {
		storage.close()
		return nil, fmt.Errorf("failed to create secret hasher: %w", err)
	}
	directory, err := auth.NewDirectory(hasher, model.DefaultSeedCredentials())
	if err != nil {
		storage.close()
		return nil, fmt.Errorf("failed to seed credential directory: %w", err)
	}

	// 3. 通知（受信箱とログの両方に流す）
	inbox := notify.NewInbox(notify.DefaultInboxCapacity)
	inbox.StartEviction(cfg.SessionIdleTTL)
	emitter := notify.Fanout{inbox, notify.NewLogEmitter(log)}

	// 4. ドメインサービス
	manager := auth.NewManager(storage.repo, directory, emitter, auth.ManagerConfig{
		Provider: auth.ProviderConfig{SimulatedLatency: cfg.AuthSimulatedLatency},
		IdleTTL:  cfg.SessionIdleTTL,
	})
	sanitizer := security.NewTextSanitizer()
	predictionService := prediction.NewService(storage.repo, emitter, prediction.Config{
		SimulatedLatency: cfg.PredictionSimulatedLatency,
	})
	settingsService := settings.NewService(storage.repo, emitter, sanitizer)

	catalog, err := chart.NewCatalog()
	if err != nil {
		manager.Stop()
		inbox.Stop()
		storage.close()
		return nil, fmt.Errorf("failed to load chart fixtures: %w", err)
	}

	// 5. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	metrics.RegisterProviderGauge(reg, manager.Count)

	// 6. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger: log,
		ClientConfig: middleware.ClientConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		ProviderLoader:    manager,
		RateLimiter:       limiter,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  storage.checker,

		Sanitizer: sanitizer,

		PredictionService: predictionService,
		SettingsService:   settingsService,
		Charts:            catalog,
		Notifications:     inbox,
	})

	return &application{
		handler: router,
		manager: manager,
		limiter: limiter,
		inbox:   inbox,
		storage: storage,
	}, nil
}

// Close はバックグラウンド処理を止め、ストレージを閉じる。
func (a *application) Close() {
	a.limiter.Stop()
	a.manager.Stop()
	a.inbox.Stop()
	if err := a.storage.close(); err != nil {
		slog.Error("failed to close storage", slog.String("error", err.Error()))
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 疑似レイテンシ分の余裕を持たせる
		WriteTimeout: 15*time.Second + cfg.AuthSimulatedLatency + cfg.PredictionSimulatedLatency,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
