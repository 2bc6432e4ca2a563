package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geostats/probono/internal/auth"
	"github.com/geostats/probono/internal/blob"
	"github.com/geostats/probono/internal/config"
	"github.com/geostats/probono/internal/database"
	"github.com/geostats/probono/internal/handler"
	"github.com/geostats/probono/internal/identity"
	"github.com/geostats/probono/internal/logger"
	"github.com/geostats/probono/internal/metrics"
	"github.com/geostats/probono/internal/middleware"
	"github.com/geostats/probono/internal/organization"
	"github.com/geostats/probono/internal/repository"
	"github.com/geostats/probono/internal/security"
	"github.com/geostats/probono/internal/user"
	"github.com/geostats/probono/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateDirection(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newBlobStore は設定からロゴ用のS3ストアを生成する。
func newBlobStore(cfg *config.Config) (*blob.S3Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := blob.NewS3Store(ctx, blob.S3Config{
		Bucket:        cfg.BlobBucket,
		Region:        cfg.BlobRegion,
		Endpoint:      cfg.BlobEndpoint,
		PublicBaseURL: cfg.BlobPublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	return store, nil
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 外部サービス
	blobStore, err := newBlobStore(cfg)
	if err != nil {
		return err
	}
	directory := identity.NewWorkOSDirectory(cfg.WorkOSAPIKey)
	authKit := auth.NewAuthKitProvider(auth.AuthKitConfig{
		APIKey:      cfg.WorkOSAPIKey,
		ClientID:    cfg.WorkOSClientID,
		RedirectURI: cfg.WorkOSRedirectURI,
	})
	registry, collector := newMetricsRegistry()

	// 3. リポジトリの初期化
	txRunner := repository.NewTxRunner(db)
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	orgRepo := repository.NewPostgresOrganizationRepo(db)
	catalogRepo := repository.NewPostgresCatalogRepo(db)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()

	authService := auth.NewService(authKit, userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	orgService := organization.NewService(
		txRunner, orgRepo, catalogRepo, blobStore, sanitizer, collector, cfg.LogoMaxSize,
	)
	userService := user.NewService(txRunner, userRepo, directory, orgService, sanitizer, collector)
	scopes := user.NewScopeFactory(userRepo, orgRepo)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitOrgWrite),
	)
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		BaseURL:       cfg.BaseURL,
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		HealthChecker:     db,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig:  authConfig,

		UserService:         userService,
		OrganizationService: orgService,
		AdminService:        orgService,
		CatalogService:      orgService,

		Scopes: func(authID, organizationCookie string) handler.RequestScope {
			return scopes.New(authID, organizationCookie)
		},
		LogoMaxSize: cfg.LogoMaxSize,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと未参照ロゴのクリーンアップをSESSION_CLEANUP_INTERVALごとに実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	// 2. ジョブの初期化
	sessionJob := cleanup.NewSessionJob(db, slog.Default())
	logoJob := cleanup.NewLogoJob(
		repository.NewPostgresOrganizationRepo(db),
		blobStore,
		organization.LogoKeyPrefix,
		slog.Default(),
		nil,
	)
	scheduler := cleanup.NewScheduler(slog.Default(), 2, sessionJob, logoJob)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upはすべての未適用マイグレーションを適用し、downは直近の1つをロールバックする。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if direction == MigrateDown {
		version, err := database.RollbackMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back", slog.Uint64("version", uint64(version)))
		return nil
	}

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
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
