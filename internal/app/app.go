// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/wallert/internal/auth"
	"github.com/hitoshi/wallert/internal/config"
	"github.com/hitoshi/wallert/internal/database"
	"github.com/hitoshi/wallert/internal/divar"
	"github.com/hitoshi/wallert/internal/email"
	"github.com/hitoshi/wallert/internal/handler"
	"github.com/hitoshi/wallert/internal/logger"
	"github.com/hitoshi/wallert/internal/metrics"
	"github.com/hitoshi/wallert/internal/middleware"
	"github.com/hitoshi/wallert/internal/repository"
	"github.com/hitoshi/wallert/internal/security"
	"github.com/hitoshi/wallert/internal/token"
	"github.com/hitoshi/wallert/internal/track"
	"github.com/hitoshi/wallert/internal/user"
	"github.com/hitoshi/wallert/internal/worker/cleanup"
	"github.com/hitoshi/wallert/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップした上で
// 環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envは開発環境の利便のため。存在しなければ環境変数のみで動く。
	_ = godotenv.Load()

	logger.SetupDefault(w)

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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newFeedClient は検索APIクライアントを構築する。
// 検索URLはユーザー入力のため、必ずSSRF防止付きクライアントを使う。
func newFeedClient(cfg *config.Config, guard security.SSRFGuardService) *divar.Client {
	return divar.NewClient(
		guard.NewSafeClient(cfg.FetchTimeout),
		cfg.FeedWebBaseURL,
		cfg.FeedAPIBaseURL,
		security.NewTextSanitizer(),
		slog.Default(),
		cfg.FetchMaxSize,
	)
}

// newMailSender はSMTPメール送信を構築する。
func newMailSender(cfg *config.Config) *email.Sender {
	return email.NewSender(email.Config{
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUser,
		SMTPPassword: cfg.SMTPPass,
		From:         cfg.MailFrom,
		BaseURL:      cfg.BaseURL,
	}, slog.Default())
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	trackRepo := repository.NewPostgresTrackRepo(db)

	// 3. セキュリティサービスの初期化
	hasher := security.NewPasswordHasher()
	ssrfGuard := security.NewSSRFGuard()

	// 4. ドメインサービスの初期化
	tokenService := token.NewService(tokenRepo, token.ServiceConfig{
		Secret:           []byte(cfg.JWTSecret),
		AccessTTL:        cfg.AccessTTL,
		RefreshTTL:       cfg.RefreshTTL,
		ResetPasswordTTL: cfg.ResetPasswordTTL,
		VerifyEmailTTL:   cfg.VerifyEmailTTL,
	})
	userService := user.NewService(userRepo, hasher)
	mailer := newMailSender(cfg)
	authService := auth.NewService(tokenService, userService, mailer, slog.Default())

	feedClient := newFeedClient(cfg, ssrfGuard)
	trackService := track.NewService(trackRepo, userService, feedClient, ssrfGuard, slog.Default())

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		AuthRate:        rate.Limit(float64(cfg.RateLimitAuth) / 60.0),
		AuthBurst:       cfg.RateLimitAuth,
		CleanupInterval: 5 * time.Minute,
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokenService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		TrackService: trackService,
		UserService:  userService,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),
		Metrics:        m,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

// runWorker はポーリングワーカーモードで起動する。
// DB接続を開き、巡回スケジューラとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	tokenRepo := repository.NewPostgresTokenRepo(db)
	trackRepo := repository.NewPostgresTrackRepo(db)

	// 3. 巡回エンジンの構築
	ssrfGuard := security.NewSSRFGuard()
	feedClient := newFeedClient(cfg, ssrfGuard)
	mailer := newMailSender(cfg)
	m := metrics.New(prometheus.NewRegistry())

	poller := poll.NewPoller(trackRepo, feedClient, mailer, m, slog.Default())
	scheduler := poll.NewScheduler(trackRepo, poller, cfg.PollTick, cfg.PollMaxConcurrent, slog.Default())

	// 4. クリーンアップジョブの構築
	cleanupWorker := cleanup.NewWorker(tokenRepo, 24*time.Hour, slog.Default())

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
		slog.Duration("poll_tick", cfg.PollTick),
		slog.Int("max_concurrent", cfg.PollMaxConcurrent),
	)

	// クリーンアップジョブをバックグラウンドで起動
	go cleanupWorker.Start(ctx)

	// 巡回スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
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
