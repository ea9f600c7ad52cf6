package app

import (
	"context"
	"database/sql"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/audiencia/internal/config"
	"github.com/hitoshi/audiencia/internal/database"
	"github.com/hitoshi/audiencia/internal/detail"
	"github.com/hitoshi/audiencia/internal/handler"
	"github.com/hitoshi/audiencia/internal/legacy"
	"github.com/hitoshi/audiencia/internal/logger"
	"github.com/hitoshi/audiencia/internal/metrics"
	"github.com/hitoshi/audiencia/internal/middleware"
	"github.com/hitoshi/audiencia/internal/migration"
	"github.com/hitoshi/audiencia/internal/notify"
	"github.com/hitoshi/audiencia/internal/query"
	"github.com/hitoshi/audiencia/internal/registration"
	"github.com/hitoshi/audiencia/internal/repository"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	l := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコンテキストがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL())),
	)
	return db, nil
}

// server はHTTPサーバーが使う依存関係一式。
type server struct {
	handler      http.Handler
	registration *registration.Service
	rateLimiter  *middleware.RateLimiter
}

// newServer はリポジトリ、サービス、ミドルウェアをワイヤリングしてルーターを構築する。
// DBへの接続はリクエスト時まで行わない。
func newServer(cfg *config.Config, db *sql.DB, logger *slog.Logger) *server {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	regRepo := repository.NewPostgresRegistrationRepo(db)
	detailRepo := repository.NewPostgresDetailedRegistrationRepo(db)

	// 3. 通知（認証情報が無ければ送信しない）
	notifier := notify.New(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.GmailUser,
		Password: cfg.GmailPassword,
	}, logger)

	// 4. ドメインサービスの初期化
	regService := registration.NewService(regRepo, notifier, collector, logger)
	detailService := detail.NewService(detailRepo, regRepo, collector, logger)
	queryService := query.NewService(regRepo, detailRepo)

	// 5. ルーターの構築（レート制限はreq/min設定をreq/secに変換する）
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitRegister), logger)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		HTTPMetrics:       collector,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(registry),

		RegistrationService: regService,
		DetailService:       detailService,
		QueryService:        queryService,
	})

	return &server{
		handler:      router,
		registration: regService,
		rateLimiter:  rl,
	}
}

// close は確認メールの受付を止めて送信中のものを待ち、バックグラウンド処理を停止する。
// Shutdownがタイムアウトして処理中のハンドラーが残っていても安全に呼べる。
func (s *server) close() {
	s.registration.Close()
	s.rateLimiter.Stop()
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開いてスキーマを最新化し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. スキーマの最新化
	if err := database.RunMigrations(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. ワイヤリング
	srv := newServer(cfg, db, logger)

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		srv.close()
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、適用後のバージョンを出力する。
func runMigrate(cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL())),
	)

	if err := database.RunMigrations(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Fprintf(out, "schema version: %d (dirty=%t)\n", version, dirty)
	logger.Info("database migrations completed successfully")
	return nil
}

// importOptions はimport-legacyサブコマンドのオプション。
type importOptions struct {
	source          string
	dedupeDetails   bool
	dryRun          bool
	metricsTextfile string
}

// migrationOptions はサブコマンドのフラグを移行ジョブの設定に変換する。
func (o importOptions) migrationOptions() migration.Options {
	opts := migration.DefaultOptions()
	if o.dedupeDetails {
		opts.Details = migration.InsertOrSkip
	}
	opts.DryRun = o.dryRun
	return opts
}

// runImportLegacy は旧SQLiteファイルのデータをPostgreSQLへ移行する。
// 移行先のスキーマを最新化してから、単一トランザクションで移行ジョブを実行する。
func runImportLegacy(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts importOptions, out io.Writer) error {
	if opts.source == "" {
		opts.source = cfg.LegacySQLitePath
	}

	// 1. 移行元を開く（存在しなければここで失敗する）
	reader, err := legacy.Open(opts.source)
	if err != nil {
		return fmt.Errorf("failed to open legacy database: %w", err)
	}
	defer reader.Close()

	// 2. 移行先の準備
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. 移行ジョブの実行
	logger.Info("importing legacy data",
		slog.String("source", reader.Path()),
		slog.Bool("dedupe_details", opts.dedupeDetails),
		slog.Bool("dry_run", opts.dryRun),
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	job := migration.NewJob(reader, db, opts.migrationOptions(), collector, logger)
	report, err := job.Run(ctx)
	if err != nil {
		return err
	}

	writeReport(out, report)

	// 4. 件数をnode_exporterのtextfile collector形式で書き出す
	if opts.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsTextfile, registry); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
		logger.Info("migration metrics written",
			slog.String("path", opts.metricsTextfile),
		)
	}
	return nil
}

// writeReport は移行結果を人が読める形式で出力する。
func writeReport(out io.Writer, report migration.Report) {
	mode := "committed"
	if report.DryRun {
		mode = "dry-run (rolled back)"
	}
	fmt.Fprintf(out, "run %s: %s in %s\n", report.RunID, mode, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  registrations:          read=%d inserted=%d skipped=%d\n",
		report.Registrations.Read, report.Registrations.Inserted, report.Registrations.Skipped)
	fmt.Fprintf(out, "  detailed_registrations: read=%d inserted=%d skipped=%d\n",
		report.DetailedRegistrations.Read, report.DetailedRegistrations.Inserted, report.DetailedRegistrations.Skipped)
	if report.BackfilledHashes > 0 {
		fmt.Fprintf(out, "  content_hash backfilled: %d\n", report.BackfilledHashes)
	}
}

// runDBCheck はDBに接続してサーバーのバージョンを出力する。
func runDBCheck(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := database.ServerVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to query server version: %w", err)
	}

	fmt.Fprintln(out, version)
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

// healthcheckPort はヘルスチェック先のポートを環境変数から取得する。
// 設定全体の読み込みは行わない。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "5000"
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
