package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/audiencia/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPMetrics

	// ヘルスチェック
	HealthChecker HealthChecker

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// 登録
	RegistrationService RegistrationServiceInterface
	DetailService       DetailServiceInterface

	// 参照
	QueryService QueryServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS
//
// 送信系（POST）の2エンドポイントにのみクライアントIP単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPMetrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	regHandler := NewRegistrationHandler(deps.RegistrationService)
	detailHandler := NewDetailHandler(deps.DetailService)
	queryHandler := NewQueryHandler(deps.QueryService)

	// --- 運用系 ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		// 送信系（レート制限付き）
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}
			r.Post("/register", regHandler.Register)
			r.Post("/complete-registration", detailHandler.CompleteRegistration)
		})

		// 選択肢
		r.Get("/areas", queryHandler.Areas)
		r.Get("/setores", queryHandler.Setores)

		// 一覧
		r.Get("/registrations", queryHandler.ListRegistrations)
		r.Get("/detailed_registrations", queryHandler.ListDetailedRegistrations)
	})

	return r
}
