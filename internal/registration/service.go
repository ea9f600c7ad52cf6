// Package registration は公聴会への初回登録のドメインロジックを提供する。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/notify"
	"github.com/hitoshi/audiencia/internal/repository"
)

// notifyTimeout は確認メール送信1件あたりの上限時間。
const notifyTimeout = 15 * time.Second

// Metrics は初回登録で記録するメトリクス。
type Metrics interface {
	RecordRegistrationCreated()
	RecordRegistrationConflict()
	RecordNotificationFailure()
}

// RegisterInput は初回登録の入力値。
// Confirmedは呼び出し元でmodel.Truthyにより正規化済みであること。
type RegisterInput struct {
	Name      string
	Email     string
	Phone     *string
	Confirmed bool
}

// Service は初回登録のサービス層。
// 入力検証、保存、確認メールの非同期送信を行う。
type Service struct {
	repo     repository.RegistrationRepository
	notifier notify.Notifier
	metrics  Metrics
	logger   *slog.Logger

	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierとmetricsはnilでもよい。
func NewService(
	repo repository.RegistrationRepository,
	notifier notify.Notifier,
	metrics Metrics,
	logger *slog.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		timeout:  notifyTimeout,
	}
}

// Register は初回登録を作成し、採番されたIDを返す。
// nameまたはemailが空の場合はバリデーションエラー、emailが登録済みの場合は重複エラーを返す。
// 値はトリムせず入力どおりに保存する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if in.Name == "" || in.Email == "" {
		return 0, model.NewValidationError()
	}

	id, err := s.repo.Create(ctx, model.NewRegistration{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Confirmed: in.Confirmed,
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		s.metrics.RecordRegistrationConflict()
		s.logger.Info("registration rejected: email already registered")
		return 0, model.NewDuplicateEmailError()
	}
	if err != nil {
		return 0, fmt.Errorf("初回登録の保存に失敗しました: %w", err)
	}

	s.metrics.RecordRegistrationCreated()
	s.logger.Info("registration created",
		slog.Int64("registration_id", id),
		slog.Bool("confirmed", in.Confirmed),
	)

	s.notifyAsync(ctx, model.Registration{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Confirmed: in.Confirmed,
	})

	return id, nil
}

// Close は新たな確認メールの送信を止め、送信中のものが全て終わるまで待つ。
// シャットダウン時に呼び出す。Close後の登録は保存されるが確認メールは送らない。
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
}

// notifyAsync は確認メールをバックグラウンドで送信する。
// リクエストのキャンセルとは切り離し、失敗はログとメトリクスにのみ記録する。
func (s *Service) notifyAsync(ctx context.Context, reg model.Registration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("confirmation email skipped: shutting down",
			slog.Int64("registration_id", reg.ID),
		)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.notifier.NotifyRegistered(nctx, reg); err != nil {
			s.metrics.RecordNotificationFailure()
			s.logger.Warn("failed to send confirmation email",
				slog.Int64("registration_id", reg.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

type noopMetrics struct{}

func (noopMetrics) RecordRegistrationCreated()  {}
func (noopMetrics) RecordRegistrationConflict() {}
func (noopMetrics) RecordNotificationFailure()  {}
