// Package notify は初回登録後の確認メール送信を提供する。
//
// 送信はベストエフォートで、失敗しても登録処理には影響しない。
// 呼び出し元（registration.Service）がエラーをログとメトリクスに記録する。
package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/audiencia/internal/model"
)

// Notifier は登録完了通知のインターフェース。
type Notifier interface {
	// NotifyRegistered は登録者に確認メールを送る。
	NotifyRegistered(ctx context.Context, reg model.Registration) error
}

// NoopNotifier は送信を行わないNotifier。
// SMTP認証情報が未設定の環境で使用する。
type NoopNotifier struct{}

// NotifyRegistered は何もしない。
func (NoopNotifier) NotifyRegistered(ctx context.Context, reg model.Registration) error {
	return nil
}

// New は設定に応じたNotifierを返す。
// 認証情報が無い場合は警告を1回だけ出力してNoopNotifierを返す。
func New(cfg SMTPConfig, logger *slog.Logger) Notifier {
	if cfg.Username == "" || cfg.Password == "" {
		logger.Warn("email credentials are not configured, confirmation emails are disabled",
			slog.String("hint", "set GMAIL_USER and GMAIL_PASSWORD"),
		)
		return NoopNotifier{}
	}
	return NewSMTPNotifier(cfg)
}
