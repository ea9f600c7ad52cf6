// Package query は登録データの参照と静的な選択肢一覧を提供する。
package query

import (
	"context"
	"fmt"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/repository"
)

// Service は参照系のサービス層。
// リポジトリへ委譲するのみで、独自のロジックは持たない。
type Service struct {
	regRepo    repository.RegistrationRepository
	detailRepo repository.DetailedRegistrationRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	regRepo repository.RegistrationRepository,
	detailRepo repository.DetailedRegistrationRepository,
) *Service {
	return &Service{
		regRepo:    regRepo,
		detailRepo: detailRepo,
	}
}

// ListRegistrations は初回登録の一覧を新しい順に返す。
// confirmedがnilの場合は全件を返す。
func (s *Service) ListRegistrations(ctx context.Context, confirmed *bool) ([]model.Registration, error) {
	regs, err := s.regRepo.List(ctx, confirmed)
	if err != nil {
		return nil, fmt.Errorf("初回登録一覧の取得に失敗しました: %w", err)
	}
	return regs, nil
}

// ListDetailedRegistrations は詳細登録の一覧を新しい順に返す。
func (s *Service) ListDetailedRegistrations(ctx context.Context) ([]model.DetailedRegistration, error) {
	details, err := s.detailRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("詳細登録一覧の取得に失敗しました: %w", err)
	}
	return details, nil
}

// Areas は活動分野の選択肢を返す。
// 呼び出し元が変更しても元の一覧に影響しないよう複製を返す。
func (s *Service) Areas() []string {
	return append([]string(nil), areas...)
}

// Setores は部署の選択肢を返す。
func (s *Service) Setores() []string {
	return append([]string(nil), setores...)
}
