// Package detail は詳細登録（属性・所属機関・同意）のドメインロジックを提供する。
package detail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/repository"
)

// RequiredFields は詳細登録でペイロードに存在しなければならないキー（定義順）。
// 値の中身は検査せず、空文字列やnullでもキーがあれば通過する。
var RequiredFields = []string{
	"registration_email",
	"cpf",
	"sexo",
	"participacao",
	"confirmacao_detalhada",
}

// RegistrationLookup はemailから初回登録IDを解決する。
// 解決結果は参考情報で、未解決でも詳細登録は拒否しない。
type RegistrationLookup interface {
	FindIDByEmail(ctx context.Context, email string) (*int64, error)
}

// Metrics は詳細登録で記録するメトリクス。
type Metrics interface {
	RecordDetailedRegistrationCreated()
	RecordConsentRejection()
}

// CompleteInput はデコード済みのリクエストJSON。
// キーの有無を判定するため、構造体ではなくキーごとの生JSONで保持する。
type CompleteInput map[string]json.RawMessage

// Service は詳細登録のサービス層。
type Service struct {
	repo    repository.DetailedRegistrationRepository
	lookup  RegistrationLookup
	metrics Metrics
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// lookupとmetricsはnilでもよい。
func NewService(
	repo repository.DetailedRegistrationRepository,
	lookup RegistrationLookup,
	metrics Metrics,
	logger *slog.Logger,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:    repo,
		lookup:  lookup,
		metrics: metrics,
		logger:  logger,
	}
}

// Complete は詳細登録を作成し、採番されたIDを返す。
//
// 検査順:
//  1. 必須キーの存在（欠落があればMISSING_REQUIRED_FIELD）
//  2. aceite_lgpdがJSONのtrueであること（違えばCONSENT_REQUIRED）
//  3. 値の形（文字列・数値・真偽値・null以外はINVALID_JSON）
//
// いずれもDBアクセス前に行う。
func (s *Service) Complete(ctx context.Context, in CompleteInput) (int64, error) {
	var missing []string
	for _, field := range RequiredFields {
		if _, ok := in[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return 0, model.NewMissingRequiredFieldError(missing)
	}

	if !isJSONTrue(in["aceite_lgpd"]) {
		s.metrics.RecordConsentRejection()
		s.logger.Info("detailed registration rejected: LGPD consent not given")
		return 0, model.NewConsentRequiredError()
	}

	d, err := in.toNewDetailedRegistration()
	if err != nil {
		return 0, err
	}

	if s.lookup != nil {
		regID, err := s.lookup.FindIDByEmail(ctx, d.RegistrationEmail)
		if err != nil {
			return 0, fmt.Errorf("初回登録の解決に失敗しました: %w", err)
		}
		d.RegistrationID = regID
		if regID == nil {
			s.logger.Info("detailed registration has no matching registration")
		}
	}
	d.ContentHash = model.DetailContentHash(d)

	id, err := s.repo.Create(ctx, d)
	if err != nil {
		return 0, fmt.Errorf("詳細登録の保存に失敗しました: %w", err)
	}

	s.metrics.RecordDetailedRegistrationCreated()
	s.logger.Info("detailed registration created",
		slog.Int64("detailed_registration_id", id),
		slog.Bool("linked", d.RegistrationID != nil),
	)

	return id, nil
}

// toNewDetailedRegistration は入力JSONを保存用の値に変換する。
func (in CompleteInput) toNewDetailedRegistration() (model.NewDetailedRegistration, error) {
	var d model.NewDetailedRegistration
	var badFields []string

	text := func(key string) *string {
		v, ok := scalarText(in[key])
		if !ok {
			badFields = append(badFields, key)
		}
		return v
	}

	// registration_emailはNOT NULLのため、nullは空文字列として保存する
	if email := text("registration_email"); email != nil {
		d.RegistrationEmail = *email
	}
	d.CPF = text("cpf")
	d.Sexo = text("sexo")
	d.Participacao = text("participacao")
	d.InstituicaoNome = text("instituicao_nome")
	d.Cidade = text("cidade")
	d.AreaAtuacao = text("area_atuacao")
	d.Setor = text("setor")
	d.Cargo = text("cargo")
	d.InstitTel = text("instit_tel")
	d.InstitEmail = text("instit_email")
	d.ConfirmacaoDetalhada = text("confirmacao_detalhada")
	d.AceiteLGPD = true
	d.AceiteComunicados = model.Truthy(in["aceite_comunicados"])

	if len(badFields) > 0 {
		return model.NewDetailedRegistration{}, model.NewInvalidJSONError()
	}
	return d, nil
}

// scalarText はJSONのスカラー値をTEXTカラムに保存する文字列へ変換する。
// 欠落とnullはnil、文字列はそのまま、数値と真偽値はJSON表記のまま文字列化する。
// オブジェクトと配列は保存できないためfalseを返す。
func scalarText(raw json.RawMessage) (*string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		return &s, true
	case '{', '[':
		return nil, false
	default:
		s := string(raw)
		return &s, true
	}
}

// isJSONTrue は値がJSONのtrueそのものかどうかを判定する。
// 文字列の"true"や1は同意とみなさない。
func isJSONTrue(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "true"
}

type noopMetrics struct{}

func (noopMetrics) RecordDetailedRegistrationCreated() {}
func (noopMetrics) RecordConsentRejection()            {}
