package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/audiencia/internal/model"
)

// QueryServiceInterface は参照系ハンドラーが必要とするサービスインターフェース。
type QueryServiceInterface interface {
	ListRegistrations(ctx context.Context, confirmed *bool) ([]model.Registration, error)
	ListDetailedRegistrations(ctx context.Context) ([]model.DetailedRegistration, error)
	Areas() []string
	Setores() []string
}

// QueryHandler は参照系のHTTPハンドラー。
type QueryHandler struct {
	service QueryServiceInterface
}

// NewQueryHandler はQueryHandlerを生成する。
func NewQueryHandler(service QueryServiceInterface) *QueryHandler {
	return &QueryHandler{service: service}
}

// registrationResponse は初回登録のAPIレスポンス。
type registrationResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Confirmed bool      `json:"confirmed"`
	Timestamp time.Time `json:"timestamp"`
}

// detailedRegistrationResponse は詳細登録のAPIレスポンス。
type detailedRegistrationResponse struct {
	ID                   int64     `json:"id"`
	RegistrationEmail    string    `json:"registration_email"`
	RegistrationID       *int64    `json:"registration_id"`
	CPF                  *string   `json:"cpf"`
	Sexo                 *string   `json:"sexo"`
	Participacao         *string   `json:"participacao"`
	InstituicaoNome      *string   `json:"instituicao_nome"`
	Cidade               *string   `json:"cidade"`
	AreaAtuacao          *string   `json:"area_atuacao"`
	Setor                *string   `json:"setor"`
	Cargo                *string   `json:"cargo"`
	InstitTel            *string   `json:"instit_tel"`
	InstitEmail          *string   `json:"instit_email"`
	ConfirmacaoDetalhada *string   `json:"confirmacao_detalhada"`
	AceiteLGPD           bool      `json:"aceite_lgpd"`
	AceiteComunicados    bool      `json:"aceite_comunicados"`
	Timestamp            time.Time `json:"timestamp"`
}

// Areas は活動分野の選択肢を返す。
// GET /api/areas
func (h *QueryHandler) Areas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Areas())
}

// Setores は部署の選択肢を返す。
// GET /api/setores
func (h *QueryHandler) Setores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Setores())
}

// ListRegistrations は初回登録の一覧を返す。
// GET /api/registrations?confirmed=true|false
//
// confirmedが指定された場合、大文字小文字を区別せず"true"のときのみ真、それ以外は偽として絞り込む。
func (h *QueryHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	var confirmed *bool
	if q := r.URL.Query(); q.Has("confirmed") {
		v := strings.ToLower(q.Get("confirmed")) == "true"
		confirmed = &v
	}

	regs, err := h.service.ListRegistrations(r.Context(), confirmed)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		resp = append(resp, registrationResponse{
			ID:        reg.ID,
			Name:      reg.Name,
			Email:     reg.Email,
			Phone:     reg.Phone,
			Confirmed: reg.Confirmed,
			Timestamp: reg.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDetailedRegistrations は詳細登録の一覧を返す。
// GET /api/detailed_registrations
func (h *QueryHandler) ListDetailedRegistrations(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.ListDetailedRegistrations(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]detailedRegistrationResponse, 0, len(details))
	for _, d := range details {
		resp = append(resp, toDetailedRegistrationResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toDetailedRegistrationResponse(d model.DetailedRegistration) detailedRegistrationResponse {
	return detailedRegistrationResponse{
		ID:                   d.ID,
		RegistrationEmail:    d.RegistrationEmail,
		RegistrationID:       d.RegistrationID,
		CPF:                  d.CPF,
		Sexo:                 d.Sexo,
		Participacao:         d.Participacao,
		InstituicaoNome:      d.InstituicaoNome,
		Cidade:               d.Cidade,
		AreaAtuacao:          d.AreaAtuacao,
		Setor:                d.Setor,
		Cargo:                d.Cargo,
		InstitTel:            d.InstitTel,
		InstitEmail:          d.InstitEmail,
		ConfirmacaoDetalhada: d.ConfirmacaoDetalhada,
		AceiteLGPD:           d.AceiteLGPD,
		AceiteComunicados:    d.AceiteComunicados,
		Timestamp:            d.Timestamp,
	}
}
