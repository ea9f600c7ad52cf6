package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/audiencia/internal/detail"
	"github.com/hitoshi/audiencia/internal/model"
)

// DetailServiceInterface は詳細登録ハンドラーが必要とするサービスインターフェース。
type DetailServiceInterface interface {
	Complete(ctx context.Context, in detail.CompleteInput) (int64, error)
}

// DetailHandler は詳細登録のHTTPハンドラー。
type DetailHandler struct {
	service DetailServiceInterface
}

// NewDetailHandler はDetailHandlerを生成する。
func NewDetailHandler(service DetailServiceInterface) *DetailHandler {
	return &DetailHandler{service: service}
}

// CompleteRegistration は詳細登録を処理する。
// POST /api/complete-registration
func (h *DetailHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var in detail.CompleteInput
	if err := decodeJSONBody(w, r, &in); err != nil {
		handleServiceError(w, r, err)
		return
	}
	// ボディがnullの場合はオブジェクトではない
	if in == nil {
		handleServiceError(w, r, model.NewInvalidJSONError())
		return
	}

	if _, err := h.service.Complete(r.Context(), in); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Cadastro completo realizado com sucesso!"})
}
