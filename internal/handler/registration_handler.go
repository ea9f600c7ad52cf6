package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/registration"
)

// RegistrationServiceInterface は初回登録ハンドラーが必要とするサービスインターフェース。
type RegistrationServiceInterface interface {
	Register(ctx context.Context, in registration.RegisterInput) (int64, error)
}

// RegistrationHandler は初回登録のHTTPハンドラー。
type RegistrationHandler struct {
	service RegistrationServiceInterface
}

// NewRegistrationHandler はRegistrationHandlerを生成する。
func NewRegistrationHandler(service RegistrationServiceInterface) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// registerRequest は初回登録リクエストのボディ。
// confirmedはブラウザによって真偽値以外で送られることがあるため生のまま受け取る。
type registerRequest struct {
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Phone     *string         `json:"phone"`
	Confirmed json.RawMessage `json:"confirmed"`
}

// Register は初回登録を処理する。
// POST /api/register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	_, err := h.service.Register(r.Context(), registration.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Confirmed: model.Truthy(req.Confirmed),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Inscrição realizada com sucesso!"})
}
