// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, consent, conflict, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeConsentRequired      = "CONSENT_REQUIRED"
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryConsent    = "consent"
	CategoryConflict   = "conflict"
	CategorySystem     = "system"
)

// NewValidationError は初回登録の必須項目（nameとemail）が空の場合のエラーを生成する。
func NewValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Nome e email são campos obrigatórios.",
		Category: CategoryValidation,
		Action:   "Preencha nome e email e envie novamente.",
	}
}

// NewMissingRequiredFieldError は詳細登録の必須項目がペイロードに存在しない場合のエラーを生成する。
// missingには欠落したフィールド名を定義順で渡す。
func NewMissingRequiredFieldError(missing []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingRequiredField,
		Message:  fmt.Sprintf("Campos obrigatórios ausentes: %s", strings.Join(missing, ", ")),
		Category: CategoryValidation,
		Action:   "Preencha todos os campos obrigatórios do formulário.",
	}
}

// NewConsentRequiredError はLGPD同意が明示的にtrueでない場合のエラーを生成する。
// 入力形式のエラーとは区別し、UIが専用のメッセージを表示できるようにする。
func NewConsentRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConsentRequired,
		Message:  "O aceite dos termos da LGPD é obrigatório.",
		Category: CategoryConsent,
		Action:   "Marque a opção de aceite dos termos da LGPD para concluir o cadastro.",
	}
}

// NewDuplicateEmailError はメールアドレスが既に登録済みの場合のエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "Este email já está inscrito.",
		Category: CategoryConflict,
		Action:   "Utilize outro email ou prossiga para o cadastro completo.",
	}
}

// NewInvalidJSONError はリクエストボディがJSONオブジェクトとして解釈できない場合のエラーを生成する。
func NewInvalidJSONError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJSON,
		Message:  "Corpo da requisição inválido.",
		Category: CategoryValidation,
		Action:   "Envie um objeto JSON válido.",
	}
}

// NewRateLimitedError は同一クライアントからの送信が多すぎる場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Muitas requisições. Tente novamente mais tarde.",
		Category: CategorySystem,
		Action:   "Aguarde o tempo indicado em Retry-After e envie novamente.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
// 詳細はログのみに記録し、呼び出し元には返さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocorreu um erro no servidor.",
		Category: CategorySystem,
		Action:   "Tente novamente em alguns instantes.",
	}
}
