// Package model はドメインモデルを定義する。
package model

import "time"

// Registration は公聴会への初回登録（氏名・メール・電話）を表す。
// emailは全登録で一意で、詳細登録との紐付けに使う自然キーでもある。
type Registration struct {
	ID        int64
	Name      string
	Email     string
	Phone     *string
	Confirmed bool
	Timestamp time.Time
}

// NewRegistration は登録作成時の入力を表す。
// タイムスタンプはストアが割り当てるため含まない。
type NewRegistration struct {
	Name      string
	Email     string
	Phone     *string
	Confirmed bool
}

// DetailedRegistration は詳細登録（属性・所属機関・同意フラグ）を表す。
// RegistrationEmailで初回登録と論理的に紐付くが、参照整合性は保証しない。
type DetailedRegistration struct {
	ID                   int64
	RegistrationEmail    string
	RegistrationID       *int64 // 登録時に解決できた初回登録のID。未解決ならnil
	CPF                  *string
	Sexo                 *string
	Participacao         *string
	InstituicaoNome      *string
	Cidade               *string
	AreaAtuacao          *string
	Setor                *string
	Cargo                *string
	InstitTel            *string
	InstitEmail          *string
	ConfirmacaoDetalhada *string
	AceiteLGPD           bool
	AceiteComunicados    bool
	ContentHash          string
	Timestamp            time.Time
}

// NewDetailedRegistration は詳細登録作成時の入力を表す。
type NewDetailedRegistration struct {
	RegistrationEmail    string
	RegistrationID       *int64
	CPF                  *string
	Sexo                 *string
	Participacao         *string
	InstituicaoNome      *string
	Cidade               *string
	AreaAtuacao          *string
	Setor                *string
	Cargo                *string
	InstitTel            *string
	InstitEmail          *string
	ConfirmacaoDetalhada *string
	AceiteLGPD           bool
	AceiteComunicados    bool
	ContentHash          string
}
