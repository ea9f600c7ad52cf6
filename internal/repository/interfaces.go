// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/audiencia/internal/model"
)

// RegistrationRepository は初回登録データの永続化インターフェース。
// registrationsテーブルへの書き込みはこのリポジトリのみが行う。
type RegistrationRepository interface {
	// Create は初回登録を1トランザクションで作成し、採番されたIDを返す。
	// emailが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, reg model.NewRegistration) (int64, error)

	// List は初回登録の一覧をtimestamp降順で返す。
	// confirmedがnilの場合は全件、非nilの場合はconfirmedが一致する行のみを返す。
	List(ctx context.Context, confirmed *bool) ([]model.Registration, error)

	// FindIDByEmail はemailに一致する初回登録のIDを返す。見つからない場合はnilを返す。
	FindIDByEmail(ctx context.Context, email string) (*int64, error)
}

// DetailedRegistrationRepository は詳細登録データの永続化インターフェース。
// detailed_registrationsテーブルへの書き込みはこのリポジトリのみが行う。
type DetailedRegistrationRepository interface {
	// Create は詳細登録を1トランザクションで作成し、採番されたIDを返す。
	// 初回登録の存在確認は行わない。
	Create(ctx context.Context, detail model.NewDetailedRegistration) (int64, error)

	// List は詳細登録の全件をtimestamp降順で返す。
	List(ctx context.Context) ([]model.DetailedRegistration, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
