package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/audiencia/internal/model"
)

// PostgresRegistrationRepo はPostgreSQLを使用した初回登録リポジトリ。
type PostgresRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresRegistrationRepo はPostgresRegistrationRepoを生成する。
func NewPostgresRegistrationRepo(db *sql.DB) *PostgresRegistrationRepo {
	return &PostgresRegistrationRepo{db: db}
}

// Create は初回登録を作成する。
// timestampはカラムのDEFAULTで割り当て、呼び出し元からは受け取らない。
func (r *PostgresRegistrationRepo) Create(ctx context.Context, reg model.NewRegistration) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO registrations (name, email, phone, confirmed)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		reg.Name, reg.Email, reg.Phone, reg.Confirmed,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("初回登録の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return id, nil
}

// List は初回登録の一覧を新しい順に返す。
// 同一timestampの行はid降順で並べ、挿入の新しい順を保つ。
func (r *PostgresRegistrationRepo) List(ctx context.Context, confirmed *bool) ([]model.Registration, error) {
	query := `SELECT id, name, email, phone, confirmed, timestamp FROM registrations`
	var args []any
	if confirmed != nil {
		query += ` WHERE confirmed = $1`
		args = append(args, *confirmed)
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("初回登録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	regs := make([]model.Registration, 0)
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(
			&reg.ID, &reg.Name, &reg.Email, &reg.Phone, &reg.Confirmed, &reg.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("初回登録の読み取りに失敗しました: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("初回登録一覧の走査に失敗しました: %w", err)
	}

	return regs, nil
}

// FindIDByEmail はemailに一致する初回登録のIDを返す。見つからない場合はnilを返す。
func (r *PostgresRegistrationRepo) FindIDByEmail(ctx context.Context, email string) (*int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM registrations WHERE email = $1`,
		email,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("emailによる初回登録の検索に失敗しました: %w", err)
	}

	return &id, nil
}

// compile-time interface check
var _ RegistrationRepository = (*PostgresRegistrationRepo)(nil)
