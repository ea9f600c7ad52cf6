package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/audiencia/internal/model"
)

// PostgresDetailedRegistrationRepo はPostgreSQLを使用した詳細登録リポジトリ。
type PostgresDetailedRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresDetailedRegistrationRepo はPostgresDetailedRegistrationRepoを生成する。
func NewPostgresDetailedRegistrationRepo(db *sql.DB) *PostgresDetailedRegistrationRepo {
	return &PostgresDetailedRegistrationRepo{db: db}
}

// detailedColumns はSELECT時のカラム順。scanDetailedRegistrationと一致させること。
const detailedColumns = `id, registration_email, registration_id, cpf, sexo, participacao,
	instituicao_nome, cidade, area_atuacao, setor, cargo, instit_tel, instit_email,
	confirmacao_detalhada, aceite_lgpd, aceite_comunicados, COALESCE(content_hash, ''), timestamp`

// Create は詳細登録を作成する。
// registration_emailに対応する初回登録の存在は確認しない。
func (r *PostgresDetailedRegistrationRepo) Create(ctx context.Context, d model.NewDetailedRegistration) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO detailed_registrations (
			registration_email, registration_id, cpf, sexo, participacao,
			instituicao_nome, cidade, area_atuacao, setor, cargo,
			instit_tel, instit_email, confirmacao_detalhada,
			aceite_lgpd, aceite_comunicados, content_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		d.RegistrationEmail, d.RegistrationID, d.CPF, d.Sexo, d.Participacao,
		d.InstituicaoNome, d.Cidade, d.AreaAtuacao, d.Setor, d.Cargo,
		d.InstitTel, d.InstitEmail, d.ConfirmacaoDetalhada,
		d.AceiteLGPD, d.AceiteComunicados, d.ContentHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("詳細登録の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return id, nil
}

// List は詳細登録の全件を新しい順に返す。
func (r *PostgresDetailedRegistrationRepo) List(ctx context.Context) ([]model.DetailedRegistration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+detailedColumns+`
		 FROM detailed_registrations
		 ORDER BY timestamp DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("詳細登録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	details := make([]model.DetailedRegistration, 0)
	for rows.Next() {
		d, err := scanDetailedRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("詳細登録の読み取りに失敗しました: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("詳細登録一覧の走査に失敗しました: %w", err)
	}

	return details, nil
}

// scanDetailedRegistration は1行をDetailedRegistrationに読み込む。
func scanDetailedRegistration(rows *sql.Rows) (model.DetailedRegistration, error) {
	var d model.DetailedRegistration
	err := rows.Scan(
		&d.ID, &d.RegistrationEmail, &d.RegistrationID, &d.CPF, &d.Sexo, &d.Participacao,
		&d.InstituicaoNome, &d.Cidade, &d.AreaAtuacao, &d.Setor, &d.Cargo,
		&d.InstitTel, &d.InstitEmail, &d.ConfirmacaoDetalhada,
		&d.AceiteLGPD, &d.AceiteComunicados, &d.ContentHash, &d.Timestamp,
	)
	return d, err
}

// compile-time interface check
var _ DetailedRegistrationRepository = (*PostgresDetailedRegistrationRepo)(nil)
