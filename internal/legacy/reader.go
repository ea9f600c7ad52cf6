// Package legacy は旧アプリケーションが使っていた組み込みSQLiteファイルの読み取りを提供する。
//
// ファイルは読み取り専用（mode=ro, query_only）で開き、一切書き込まない。
// 旧スキーマにはemailの一意制約が無く、同意カラムも後から追加されたため、
// 重複行や同意カラムの欠落をそのまま受け入れる。
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hitoshi/audiencia/internal/model"
)

// ErrMissingTable は旧ファイルに必要なテーブルが存在しないことを表す。
var ErrMissingTable = errors.New("legacy table not found")

// Registration は旧ファイルの初回登録1行。
// IDは移行先でもそのまま使う。
type Registration struct {
	ID        int64
	Name      string
	Email     string
	Phone     *string
	Confirmed bool
	Timestamp *time.Time // 旧ファイルでNULLの場合はnil
}

// DetailedRegistration は旧ファイルの詳細登録1行。
// 旧IDは移行しないため持たない。
type DetailedRegistration struct {
	model.NewDetailedRegistration
	Timestamp *time.Time
}

// Reader は旧SQLiteファイルの読み取り器。
type Reader struct {
	db   *gorm.DB
	path string
}

// Open は旧SQLiteファイルを読み取り専用で開く。
// ファイルが存在しない場合はエラーを返す（空のファイルを新規作成しない）。
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("旧データファイルを開けません: %w", err)
	}

	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)", path)),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("旧データファイルのオープンに失敗しました: %w", err)
	}

	return &Reader{db: db, path: path}, nil
}

// Path は読み取り中のファイルパスを返す。
func (r *Reader) Path() string {
	return r.path
}

// Close は接続を閉じる。
func (r *Reader) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ReadRegistrations は初回登録を全件、旧IDの昇順で読み込む。
func (r *Reader) ReadRegistrations(ctx context.Context) ([]Registration, error) {
	cols, err := r.columns(ctx, "registrations")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("registrations: %w", ErrMissingTable)
	}

	rows, err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, email, phone,
		        CAST(COALESCE(confirmed, 0) AS INTEGER),
		        CAST(timestamp AS TEXT)
		 FROM registrations
		 ORDER BY id`,
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("旧初回登録の読み込みに失敗しました: %w", err)
	}
	defer rows.Close()

	regs := make([]Registration, 0)
	for rows.Next() {
		var (
			reg       Registration
			phone     sql.NullString
			confirmed int64
			ts        sql.NullString
		)
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Email, &phone, &confirmed, &ts); err != nil {
			return nil, fmt.Errorf("旧初回登録の読み取りに失敗しました: %w", err)
		}
		reg.Phone = nullStringPtr(phone)
		reg.Confirmed = confirmed != 0
		if reg.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("旧初回登録(id=%d)のtimestampを解釈できません: %w", reg.ID, err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("旧初回登録の走査に失敗しました: %w", err)
	}

	return regs, nil
}

// ReadDetailedRegistrations は詳細登録を全件、旧IDの昇順で読み込む。
// 同意カラムが無い古いファイルではfalseとして読む。
func (r *Reader) ReadDetailedRegistrations(ctx context.Context) ([]DetailedRegistration, error) {
	cols, err := r.columns(ctx, "detailed_registrations")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("detailed_registrations: %w", ErrMissingTable)
	}

	flag := func(name string) string {
		if cols[name] {
			return fmt.Sprintf("CAST(COALESCE(%s, 0) AS INTEGER)", name)
		}
		return "0"
	}

	query := `SELECT registration_email, cpf, sexo, participacao, instituicao_nome, cidade,
	                 area_atuacao, setor, cargo, instit_tel, instit_email, confirmacao_detalhada, ` +
		flag("aceite_lgpd") + `, ` + flag("aceite_comunicados") + `,
	                 CAST(timestamp AS TEXT)
	          FROM detailed_registrations
	          ORDER BY id`

	rows, err := r.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("旧詳細登録の読み込みに失敗しました: %w", err)
	}
	defer rows.Close()

	details := make([]DetailedRegistration, 0)
	for rows.Next() {
		var (
			email                         sql.NullString
			cpf, sexo, participacao       sql.NullString
			instituicao, cidade, area     sql.NullString
			setor, cargo, tel, instEmail  sql.NullString
			confirmacao                   sql.NullString
			aceiteLGPD, aceiteComunicados int64
			ts                            sql.NullString
		)
		if err := rows.Scan(
			&email, &cpf, &sexo, &participacao, &instituicao, &cidade,
			&area, &setor, &cargo, &tel, &instEmail, &confirmacao,
			&aceiteLGPD, &aceiteComunicados, &ts,
		); err != nil {
			return nil, fmt.Errorf("旧詳細登録の読み取りに失敗しました: %w", err)
		}

		d := DetailedRegistration{
			NewDetailedRegistration: model.NewDetailedRegistration{
				RegistrationEmail:    email.String,
				CPF:                  nullStringPtr(cpf),
				Sexo:                 nullStringPtr(sexo),
				Participacao:         nullStringPtr(participacao),
				InstituicaoNome:      nullStringPtr(instituicao),
				Cidade:               nullStringPtr(cidade),
				AreaAtuacao:          nullStringPtr(area),
				Setor:                nullStringPtr(setor),
				Cargo:                nullStringPtr(cargo),
				InstitTel:            nullStringPtr(tel),
				InstitEmail:          nullStringPtr(instEmail),
				ConfirmacaoDetalhada: nullStringPtr(confirmacao),
				AceiteLGPD:           aceiteLGPD != 0,
				AceiteComunicados:    aceiteComunicados != 0,
			},
		}
		if d.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("旧詳細登録のtimestampを解釈できません: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("旧詳細登録の走査に失敗しました: %w", err)
	}

	return details, nil
}

// tableColumn はPRAGMA table_infoの1行。
type tableColumn struct {
	CID       int     `gorm:"column:cid"`
	Name      string  `gorm:"column:name"`
	Type      string  `gorm:"column:type"`
	NotNull   int     `gorm:"column:notnull"`
	DfltValue *string `gorm:"column:dflt_value"`
	PK        int     `gorm:"column:pk"`
}

// columns はテーブルのカラム名集合を返す。テーブルが無い場合は空を返す。
func (r *Reader) columns(ctx context.Context, table string) (map[string]bool, error) {
	var info []tableColumn
	if err := r.db.WithContext(ctx).Raw("PRAGMA table_info(" + table + ")").Scan(&info).Error; err != nil {
		return nil, fmt.Errorf("%sのカラム情報の取得に失敗しました: %w", table, err)
	}

	cols := make(map[string]bool, len(info))
	for _, c := range info {
		cols[strings.ToLower(c.Name)] = true
	}
	return cols, nil
}

// timestampLayouts は旧ファイルに現れるタイムスタンプ表記。
// SQLiteのCURRENT_TIMESTAMPはタイムゾーン無しのUTCで記録される。
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// parseTimestamp はタイムスタンプ文字列を解釈する。NULLはnilを返す。
func parseTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(ns.String)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unsupported timestamp format %q", s)
}

// nullStringPtr はsql.NullStringを*stringに変換する。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
