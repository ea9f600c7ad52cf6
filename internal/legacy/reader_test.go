package legacy

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 旧アプリケーションが作成していたスキーマ。emailに一意制約が無い。
const legacyRegistrationsDDL = `CREATE TABLE registrations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT,
	confirmed BOOLEAN,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const legacyDetailsDDL = `CREATE TABLE detailed_registrations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	registration_email TEXT NOT NULL,
	cpf TEXT,
	sexo TEXT,
	participacao TEXT,
	instituicao_nome TEXT,
	cidade TEXT,
	area_atuacao TEXT,
	setor TEXT,
	cargo TEXT,
	instit_tel TEXT,
	instit_email TEXT,
	confirmacao_detalhada TEXT,
	aceite_lgpd BOOLEAN,
	aceite_comunicados BOOLEAN,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// 同意カラムが追加される前のスキーマ。
const legacyDetailsWithoutConsentDDL = `CREATE TABLE detailed_registrations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	registration_email TEXT NOT NULL,
	cpf TEXT,
	sexo TEXT,
	participacao TEXT,
	instituicao_nome TEXT,
	cidade TEXT,
	area_atuacao TEXT,
	setor TEXT,
	cargo TEXT,
	instit_tel TEXT,
	instit_email TEXT,
	confirmacao_detalhada TEXT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// createFixture は書き込み可能な接続で旧SQLiteファイルを作成し、閉じてからパスを返す。
func createFixture(t *testing.T, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inscricoes.db")
	db, err := gorm.Open(sqlite.Open("file:"+path), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error, stmt)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	return path
}

func openFixture(t *testing.T, path string) *Reader {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}

func TestReader_ReadRegistrations(t *testing.T) {
	path := createFixture(t,
		legacyRegistrationsDDL,
		`INSERT INTO registrations (id, name, email, phone, confirmed, timestamp)
		 VALUES (3, 'Ana', 'ana@example.com', '11999990000', 1, '2024-03-01 10:15:00')`,
		`INSERT INTO registrations (id, name, email, phone, confirmed, timestamp)
		 VALUES (1, 'Bia', 'bia@example.com', NULL, 0, '2024-02-28 08:00:00.123456')`,
		// 旧スキーマでは同一emailの重複が許されていた
		`INSERT INTO registrations (id, name, email, phone, confirmed, timestamp)
		 VALUES (7, 'Ana de novo', 'ana@example.com', NULL, NULL, NULL)`,
	)
	r := openFixture(t, path)

	regs, err := r.ReadRegistrations(context.Background())
	require.NoError(t, err)
	require.Len(t, regs, 3)

	// 旧IDの昇順
	assert.Equal(t, []int64{1, 3, 7}, []int64{regs[0].ID, regs[1].ID, regs[2].ID})

	bia := regs[0]
	assert.Equal(t, "Bia", bia.Name)
	assert.Nil(t, bia.Phone)
	assert.False(t, bia.Confirmed)
	require.NotNil(t, bia.Timestamp)
	assert.Equal(t, time.Date(2024, 2, 28, 8, 0, 0, 123456000, time.UTC), *bia.Timestamp)

	ana := regs[1]
	require.NotNil(t, ana.Phone)
	assert.Equal(t, "11999990000", *ana.Phone)
	assert.True(t, ana.Confirmed)
	require.NotNil(t, ana.Timestamp)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), *ana.Timestamp)

	dup := regs[2]
	assert.Equal(t, "ana@example.com", dup.Email)
	assert.False(t, dup.Confirmed)
	assert.Nil(t, dup.Timestamp)
}

func TestReader_ReadDetailedRegistrations(t *testing.T) {
	path := createFixture(t,
		legacyDetailsDDL,
		`INSERT INTO detailed_registrations
		 (registration_email, cpf, sexo, participacao, cidade, confirmacao_detalhada, aceite_lgpd, aceite_comunicados, timestamp)
		 VALUES ('ana@example.com', '123.456.789-00', 'F', 'presencial', 'Recife', 'sim', 1, 0, '2024-03-02T09:00:00')`,
		`INSERT INTO detailed_registrations
		 (registration_email, cpf, sexo, participacao, confirmacao_detalhada, aceite_lgpd, aceite_comunicados)
		 VALUES ('sem-cadastro@example.com', NULL, 'M', 'online', 'sim', 1, 1)`,
	)
	r := openFixture(t, path)

	details, err := r.ReadDetailedRegistrations(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 2)

	first := details[0]
	assert.Equal(t, "ana@example.com", first.RegistrationEmail)
	require.NotNil(t, first.CPF)
	assert.Equal(t, "123.456.789-00", *first.CPF)
	require.NotNil(t, first.Cidade)
	assert.Equal(t, "Recife", *first.Cidade)
	assert.Nil(t, first.InstituicaoNome)
	assert.True(t, first.AceiteLGPD)
	assert.False(t, first.AceiteComunicados)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), *first.Timestamp)

	second := details[1]
	assert.Nil(t, second.CPF)
	assert.True(t, second.AceiteComunicados)
	// DEFAULT CURRENT_TIMESTAMPで記録された値も読める
	assert.NotNil(t, second.Timestamp)
	// 旧ファイルには解決済みIDもハッシュも無い
	assert.Nil(t, second.RegistrationID)
	assert.Empty(t, second.ContentHash)
}

func TestReader_ReadDetailedRegistrations_WithoutConsentColumns(t *testing.T) {
	path := createFixture(t,
		legacyDetailsWithoutConsentDDL,
		`INSERT INTO detailed_registrations (registration_email, cpf, sexo, participacao, confirmacao_detalhada)
		 VALUES ('ana@example.com', '1', 'F', 'presencial', 'sim')`,
	)
	r := openFixture(t, path)

	details, err := r.ReadDetailedRegistrations(context.Background())
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.False(t, details[0].AceiteLGPD)
	assert.False(t, details[0].AceiteComunicados)
}

func TestReader_MissingTable(t *testing.T) {
	path := createFixture(t, legacyRegistrationsDDL)
	r := openFixture(t, path)

	_, err := r.ReadDetailedRegistrations(context.Background())
	assert.True(t, errors.Is(err, ErrMissingTable), "got %v", err)
}

func TestReader_BadTimestamp(t *testing.T) {
	path := createFixture(t,
		legacyRegistrationsDDL,
		`INSERT INTO registrations (id, name, email, timestamp) VALUES (1, 'Ana', 'ana@example.com', 'ontem')`,
	)
	r := openFixture(t, path)

	_, err := r.ReadRegistrations(context.Background())
	assert.Error(t, err)
}

func TestReader_IsReadOnly(t *testing.T) {
	path := createFixture(t, legacyRegistrationsDDL)
	r := openFixture(t, path)

	err := r.db.Exec(`INSERT INTO registrations (name, email) VALUES ('x', 'x@example.com')`).Error
	assert.Error(t, err, "writes through the legacy reader must fail")

	regs, err := r.ReadRegistrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, regs)
	assert.Equal(t, path, r.Path())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
	}{
		{name: "sqlite既定", in: "2024-03-01 10:15:00"},
		{name: "ISO形式", in: "2024-03-01T10:15:00"},
		{name: "RFC3339", in: "2024-03-01T10:15:00Z"},
		{name: "オフセット付き", in: "2024-03-01 07:15:00-03:00"},
		{name: "前後空白", in: "  2024-03-01 10:15:00 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(nullString(tt.in))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, want.Equal(*got), "got %v", got)
		})
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
