package migration

import "fmt"

// Strategy は移行先への書き込み方法。エンティティごとに選択する。
type Strategy int

const (
	// InsertOrSkip は自然キーが既に存在する行を書き込まずにスキップする。
	// 初回登録はemail、詳細登録はcontent_hashを自然キーとする。
	InsertOrSkip Strategy = iota
	// InsertAlways は常に挿入する。再実行すると行が重複する。
	InsertAlways
)

// String はログ出力用の名前を返す。
func (s Strategy) String() string {
	switch s {
	case InsertOrSkip:
		return "insert_or_skip"
	case InsertAlways:
		return "insert_always"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// 初回登録の挿入。IDと旧タイムスタンプを引き継ぎ、タイムスタンプが無い場合は現在時刻を使う。
const (
	insertRegistrationSQL = `INSERT INTO registrations (id, name, email, phone, confirmed, timestamp)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, CURRENT_TIMESTAMP))`

	insertRegistrationOrSkipSQL = insertRegistrationSQL + `
		ON CONFLICT (email) DO NOTHING`
)

// 詳細登録の挿入。registration_idは同じトランザクション内で移行済みの初回登録から解決する。
const (
	detailedSelectList = `$1::text,
		(SELECT id FROM registrations WHERE email = $1::text),
		$2::text, $3::text, $4::text, $5::text, $6::text, $7::text,
		$8::text, $9::text, $10::text, $11::text, $12::text,
		$13::boolean, $14::boolean, $15::text,
		COALESCE($16::timestamptz, CURRENT_TIMESTAMP)`

	detailedInsertColumns = `INSERT INTO detailed_registrations (
		registration_email, registration_id,
		cpf, sexo, participacao, instituicao_nome, cidade, area_atuacao,
		setor, cargo, instit_tel, instit_email, confirmacao_detalhada,
		aceite_lgpd, aceite_comunicados, content_hash,
		timestamp
	)`

	insertDetailedSQL = detailedInsertColumns + ` VALUES (` + detailedSelectList + `)`

	insertDetailedOrSkipSQL = detailedInsertColumns + ` SELECT ` + detailedSelectList + `
		WHERE NOT EXISTS (
			SELECT 1 FROM detailed_registrations WHERE content_hash = $15::text
		)`
)

// content_hash導入前に保存された詳細登録の補完。
const (
	selectMissingContentHashSQL = `SELECT id, registration_email,
		cpf, sexo, participacao, instituicao_nome, cidade, area_atuacao,
		setor, cargo, instit_tel, instit_email, confirmacao_detalhada,
		aceite_lgpd, aceite_comunicados
		FROM detailed_registrations
		WHERE content_hash IS NULL
		ORDER BY id
		FOR UPDATE`

	updateContentHashSQL = `UPDATE detailed_registrations SET content_hash = $1 WHERE id = $2`
)

// 初回登録のIDを明示的に挿入した後、シーケンスを最大IDまで進める。
// テーブルが空の場合は次の採番が1になるように戻す。
const advanceRegistrationSequenceSQL = `SELECT setval(
	pg_get_serial_sequence('registrations', 'id'),
	COALESCE((SELECT MAX(id) FROM registrations), 1),
	(SELECT COUNT(*) > 0 FROM registrations)
)`

func registrationSQL(s Strategy) string {
	if s == InsertAlways {
		return insertRegistrationSQL
	}
	return insertRegistrationOrSkipSQL
}

func detailedSQL(s Strategy) string {
	if s == InsertOrSkip {
		return insertDetailedOrSkipSQL
	}
	return insertDetailedSQL
}
