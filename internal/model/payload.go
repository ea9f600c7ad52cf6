package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Truthy は任意のJSON値を真偽値に正規化する。
// 欠落とnullはfalse、それ以外は値の真偽性（false、0、空文字列、空配列、空オブジェクトはfalse）に従う。
// 解釈できない値はfalseとする。
func Truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// contentHashSeparator はハッシュ対象フィールドの区切り文字（ASCII Unit Separator）。
const contentHashSeparator = "\x1f"

// nilMarker はnilのフィールドを空文字列と区別するための値。
const nilMarker = "\x00"

// DetailContentHash は詳細登録の提出内容から自然キーを算出する。
// registration_emailと全フィールドを固定順で連結したSHA-256の16進表現で、
// タイムスタンプとregistration_idは含めない。同一内容の再提出や再移行は同じ値になる。
func DetailContentHash(d NewDetailedRegistration) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte(contentHashSeparator))
	}
	writePtr := func(p *string) {
		if p == nil {
			write(nilMarker)
			return
		}
		write(*p)
	}

	write(d.RegistrationEmail)
	writePtr(d.CPF)
	writePtr(d.Sexo)
	writePtr(d.Participacao)
	writePtr(d.InstituicaoNome)
	writePtr(d.Cidade)
	writePtr(d.AreaAtuacao)
	writePtr(d.Setor)
	writePtr(d.Cargo)
	writePtr(d.InstitTel)
	writePtr(d.InstitEmail)
	writePtr(d.ConfirmacaoDetalhada)
	write(strconv.FormatBool(d.AceiteLGPD))
	write(strconv.FormatBool(d.AceiteComunicados))

	return hex.EncodeToString(h.Sum(nil))
}
