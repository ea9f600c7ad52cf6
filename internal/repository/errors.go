package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// ErrDuplicateEmail はregistrations.emailの一意制約違反を表す。
// 呼び出し元は汎用的なDBエラーと区別してerrors.Isで判定できる。
var ErrDuplicateEmail = errors.New("registration email already exists")

// isUniqueViolation はエラーがPostgreSQLの一意制約違反（SQLSTATE 23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}
