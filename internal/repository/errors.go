package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// 写入路径错误分类。重复/过期快照是重试轮询下的正常现象，
// 会话不变量错误则表示状态机和写入器出现分歧，必须向外暴露。
var (
	ErrDuplicateSnapshot  = errors.New("duplicate snapshot")
	ErrStaleSnapshot      = errors.New("stale snapshot")
	ErrSessionAlreadyOpen = errors.New("session already open")
	ErrNoOpenSession      = errors.New("no open session")
)

// Postgres 错误码
const pgUniqueViolation = "23505"

// isUniqueViolation 判断是否唯一约束冲突
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
