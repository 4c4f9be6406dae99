package pg

import (
	"context"
	"embed"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/relayctl/internal/migrate"
)

// CommandLog 一次继电器指令的记录
type CommandLog struct {
	ID         string    `json:"id"`          // 指令ID（uuid）
	DeviceAddr string    `json:"device_addr"` // 目标 host:port
	Cmd        string    `json:"cmd"`         // 命令名，如 set_relay
	Arg1       int       `json:"arg1"`        // 继电器编号或位图
	Arg2       int       `json:"arg2"`
	Result     string    `json:"result"`              // ok|device_error|protocol_error|transport_error|rejected
	ErrorMsg   string    `json:"error_msg,omitempty"` // 成功为空
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository 指令日志持久化
type Repository struct {
	Pool *pgxpool.Pool
}

//go:embed migrations/*.sql
var migrations embed.FS

// EnsureSchema 执行内置迁移（幂等）
func (r *Repository) EnsureSchema(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	_, err = migrate.Runner{FS: sub}.Up(ctx, r.Pool)
	return err
}

// InsertCommand 插入指令日志
func (r *Repository) InsertCommand(ctx context.Context, l CommandLog) error {
	const q = `INSERT INTO relay_cmd_log (id, device_addr, cmd, arg1, arg2, result, error_msg, duration_ms, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.Pool.Exec(ctx, q, l.ID, l.DeviceAddr, l.Cmd, l.Arg1, l.Arg2, l.Result, l.ErrorMsg, l.DurationMs, createdAt)
	return err
}

// ListRecent 按时间倒序返回某设备最近的指令
func (r *Repository) ListRecent(ctx context.Context, deviceAddr string, limit int) ([]CommandLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `SELECT id::text, device_addr, cmd, arg1, arg2, result, COALESCE(error_msg,''), duration_ms, created_at
               FROM relay_cmd_log WHERE device_addr=$1
               ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, deviceAddr, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCommandLog)
}

func scanCommandLog(row pgx.CollectableRow) (CommandLog, error) {
	var l CommandLog
	var arg1, arg2 int16
	err := row.Scan(&l.ID, &l.DeviceAddr, &l.Cmd, &arg1, &arg2, &l.Result, &l.ErrorMsg, &l.DurationMs, &l.CreatedAt)
	l.Arg1, l.Arg2 = int(arg1), int(arg2)
	return l, err
}
