package notification

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/shopgate/pkg/apperror"
	"github.com/nao1215/shopgate/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Notification は通知。
type Notification struct {
	ID      int64           `json:"id"`
	To      string          `json:"to"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
	Read    bool            `json:"read"`
	TS      time.Time       `json:"ts"`
}

// Repository は通知の永続化を担当する。
type Repository struct {
	db *sql.DB
}

// OpenRepository はインメモリSQLiteを開き、マイグレーションを適用する。
// インメモリDBは接続ごとに別物になるため、接続数を1に固定する。
func OpenRepository(ctx context.Context, log *zap.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert は通知を保存し、採番したIDを設定して返す。
func (r *Repository) Insert(ctx context.Context, n Notification) (Notification, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (recipient, type, title, message, payload, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		n.To, n.Type, n.Title, n.Message, string(n.Payload), n.TS.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Notification{}, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Notification{}, fmt.Errorf("通知IDの取得に失敗: %w", err)
	}
	n.ID = id
	return n, nil
}

const selectColumns = `SELECT id, recipient, type, title, message, payload, is_read, ts FROM notifications`

// List は全通知を作成順に返す。
func (r *Repository) List(ctx context.Context) ([]Notification, error) {
	return r.query(ctx, selectColumns+` ORDER BY id`)
}

// ListByRecipient は通知先が一致する通知を作成順に返す。
func (r *Repository) ListByRecipient(ctx context.Context, recipient string) ([]Notification, error) {
	return r.query(ctx, selectColumns+` WHERE recipient = ? ORDER BY id`, recipient)
}

// Get は通知を返す。存在しない場合は NotFound を返す。
func (r *Repository) Get(ctx context.Context, id int64) (Notification, error) {
	list, err := r.query(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return Notification{}, err
	}
	if len(list) == 0 {
		return Notification{}, apperror.Newf(apperror.KindNotFound, "通知が見つかりません: id=%d", id)
	}
	return list[0], nil
}

// MarkAsRead は通知先が一致する通知を既読にする。
// 存在しなければ NotFound、通知先が異なれば Forbidden を返す。
func (r *Repository) MarkAsRead(ctx context.Context, id int64, recipient string) (Notification, error) {
	n, err := r.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.To != recipient {
		return Notification{}, apperror.New(apperror.KindForbidden, "この通知を操作する権限がありません")
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return Notification{}, fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	n.Read = true
	return n, nil
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]Notification, 0)
	for rows.Next() {
		var (
			n       Notification
			payload string
			ts      string
		)
		if err := rows.Scan(&n.ID, &n.To, &n.Type, &n.Title, &n.Message, &payload, &n.Read, &ts); err != nil {
			return nil, fmt.Errorf("通知の読み取りに失敗: %w", err)
		}
		n.Payload = json.RawMessage(payload)
		if n.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("通知の作成日時が不正です: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return list, nil
}
