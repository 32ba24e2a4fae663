package postgres

import (
	"context"
	"encoding/json"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/repository"
	"studio-sync-engine/internal/infra/security"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"
)

var _ repository.HistoryRepository = (*historyRepo)(nil)

// historyRepo persists finished generations. Story text is sealed with the
// content cipher before it is written; media refs and metadata stay plain.
type historyRepo struct {
	pool   *pgxpool.Pool
	cipher *security.ContentCipher
	keep   int
}

// NewHistoryRepo builds the repo. keep caps the rows retained per user;
// zero or negative disables trimming.
func NewHistoryRepo(pool *pgxpool.Pool, cipher *security.ContentCipher, keep int) *historyRepo {
	return &historyRepo{
		pool:   pool,
		cipher: cipher,
		keep:   keep,
	}
}

func (r *historyRepo) Record(ctx context.Context, tx repository.Tx, item *model.HistoryItem) error {
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	sealed, err := r.cipher.Seal(item.Content)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(item.Meta)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO history_items (id, user_id, kind, source_id, content, media_ref, ephemeral, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, kind, source_id) DO UPDATE SET
  content = EXCLUDED.content,
  media_ref = EXCLUDED.media_ref,
  ephemeral = EXCLUDED.ephemeral,
  meta = EXCLUDED.meta;`

	_, err = execSQL(ctx, r.pool, tx, q,
		item.ID, item.UserID, string(item.Kind), item.SourceID, sealed, item.MediaRef, item.Ephemeral, meta, item.CreatedAt)
	if err != nil {
		return err
	}

	if r.keep > 0 {
		const trim = `
DELETE FROM history_items
WHERE user_id = $1
  AND id NOT IN (
    SELECT id FROM history_items WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
  );`
		if _, err := execSQL(ctx, r.pool, tx, trim, item.UserID, r.keep); err != nil {
			return err
		}
	}
	return nil
}

func (r *historyRepo) Replace(ctx context.Context, tx repository.Tx, item *model.HistoryItem) error {
	meta, err := json.Marshal(item.Meta)
	if err != nil {
		return err
	}

	const q = `
UPDATE history_items SET
  media_ref = $2,
  ephemeral = $3,
  meta = $4
WHERE id = $1;`

	_, err = execSQL(ctx, r.pool, tx, q, item.ID, item.MediaRef, item.Ephemeral, meta)
	return err
}

func (r *historyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]model.HistoryItem, error) {
	const q = `
SELECT id, user_id, kind, source_id, content, media_ref, ephemeral, meta, created_at
FROM history_items
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`

	rows, err := pickRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.HistoryItem, 0, limit)
	for rows.Next() {
		var (
			it      model.HistoryItem
			kind    string
			sealed  string
			rawMeta []byte
		)
		if err := rows.Scan(&it.ID, &it.UserID, &kind, &it.SourceID, &sealed, &it.MediaRef, &it.Ephemeral, &rawMeta, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Kind = model.ContentKind(kind)

		// A row that no longer opens under the current key is dropped from
		// the feed rather than poisoning the whole list.
		content, err := r.cipher.Open(sealed)
		if err != nil {
			continue
		}
		it.Content = content

		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &it.Meta); err != nil {
				return nil, err
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *historyRepo) PruneOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM history_items WHERE created_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
