package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/rodolfot/ebooks/internal/pkg/cache"
)

const cacheTTL = time.Hour

// Repository reads catalog entries and maintains sales counters. Per-id
// reads go through a Redis read-through cache; cache failures degrade to
// the database, never to an error.
type Repository struct {
	db    *sql.DB
	cache cache.Cache
}

func NewRepository(db *sql.DB, c cache.Cache) *Repository {
	return &Repository{db: db, cache: c}
}

// FindPublished resolves the given ids against currently published catalog
// entries. If any id is missing or unpublished the whole call fails with
// ErrUnavailable — a cart must resolve completely or not at all.
func (r *Repository) FindPublished(ctx context.Context, ids []string) ([]Ebook, error) {
	found := make(map[string]Ebook, len(ids))
	var misses []string

	for _, id := range ids {
		if e, ok := r.cachedGet(ctx, id); ok && e.Status == StatusPublished {
			found[id] = e
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		const q = `
			SELECT id, title, price, status, sales_count
			FROM ebooks
			WHERE id = ANY($1) AND status = $2`
		rows, err := r.db.QueryContext(ctx, q, pq.Array(misses), string(StatusPublished))
		if err != nil {
			return nil, fmt.Errorf("catalog: find published: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e Ebook
			var status string
			if err := rows.Scan(&e.ID, &e.Title, &e.Price, &status, &e.SalesCount); err != nil {
				return nil, fmt.Errorf("catalog: scan ebook: %w", err)
			}
			e.Status = EbookStatus(status)
			found[e.ID] = e
			r.cachedSet(ctx, e)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("catalog: find published: %w", err)
		}
	}

	out := make([]Ebook, 0, len(ids))
	for _, id := range ids {
		e, ok := found[id]
		if !ok {
			return nil, ErrUnavailable
		}
		out = append(out, e)
	}
	return out, nil
}

// IncrementSales bumps the per-ebook sales counter and invalidates the
// cached entry. A plain increment: under high concurrency the counter may
// briefly lag, which is acceptable for a storefront badge.
func (r *Repository) IncrementSales(ctx context.Context, ebookID string) error {
	const q = `UPDATE ebooks SET sales_count = sales_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, ebookID); err != nil {
		return fmt.Errorf("catalog: increment sales: %w", err)
	}
	if err := r.cache.Delete(ctx, r.cache.GenerateKey("ebook", ebookID)); err != nil {
		slog.WarnContext(ctx, "catalog cache invalidation failed", "ebook_id", ebookID, "error", err)
	}
	return nil
}

func (r *Repository) cachedGet(ctx context.Context, id string) (Ebook, bool) {
	raw, err := r.cache.Get(ctx, r.cache.GenerateKey("ebook", id))
	if err != nil {
		slog.WarnContext(ctx, "catalog cache read failed", "ebook_id", id, "error", err)
		return Ebook{}, false
	}
	if raw == "" {
		return Ebook{}, false
	}
	var e Ebook
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Ebook{}, false
	}
	return e, true
}

func (r *Repository) cachedSet(ctx context.Context, e Ebook) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, r.cache.GenerateKey("ebook", e.ID), raw, cacheTTL); err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "ebook_id", e.ID, "error", err)
	}
}
