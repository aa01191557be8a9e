package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"centroid/internal/coi"
	"centroid/internal/embedding"
)

// UpdateFn mutates a user's CoI set and tag weights in response to a single
// interaction. cois/tagWeights are the user's current state; the returned
// values become the new persisted state. Called while the per-user row lock
// is held, so concurrent interactions from the same user serialize and CoI
// state is linearizable per user (spec.md §4.6/§5).
type UpdateFn func(cois []coi.CoI, tagWeights map[string]int) ([]coi.CoI, map[string]int)

// UserSeen upserts the user's last_seen timestamp, creating the user row if
// it does not exist yet.
func (s *Store) UserSeen(ctx context.Context, tenant, userID string, ts time.Time) error {
	tbl := qualify(SchemaName(tenant), "users")
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s(user_id, last_seen) VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET last_seen=EXCLUDED.last_seen
	`, tbl), userID, ts)
	return err
}

// UpdateInteractions applies fn to a user's CoI/tag-weight state under a
// per-user row lock (SELECT ... FOR UPDATE on the users table), then
// persists the resulting CoIs and tag weights and, if storeHistory is set,
// appends an interactions row for each snippet id. The lock serializes
// concurrent log_reaction/log_view_time calls for the same user so CoI
// learning never races.
func (s *Store) UpdateInteractions(ctx context.Context, tenant, userID string, snippetIDs []string, subID int, storeHistory bool, ts time.Time, fn UpdateFn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	schema := SchemaName(tenant)
	usersTbl := qualify(schema, "users")

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s(user_id, last_seen) VALUES ($1,$2)
		ON CONFLICT (user_id) DO NOTHING
	`, usersTbl), userID, ts)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE user_id=$1 FOR UPDATE`, usersTbl), userID); err != nil {
		return err
	}

	cois, err := loadCoIs(ctx, tx, schema, userID)
	if err != nil {
		return err
	}
	tagWeights, err := loadTagWeights(ctx, tx, schema, userID)
	if err != nil {
		return err
	}

	newCoIs, newTagWeights := fn(cois, tagWeights)

	if err := replaceCoIs(ctx, tx, schema, userID, newCoIs); err != nil {
		return err
	}
	if err := replaceTagWeights(ctx, tx, schema, userID, newTagWeights); err != nil {
		return err
	}

	if storeHistory {
		interTbl := qualify(schema, "interactions")
		for _, snippetID := range snippetIDs {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s(user_id, document_id, sub_id, ts) VALUES ($1,$2,$3,$4)`, interTbl),
				userID, snippetID, subID, ts); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func loadCoIs(ctx context.Context, tx pgx.Tx, schema, userID string) ([]coi.CoI, error) {
	tbl := qualify(schema, "cois")
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT coi_id, point, view_count, view_time_seconds, last_view
		FROM %s WHERE user_id=$1 ORDER BY coi_id
	`, tbl), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coi.CoI
	for rows.Next() {
		var c coi.CoI
		var point []float32
		var viewTimeSeconds float64
		if err := rows.Scan(&c.ID, &point, &c.Stats.ViewCount, &viewTimeSeconds, &c.Stats.LastView); err != nil {
			return nil, err
		}
		c.Point = embedding.Vector(point)
		c.Stats.ViewTime = time.Duration(viewTimeSeconds * float64(time.Second))
		out = append(out, c)
	}
	return out, rows.Err()
}

func replaceCoIs(ctx context.Context, tx pgx.Tx, schema, userID string, cois []coi.CoI) error {
	tbl := qualify(schema, "cois")
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id=$1`, tbl), userID); err != nil {
		return err
	}
	for _, c := range cois {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s(coi_id, user_id, point, view_count, view_time_seconds, last_view)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tbl), c.ID, userID, []float32(c.Point), c.Stats.ViewCount, c.Stats.ViewTime.Seconds(), c.Stats.LastView)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadTagWeights(ctx context.Context, tx pgx.Tx, schema, userID string) (map[string]int, error) {
	tbl := qualify(schema, "tag_weights")
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT tag, weight FROM %s WHERE user_id=$1`, tbl), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var tag string
		var weight int
		if err := rows.Scan(&tag, &weight); err != nil {
			return nil, err
		}
		out[tag] = weight
	}
	return out, rows.Err()
}

func replaceTagWeights(ctx context.Context, tx pgx.Tx, schema, userID string, weights map[string]int) error {
	tbl := qualify(schema, "tag_weights")
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id=$1`, tbl), userID); err != nil {
		return err
	}
	for tag, weight := range weights {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s(user_id, tag, weight) VALUES ($1,$2,$3)`, tbl), userID, tag, weight); err != nil {
			return err
		}
	}
	return nil
}

// GetCoIs returns a user's current CoI set without locking, for read paths
// like recommend/search that only need to score against existing CoIs.
func (s *Store) GetCoIs(ctx context.Context, tenant, userID string) ([]coi.CoI, error) {
	return loadCoIsPool(ctx, s.pool, SchemaName(tenant), userID)
}

// GetTagWeights returns a user's current tag-weight map.
func (s *Store) GetTagWeights(ctx context.Context, tenant, userID string) (map[string]int, error) {
	tbl := qualify(SchemaName(tenant), "tag_weights")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT tag, weight FROM %s WHERE user_id=$1`, tbl), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var tag string
		var weight int
		if err := rows.Scan(&tag, &weight); err != nil {
			return nil, err
		}
		out[tag] = weight
	}
	return out, rows.Err()
}

// loadCoIsPool mirrors loadCoIs but runs against the pool directly (no tx),
// for unlocked reads.
func loadCoIsPool(ctx context.Context, pool *pgxpool.Pool, schema, userID string) ([]coi.CoI, error) {
	tbl := qualify(schema, "cois")
	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT coi_id, point, view_count, view_time_seconds, last_view
		FROM %s WHERE user_id=$1 ORDER BY coi_id
	`, tbl), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coi.CoI
	for rows.Next() {
		var c coi.CoI
		var point []float32
		var viewTimeSeconds float64
		if err := rows.Scan(&c.ID, &point, &c.Stats.ViewCount, &viewTimeSeconds, &c.Stats.LastView); err != nil {
			return nil, err
		}
		c.Point = embedding.Vector(point)
		c.Stats.ViewTime = time.Duration(viewTimeSeconds * float64(time.Second))
		out = append(out, c)
	}
	return out, rows.Err()
}
