package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bricklore/brickengine/internal/catalog"
)

const activeGenerationKey = "active_generation"

const itemColumns = `identity_key, name, set_number, theme, year, piece_count,
	minifigures, price, rating, description, source_name, contributing_sources,
	quality_score, embedding_text`

// ActiveGeneration returns the currently served snapshot generation, or
// ErrNoSnapshot when no load has completed yet.
func (s *Store) ActiveGeneration(ctx context.Context) (int64, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = $1`, activeGenerationKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoSnapshot
	}
	if err != nil {
		return 0, fmt.Errorf("read active generation: %w", err)
	}

	gen, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse active generation %q: %w", v, err)
	}
	return gen, nil
}

// ReplaceSnapshot writes a complete new snapshot and makes it the active
// generation in one transaction. Readers see either the previous snapshot
// or the full new one, never a mix. On any error the previous snapshot
// remains active. Superseded generations are pruned after the switch.
func (s *Store) ReplaceSnapshot(ctx context.Context, items []*catalog.LegoItem) (int64, error) {
	prev, err := s.ActiveGeneration(ctx)
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return 0, err
	}
	gen := prev + 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO items (generation, ` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		sources, err := json.Marshal(it.ContributingSources)
		if err != nil {
			return 0, fmt.Errorf("marshal sources for %s: %w", it.IdentityKey, err)
		}

		_, err = stmt.ExecContext(ctx, gen,
			it.IdentityKey, it.Name, it.SetNumber, it.Theme,
			nullInt(it.Year), nullInt(it.PieceCount), nullInt(it.Minifigures),
			nullFloat(it.Price), nullFloat(it.Rating),
			it.Description, it.SourceName, string(sources),
			it.QualityScore, it.EmbeddingText,
		)
		if err != nil {
			return 0, fmt.Errorf("insert item %s: %w", it.IdentityKey, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (k, v) VALUES ($1, $2)
		 ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
		activeGenerationKey, strconv.FormatInt(gen, 10))
	if err != nil {
		return 0, fmt.Errorf("activate generation %d: %w", gen, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE generation < $1`, gen); err != nil {
		return 0, fmt.Errorf("prune old generations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}

	s.logger.Info().
		Int64("generation", gen).
		Int("items", len(items)).
		Msg("Snapshot activated")
	return gen, nil
}

// GetItem retrieves one item from the active snapshot by identity key.
func (s *Store) GetItem(ctx context.Context, identityKey string) (*catalog.LegoItem, error) {
	gen, err := s.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE generation = $1 AND identity_key = $2`,
		gen, identityKey)

	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// GetItems retrieves the items for the given identity keys from the active
// snapshot. Missing keys are silently skipped; the result preserves the
// input order.
func (s *Store) GetItems(ctx context.Context, identityKeys []string) ([]*catalog.LegoItem, error) {
	if len(identityKeys) == 0 {
		return nil, nil
	}

	gen, err := s.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(identityKeys))
	args := make([]interface{}, 0, len(identityKeys)+1)
	args = append(args, gen)
	for i, key := range identityKeys {
		placeholders[i] = "$" + strconv.Itoa(i+2)
		args = append(args, key)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE generation = $1 AND identity_key IN (`+
			strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]*catalog.LegoItem, len(identityKeys))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		byKey[it.IdentityKey] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	items := make([]*catalog.LegoItem, 0, len(byKey))
	for _, key := range identityKeys {
		if it, ok := byKey[key]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

// ListItems returns items from the active snapshot matching the filter,
// ordered by quality score descending. A nil filter matches everything.
func (s *Store) ListItems(ctx context.Context, filter *catalog.Filter, limit, offset int) ([]*catalog.LegoItem, error) {
	gen, err := s.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"generation = $1"}
	args := []interface{}{gen}
	next := func() string { return "$" + strconv.Itoa(len(args)+1) }

	if filter != nil {
		if filter.Theme != "" {
			where = append(where, "LOWER(theme) = LOWER("+next()+")")
			args = append(args, filter.Theme)
		}
		if filter.YearMin != nil {
			where = append(where, "year >= "+next())
			args = append(args, *filter.YearMin)
		}
		if filter.YearMax != nil {
			where = append(where, "year <= "+next())
			args = append(args, *filter.YearMax)
		}
		if filter.PriceMin != nil {
			where = append(where, "price >= "+next())
			args = append(args, *filter.PriceMin)
		}
		if filter.PriceMax != nil {
			where = append(where, "price <= "+next())
			args = append(args, *filter.PriceMax)
		}
		if filter.PiecesMin != nil {
			where = append(where, "piece_count >= "+next())
			args = append(args, *filter.PiecesMin)
		}
		if filter.PiecesMax != nil {
			where = append(where, "piece_count <= "+next())
			args = append(args, *filter.PiecesMax)
		}
		if filter.MinQuality > 0 {
			where = append(where, "quality_score >= "+next())
			args = append(args, filter.MinQuality)
		}
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY quality_score DESC, identity_key`
	if limit > 0 {
		query += " LIMIT " + next()
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET " + next()
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// AllItems returns every item in the active snapshot. Used to rebuild the
// vector index, so order is made deterministic by identity key.
func (s *Store) AllItems(ctx context.Context) ([]*catalog.LegoItem, error) {
	gen, err := s.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE generation = $1 ORDER BY identity_key`, gen)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*catalog.LegoItem, error) {
	var (
		it      catalog.LegoItem
		year    sql.NullInt64
		pieces  sql.NullInt64
		figs    sql.NullInt64
		price   sql.NullFloat64
		rating  sql.NullFloat64
		sources string
	)

	err := row.Scan(
		&it.IdentityKey, &it.Name, &it.SetNumber, &it.Theme,
		&year, &pieces, &figs, &price, &rating,
		&it.Description, &it.SourceName, &sources,
		&it.QualityScore, &it.EmbeddingText,
	)
	if err != nil {
		return nil, err
	}

	it.Year = fromNullInt(year)
	it.PieceCount = fromNullInt(pieces)
	it.Minifigures = fromNullInt(figs)
	it.Price = fromNullFloat(price)
	it.Rating = fromNullFloat(rating)

	if err := json.Unmarshal([]byte(sources), &it.ContributingSources); err != nil {
		return nil, fmt.Errorf("unmarshal sources for %s: %w", it.IdentityKey, err)
	}
	return &it, nil
}

func collectItems(rows *sql.Rows) ([]*catalog.LegoItem, error) {
	var items []*catalog.LegoItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
