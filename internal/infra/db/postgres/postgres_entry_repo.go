package postgres

import (
	"context"
	"errors"
	"fmt"

	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresEntryRepo indexes persisted knowledge entries for querying. The
// markdown file remains the source of truth; this table is the search index.
type PostgresEntryRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresEntryRepo(pool *pgxpool.Pool) *PostgresEntryRepo {
	return &PostgresEntryRepo{pool: pool}
}

func (r *PostgresEntryRepo) Insert(ctx context.Context, e *model.KnowledgeEntry, markdownPath string) error {
	const sql = `
INSERT INTO knowledge_entries
  (id, title, category, subcategory, source_url, platform, summary,
   difficulty, word_count, markdown_path, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, sql,
		e.ID, e.Title, string(e.Category), e.Subcategory, e.SourceURL, e.Platform,
		e.Summary, e.Difficulty, e.WordCount, markdownPath, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("Insert entry: %w", err)
	}
	return nil
}

func (r *PostgresEntryRepo) FindByID(ctx context.Context, id string) (*model.KnowledgeEntry, string, error) {
	const sql = `
SELECT id, title, category, subcategory, source_url, platform, summary,
       difficulty, word_count, markdown_path, created_at
  FROM knowledge_entries
 WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, sql, id)
	var (
		e    model.KnowledgeEntry
		cat  string
		path string
	)
	if err := row.Scan(&e.ID, &e.Title, &cat, &e.Subcategory, &e.SourceURL, &e.Platform,
		&e.Summary, &e.Difficulty, &e.WordCount, &path, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("FindByID entry: %w", err)
	}
	e.Category = model.Category(cat)
	return &e, path, nil
}

func (r *PostgresEntryRepo) ListByCategory(ctx context.Context, category model.Category, limit int) ([]*model.KnowledgeEntry, error) {
	const sql = `
SELECT id, title, category, subcategory, source_url, platform, summary,
       difficulty, word_count, created_at
  FROM knowledge_entries
 WHERE category = $1
 ORDER BY created_at DESC
 LIMIT $2;
`
	rows, err := r.pool.Query(ctx, sql, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("ListByCategory entries: %w", err)
	}
	defer rows.Close()

	var out []*model.KnowledgeEntry
	for rows.Next() {
		var (
			e   model.KnowledgeEntry
			cat string
		)
		if err := rows.Scan(&e.ID, &e.Title, &cat, &e.Subcategory, &e.SourceURL, &e.Platform,
			&e.Summary, &e.Difficulty, &e.WordCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Category = model.Category(cat)
		out = append(out, &e)
	}
	return out, rows.Err()
}
