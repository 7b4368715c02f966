package persist

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	"telegram-knowledge-bot/internal/infra/db/postgres"
	"telegram-knowledge-bot/internal/infra/storage/markdown"
)

// Fanout saves an entry to every configured store. The markdown file is
// mandatory and its failure fails the save; the database index is best effort
// and only degrades the reported location.
type Fanout struct {
	files   *markdown.Store
	entries *postgres.PostgresEntryRepo // nil when no database is configured
	log     *zerolog.Logger
}

var _ adapter.Persistor = (*Fanout)(nil)

func NewFanout(files *markdown.Store, entries *postgres.PostgresEntryRepo, log *zerolog.Logger) *Fanout {
	return &Fanout{files: files, entries: entries, log: log}
}

func (f *Fanout) Save(ctx context.Context, e *model.KnowledgeEntry) (*model.PersistedLocation, error) {
	path, err := f.files.Write(ctx, e)
	if err != nil {
		return nil, err
	}

	saved := false
	if f.entries != nil {
		if err := f.entries.Insert(ctx, e, path); err != nil {
			f.log.Warn().Err(err).Str("entry_id", e.ID).Msg("database index failed, markdown saved")
		} else {
			saved = true
		}
	}

	return &model.PersistedLocation{
		EntryID:       e.ID,
		MarkdownPath:  path,
		DatabaseSaved: saved,
	}, nil
}
