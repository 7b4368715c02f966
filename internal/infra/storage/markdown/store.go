package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
)

// Store writes knowledge entries as markdown files under
// {base}/{category}/{id}-{slug}.md with generated diagrams alongside. Files
// are created exclusively: a path collision is an error, never an overwrite.
type Store struct {
	base string
	log  *zerolog.Logger
}

func NewStore(base string, log *zerolog.Logger) *Store {
	return &Store{base: base, log: log}
}

// Write persists the entry and its image sidecars, returning the markdown
// file path.
func (s *Store) Write(ctx context.Context, e *model.KnowledgeEntry) (string, error) {
	dir := filepath.Join(s.base, string(e.Category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create category dir: %w", err)
	}

	path := filepath.Join(dir, e.ID+"-"+Slug(e.Title)+".md")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", domain.ErrFileCollision
		}
		return "", fmt.Errorf("create entry file: %w", err)
	}

	if _, err := f.WriteString(render(e)); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write entry file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	for _, img := range e.Images {
		imgPath := filepath.Join(dir, img.FileName)
		if err := os.WriteFile(imgPath, img.Data, 0o644); err != nil {
			// Missing diagram degrades the entry, it does not lose it.
			s.log.Warn().Err(err).Str("path", imgPath).Msg("failed to write image sidecar")
		}
	}

	return path, nil
}

func render(e *model.KnowledgeEntry) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", e.ID)
	fmt.Fprintf(&b, "title: %q\n", e.Title)
	fmt.Fprintf(&b, "category: %s\n", e.Category)
	fmt.Fprintf(&b, "subcategory: %s\n", e.Subcategory)
	fmt.Fprintf(&b, "source: %s\n", e.SourceURL)
	fmt.Fprintf(&b, "platform: %s\n", e.Platform)
	if e.Difficulty != "" {
		fmt.Fprintf(&b, "difficulty: %s\n", e.Difficulty)
	}
	fmt.Fprintf(&b, "word_count: %d\n", e.WordCount)
	if len(e.Tools) > 0 {
		fmt.Fprintf(&b, "tools: [%s]\n", strings.Join(e.Tools, ", "))
	}
	if len(e.QualityFlags) > 0 {
		fmt.Fprintf(&b, "quality_flags: [%s]\n", strings.Join(e.QualityFlags, ", "))
	}
	fmt.Fprintf(&b, "created: %s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	b.WriteString("---\n\n")
	b.WriteString(e.Body)
	if !strings.HasSuffix(e.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases a title into a safe filename fragment, capped at 60 chars.
func Slug(title string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "entry"
	}
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	return s
}
