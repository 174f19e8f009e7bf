package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type TextRepository struct {
	db *sql.DB
}

func NewTextRepository(db *sql.DB) *TextRepository {
	return &TextRepository{db: db}
}

// SaveText stores the OCR output. A redelivered OCR job overwrites its own row.
func (r *TextRepository) SaveText(ctx context.Context, documentID, text string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_texts (document_id, text, created_at)
VALUES ($1, $2, now())
ON CONFLICT (document_id) DO UPDATE SET text = EXCLUDED.text, created_at = EXCLUDED.created_at
`, documentID, text)
	if err != nil {
		return fmt.Errorf("save document text: %w", err)
	}
	return nil
}

func (r *TextRepository) GetText(ctx context.Context, documentID string) (string, error) {
	var text string
	err := r.db.QueryRowContext(ctx, `SELECT text FROM document_texts WHERE document_id = $1`, documentID).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrDocumentTextNotFound, "get document text", fmt.Errorf("document_id=%s", documentID))
		}
		return "", fmt.Errorf("get document text: %w", err)
	}
	return text, nil
}

func (r *TextRepository) HasText(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM document_texts WHERE document_id = $1)`, documentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document text: %w", err)
	}
	return exists, nil
}
