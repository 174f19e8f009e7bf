package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

const documentColumns = `id, owner_id, original_filename, mime_type, blob_key, vendor, end_date, notice_days, auto_renews,
	status, error_message, extraction_fields, manual_entry, last_alerted_on, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	fieldsJSON, err := marshalFields(doc.ExtractionFields)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		doc.ID, doc.OwnerID, doc.OriginalFilename, doc.MimeType, doc.BlobKey, doc.Vendor, doc.EndDate,
		doc.NoticeDays, doc.AutoRenews, string(doc.Status), doc.ErrorMessage, fieldsJSON, doc.ManualEntry,
		doc.LastAlertedOn, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC, id
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// TransitionStatus moves a document between statuses only if it is still in
// the expected one. The error message is cleared on every transition.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, t ports.StatusTransition) (bool, error) {
	query := `
UPDATE documents
SET status = $3, error_message = NULL, updated_at = $4
WHERE id = $1 AND status = $2`
	args := []any{t.ID, string(t.From), string(t.To), r.now().UTC()}
	if t.UpdatedBefore != nil {
		query += ` AND updated_at < $5`
		args = append(args, t.UpdatedBefore.UTC())
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition document status rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusFailed), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return requireAffected(res, "mark document failed", id)
}

// SaveExtraction stores extracted fields only while the document is still
// processing. It reports false when the row left processing meanwhile.
func (r *DocumentRepository) SaveExtraction(ctx context.Context, doc *domain.Document) (bool, error) {
	res, err := r.saveState(ctx, doc, "save extraction", ` AND status = '`+string(domain.StatusProcessing)+`'`)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save extraction rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *DocumentRepository) SaveEdits(ctx context.Context, doc *domain.Document) error {
	res, err := r.saveState(ctx, doc, "save edits", "")
	if err != nil {
		return err
	}
	return requireAffected(res, "save edits", doc.ID)
}

func (r *DocumentRepository) saveState(ctx context.Context, doc *domain.Document, op, guard string) (sql.Result, error) {
	fieldsJSON, err := marshalFields(doc.ExtractionFields)
	if err != nil {
		return nil, err
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET vendor = $2, end_date = $3, notice_days = $4, auto_renews = $5, status = $6, error_message = $7,
	extraction_fields = $8, manual_entry = $9, last_alerted_on = $10, updated_at = $11
WHERE id = $1`+guard,
		doc.ID, doc.Vendor, doc.EndDate, doc.NoticeDays, doc.AutoRenews, string(doc.Status), doc.ErrorMessage,
		fieldsJSON, doc.ManualEntry, doc.LastAlertedOn, updatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// SetLastAlertedOn records an alert day. It reports false when the document
// was already alerted that day or later.
func (r *DocumentRepository) SetLastAlertedOn(ctx context.Context, id string, day domain.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET last_alerted_on = $2
WHERE id = $1 AND (last_alerted_on IS NULL OR last_alerted_on < $2)
`, id, day)
	if err != nil {
		return false, fmt.Errorf("set last alerted on: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set last alerted on rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListAlertCandidates pages through ready documents with a known deadline in id order.
func (r *DocumentRepository) ListAlertCandidates(ctx context.Context, afterID string, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = $1 AND end_date IS NOT NULL AND notice_days IS NOT NULL AND id > $2
ORDER BY id
LIMIT $3
`, string(domain.StatusReady), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alert candidates: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, "delete document", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc           domain.Document
		ownerID       sql.NullString
		blobKey       sql.NullString
		vendor        sql.NullString
		endDate       domain.NullDate
		noticeDays    sql.NullInt64
		autoRenews    sql.NullBool
		status        string
		errorMessage  sql.NullString
		fieldsRaw     []byte
		lastAlertedOn domain.NullDate
	)
	err := row.Scan(
		&doc.ID, &ownerID, &doc.OriginalFilename, &doc.MimeType, &blobKey, &vendor, &endDate, &noticeDays,
		&autoRenews, &status, &errorMessage, &fieldsRaw, &doc.ManualEntry, &lastAlertedOn, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, err
		}
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}

	doc.OwnerID = nullString(ownerID)
	doc.BlobKey = nullString(blobKey)
	doc.Vendor = nullString(vendor)
	doc.EndDate = endDate.Ptr()
	if noticeDays.Valid {
		n := int(noticeDays.Int64)
		doc.NoticeDays = &n
	}
	if autoRenews.Valid {
		b := autoRenews.Bool
		doc.AutoRenews = &b
	}
	doc.Status = domain.DocumentStatus(status)
	doc.ErrorMessage = nullString(errorMessage)
	doc.LastAlertedOn = lastAlertedOn.Ptr()
	if len(fieldsRaw) > 0 {
		var fields domain.ExtractionFields
		if err := json.Unmarshal(fieldsRaw, &fields); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal extraction fields: %w", err)
		}
		fields.Normalize()
		doc.ExtractionFields = &fields
	}
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func marshalFields(fields *domain.ExtractionFields) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction fields: %w", err)
	}
	return raw, nil
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
