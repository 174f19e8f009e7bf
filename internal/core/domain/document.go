package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// InFlight reports whether a pipeline stage still owns the document.
func (s DocumentStatus) InFlight() bool {
	return s == StatusQueued || s == StatusProcessing
}

type Document struct {
	ID               string            `json:"id"`
	OwnerID          *string           `json:"owner_id"`
	OriginalFilename string            `json:"original_filename"`
	MimeType         string            `json:"mime_type"`
	BlobKey          *string           `json:"blob_key,omitempty"`
	Vendor           *string           `json:"vendor"`
	EndDate          *Date             `json:"end_date"`
	NoticeDays       *int              `json:"notice_days"`
	AutoRenews       *bool             `json:"auto_renews"`
	Status           DocumentStatus    `json:"status"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	ExtractionFields *ExtractionFields `json:"extraction_fields,omitempty"`
	ManualEntry      bool              `json:"manual_entry"`
	LastAlertedOn    *Date             `json:"last_alerted_on"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasDeadline reports whether both inputs of the urgency computation are known.
func (d *Document) HasDeadline() bool {
	return d.EndDate != nil && d.NoticeDays != nil
}

// DisplayName is the vendor when known, otherwise the uploaded file name.
func (d *Document) DisplayName() string {
	if d.Vendor != nil && *d.Vendor != "" {
		return *d.Vendor
	}
	if d.OriginalFilename != "" {
		return d.OriginalFilename
	}
	return "Untitled document"
}

type KeyDate struct {
	Date        *Date  `json:"date"`
	Description string `json:"description"`
}

// ExtractionFields is the structured result of field extraction.
type ExtractionFields struct {
	VendorName           *string   `json:"vendor_name"`
	EndDate              *Date     `json:"end_date"`
	NoticeDays           *int      `json:"notice_days"`
	AutoRenews           *bool     `json:"auto_renews"`
	RenewalTermMonths    *int      `json:"renewal_term_months"`
	CancellationDeadline *Date     `json:"cancellation_deadline"`
	RenewalClauses       []string  `json:"renewal_clauses"`
	PenaltyClauses       []string  `json:"penalty_clauses"`
	KeyDates             []KeyDate `json:"key_dates"`
	Summary              *string   `json:"summary"`
}

// Normalize replaces missing collections with empty ones.
func (f *ExtractionFields) Normalize() {
	if f.RenewalClauses == nil {
		f.RenewalClauses = []string{}
	}
	if f.PenaltyClauses == nil {
		f.PenaltyClauses = []string{}
	}
	if f.KeyDates == nil {
		f.KeyDates = []KeyDate{}
	}
	if f.NoticeDays != nil && *f.NoticeDays < 0 {
		f.NoticeDays = nil
	}
	if f.RenewalTermMonths != nil && *f.RenewalTermMonths < 0 {
		f.RenewalTermMonths = nil
	}
}

// ApplyExtraction copies extracted fields onto the document and reports
// whether the deadline inputs changed.
func (d *Document) ApplyExtraction(fields ExtractionFields) bool {
	fields.Normalize()
	changed := !SameDate(d.EndDate, fields.EndDate) || !sameInt(d.NoticeDays, fields.NoticeDays)

	d.Vendor = fields.VendorName
	d.EndDate = fields.EndDate
	d.NoticeDays = fields.NoticeDays
	d.AutoRenews = fields.AutoRenews
	d.ExtractionFields = &fields
	if changed {
		d.LastAlertedOn = nil
	}
	return changed
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
}

type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DocumentID *string    `json:"document_id,omitempty"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

const NotificationRenewalDeadline = "renewal_deadline"
