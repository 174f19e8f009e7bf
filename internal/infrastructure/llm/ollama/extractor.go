package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

// FieldExtractor turns contract text into renewal fields using a local model.
type FieldExtractor struct {
	client *Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewFieldExtractor(client *Client) (*FieldExtractor, error) {
	schema, err := compileExtractionSchema()
	if err != nil {
		return nil, err
	}
	return &FieldExtractor{client: client, schema: schema, logger: client.logger}, nil
}

func (e *FieldExtractor) ExtractFields(ctx context.Context, text string) (domain.ExtractionFields, error) {
	respText, err := e.client.generateJSON(ctx, buildExtractionPrompt(text))
	if err != nil {
		return domain.ExtractionFields{}, err
	}
	fields, err := e.parse(respText)
	if err != nil {
		e.logger.Warn("ollama.extract.malformed", "error", err, "response_bytes", len(respText))
		return domain.ExtractionFields{}, domain.WrapError(domain.ErrMalformedResponse, "parse extraction", err)
	}
	return fields, nil
}

type extractionPayload struct {
	VendorName           *string      `json:"vendor_name"`
	EndDate              *string      `json:"end_date"`
	NoticeDays           *json.Number `json:"notice_days"`
	AutoRenews           *bool        `json:"auto_renews"`
	RenewalTermMonths    *json.Number `json:"renewal_term_months"`
	CancellationDeadline *string      `json:"cancellation_deadline"`
	RenewalClauses       []string     `json:"renewal_clauses"`
	PenaltyClauses       []string     `json:"penalty_clauses"`
	KeyDates             []struct {
		Date        *string `json:"date"`
		Description *string `json:"description"`
	} `json:"key_dates"`
	Summary *string `json:"summary"`
}

func (e *FieldExtractor) parse(raw string) (domain.ExtractionFields, error) {
	body := []byte(extractJSONObject(raw))

	var generic any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return domain.ExtractionFields{}, fmt.Errorf("decode model json: %w", err)
	}
	if err := e.schema.Validate(generic); err != nil {
		return domain.ExtractionFields{}, fmt.Errorf("model json does not match schema: %w", err)
	}

	var payload extractionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ExtractionFields{}, fmt.Errorf("decode extraction fields: %w", err)
	}

	fields := domain.ExtractionFields{
		VendorName:           cleanString(payload.VendorName),
		EndDate:              parseOptionalDate(payload.EndDate),
		NoticeDays:           parseOptionalInt(payload.NoticeDays),
		AutoRenews:           payload.AutoRenews,
		RenewalTermMonths:    parseOptionalInt(payload.RenewalTermMonths),
		CancellationDeadline: parseOptionalDate(payload.CancellationDeadline),
		RenewalClauses:       cleanStrings(payload.RenewalClauses),
		PenaltyClauses:       cleanStrings(payload.PenaltyClauses),
		Summary:              cleanString(payload.Summary),
	}
	for _, kd := range payload.KeyDates {
		desc := cleanString(kd.Description)
		date := parseOptionalDate(kd.Date)
		if desc == nil && date == nil {
			continue
		}
		item := domain.KeyDate{Date: date}
		if desc != nil {
			item.Description = *desc
		}
		fields.KeyDates = append(fields.KeyDates, item)
	}
	fields.Normalize()
	return fields, nil
}

// dateLayouts are the shapes models produce besides ISO dates. Slash and
// dash day-first or month-first forms are ambiguous and not accepted.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02.01.2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// parseOptionalDate drops values the model could not format as a calendar date.
func parseOptionalDate(raw *string) *domain.Date {
	s := cleanString(raw)
	if s == nil {
		return nil
	}
	if d, err := domain.ParseDate(*s); err == nil {
		return &d
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			d := domain.DateOf(t)
			return &d
		}
	}
	return nil
}

// parseOptionalInt accepts integral numbers in any JSON form, such as 30.0.
func parseOptionalInt(raw *json.Number) *int {
	if raw == nil {
		return nil
	}
	if n, err := raw.Int64(); err == nil {
		v := int(n)
		return &v
	}
	f, err := raw.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	v := int(f)
	return &v
}

func cleanString(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
