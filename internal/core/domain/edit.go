package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const maxVendorLength = 255

// Optional distinguishes an absent field from an explicit null in a patch.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// DocumentEdit is a manual patch of deadline fields.
type DocumentEdit struct {
	Vendor     Optional[string] `json:"vendor"`
	EndDate    Optional[Date]   `json:"end_date"`
	NoticeDays Optional[int]    `json:"notice_days"`
	AutoRenews Optional[bool]   `json:"auto_renews"`
}

func (e DocumentEdit) Empty() bool {
	return !e.Vendor.Set && !e.EndDate.Set && !e.NoticeDays.Set && !e.AutoRenews.Set
}

func (e DocumentEdit) Validate() error {
	verr := &ValidationError{}
	if e.Empty() {
		verr.Add("body", "at least one field is required")
	}
	if e.Vendor.Set && e.Vendor.Value != nil && utf8.RuneCountInString(*e.Vendor.Value) > maxVendorLength {
		verr.Add("vendor", "must be at most 255 characters")
	}
	if e.NoticeDays.Set && e.NoticeDays.Value != nil && *e.NoticeDays.Value < 0 {
		verr.Add("notice_days", "must be zero or greater")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// Apply writes the patch onto doc and reports whether deadline inputs changed.
// A deadline change clears LastAlertedOn.
func (e DocumentEdit) Apply(doc *Document) bool {
	if e.Vendor.Set {
		doc.Vendor = trimmedOrNil(e.Vendor.Value)
	}
	if e.AutoRenews.Set {
		doc.AutoRenews = e.AutoRenews.Value
	}
	changed := false
	if e.EndDate.Set && !SameDate(doc.EndDate, e.EndDate.Value) {
		doc.EndDate = e.EndDate.Value
		changed = true
	}
	if e.NoticeDays.Set && !sameInt(doc.NoticeDays, e.NoticeDays.Value) {
		doc.NoticeDays = e.NoticeDays.Value
		changed = true
	}
	doc.ManualEntry = true
	if changed {
		doc.LastAlertedOn = nil
	}
	return changed
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
