package domain

// DeadlineRow is one line of the deadline export.
type DeadlineRow struct {
	DocumentID       string
	Name             string
	Filename         string
	Status           DocumentStatus
	EndDate          *Date
	NoticeDays       *int
	AutoRenews       *bool
	CancelBy         *Date
	DaysLeftToCancel *int
	Tier             UrgencyTier
	LastAlertedOn    *Date
}

func NewDeadlineRow(doc *Document, today Date) DeadlineRow {
	u := UrgencyOf(doc, today)
	return DeadlineRow{
		DocumentID:       doc.ID,
		Name:             doc.DisplayName(),
		Filename:         doc.OriginalFilename,
		Status:           doc.Status,
		EndDate:          doc.EndDate,
		NoticeDays:       doc.NoticeDays,
		AutoRenews:       doc.AutoRenews,
		CancelBy:         u.CancelBy,
		DaysLeftToCancel: u.DaysLeftToCancel,
		Tier:             u.Tier,
		LastAlertedOn:    doc.LastAlertedOn,
	}
}
