package domain

type UrgencyTier string

const (
	UrgencySafe        UrgencyTier = "safe"
	UrgencyWarning     UrgencyTier = "warning"
	UrgencyUrgent      UrgencyTier = "urgent"
	UrgencyCritical    UrgencyTier = "critical"
	UrgencyNeedsReview UrgencyTier = "needs_review"
)

const (
	WarningWindowDays = 30
	UrgentWindowDays  = 7
)

// Urgency is the deadline position of a document on a given day.
type Urgency struct {
	Tier             UrgencyTier `json:"tier"`
	DaysUntilEnd     *int        `json:"days_until_end,omitempty"`
	DaysLeftToCancel *int        `json:"days_left_to_cancel,omitempty"`
	CancelBy         *Date       `json:"cancel_by,omitempty"`
}

func ComputeUrgency(endDate *Date, noticeDays *int, today Date) Urgency {
	if endDate == nil || noticeDays == nil {
		return Urgency{Tier: UrgencyNeedsReview}
	}
	untilEnd := today.DaysUntil(*endDate)
	left := untilEnd - *noticeDays
	cancelBy := endDate.AddDays(-*noticeDays)
	return Urgency{
		Tier:             tierFor(left),
		DaysUntilEnd:     &untilEnd,
		DaysLeftToCancel: &left,
		CancelBy:         &cancelBy,
	}
}

func UrgencyOf(doc *Document, today Date) Urgency {
	return ComputeUrgency(doc.EndDate, doc.NoticeDays, today)
}

func tierFor(daysLeftToCancel int) UrgencyTier {
	switch {
	case daysLeftToCancel <= 0:
		return UrgencyCritical
	case daysLeftToCancel <= UrgentWindowDays:
		return UrgencyUrgent
	case daysLeftToCancel <= WarningWindowDays:
		return UrgencyWarning
	default:
		return UrgencySafe
	}
}

// ShouldAlertOnSweep fires only on the exact boundary days and once past the deadline.
func ShouldAlertOnSweep(daysLeftToCancel int) bool {
	return daysLeftToCancel == WarningWindowDays ||
		daysLeftToCancel == UrgentWindowDays ||
		daysLeftToCancel <= 0
}

// ShouldAlertOnEdit fires for any deadline inside the warning window.
func ShouldAlertOnEdit(daysLeftToCancel int) bool {
	return daysLeftToCancel <= WarningWindowDays
}

// MissedBoundary reports whether the most recent boundary crossing before
// today went unalerted. Used by the optional sweep catch-up.
func MissedBoundary(daysLeftToCancel int, lastAlertedOn *Date, today Date) bool {
	if daysLeftToCancel <= 0 || daysLeftToCancel >= WarningWindowDays {
		return false
	}
	boundary := WarningWindowDays
	if daysLeftToCancel < UrgentWindowDays {
		boundary = UrgentWindowDays
	}
	crossedOn := today.AddDays(-(boundary - daysLeftToCancel))
	return lastAlertedOn == nil || lastAlertedOn.Before(crossedOn)
}

// AlreadyAlerted reports whether an alert was recorded for today.
func AlreadyAlerted(lastAlertedOn *Date, today Date) bool {
	return lastAlertedOn != nil && !lastAlertedOn.Before(today)
}
