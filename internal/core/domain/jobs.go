package domain

// QueueName identifies one logical job queue.
type QueueName string

const (
	QueueOCR     QueueName = "ocr"
	QueueExtract QueueName = "extract"
	QueueEmail   QueueName = "email"
)

func AllQueues() []QueueName {
	return []QueueName{QueueOCR, QueueExtract, QueueEmail}
}

type OCRJob struct {
	DocumentID string `json:"documentId"`
	BlobKey    string `json:"blobKey"`
}

type ExtractionJob struct {
	DocumentID string `json:"documentId"`
}

// EmailJob is one outbound email. ID is unique per send decision and
// deduplicates publish retries and provider calls for that send.
type EmailJob struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId,omitempty"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
}

type EmailMessage struct {
	From           string
	To             string
	Subject        string
	HTML           string
	IdempotencyKey string
}
