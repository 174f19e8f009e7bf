package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type statusCall struct {
	id     string
	status domain.DocumentStatus
	errMsg string
}

type documentRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	statusCalls []statusCall

	createErr     error
	getErr        error
	failErr       error
	saveErr       error
	transitionErr error
	alertedErr    error
	countOverride *int
}

func newDocumentRepoFake(docs ...*domain.Document) *documentRepoFake {
	f := &documentRepoFake{docs: make(map[string]*domain.Document)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *documentRepoFake) doc(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, d := range f.docs {
		if d.OwnerID != nil && *d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *documentRepoFake) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	if f.countOverride != nil {
		return *f.countOverride, nil
	}
	docs, _ := f.ListByOwner(ctx, ownerID)
	return len(docs), nil
}

func (f *documentRepoFake) TransitionStatus(_ context.Context, t ports.StatusTransition) (bool, error) {
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[t.ID]
	if !ok || doc.Status != t.From {
		return false, nil
	}
	if t.UpdatedBefore != nil && !doc.UpdatedAt.Before(*t.UpdatedBefore) {
		return false, nil
	}
	doc.Status = t.To
	doc.ErrorMessage = nil
	f.statusCalls = append(f.statusCalls, statusCall{id: t.ID, status: t.To})
	return true, nil
}

func (f *documentRepoFake) MarkFailed(_ context.Context, id string, errMessage string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "mark failed", errors.New(id))
	}
	doc.Status = domain.StatusFailed
	doc.ErrorMessage = &errMessage
	f.statusCalls = append(f.statusCalls, statusCall{id: id, status: domain.StatusFailed, errMsg: errMessage})
	return nil
}

func (f *documentRepoFake) SaveExtraction(_ context.Context, doc *domain.Document) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.docs[doc.ID]
	if !ok || current.Status != domain.StatusProcessing {
		return false, nil
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.statusCalls = append(f.statusCalls, statusCall{id: doc.ID, status: doc.Status})
	return true, nil
}

func (f *documentRepoFake) SaveEdits(_ context.Context, doc *domain.Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentRepoFake) SetLastAlertedOn(_ context.Context, id string, day domain.Date) (bool, error) {
	if f.alertedErr != nil {
		return false, f.alertedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrDocumentNotFound, "set last alerted", errors.New(id))
	}
	if doc.LastAlertedOn != nil && !doc.LastAlertedOn.Before(day) {
		return false, nil
	}
	d := day
	doc.LastAlertedOn = &d
	return true, nil
}

func (f *documentRepoFake) ListAlertCandidates(_ context.Context, afterID string, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, d := range f.docs {
		if d.Status == domain.StatusReady && d.HasDeadline() && d.ID > afterID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *documentRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete", errors.New(id))
	}
	delete(f.docs, id)
	return nil
}

type textRepoFake struct {
	texts   map[string]string
	saveErr error
}

func newTextRepoFake() *textRepoFake {
	return &textRepoFake{texts: make(map[string]string)}
}

func (f *textRepoFake) SaveText(_ context.Context, id, text string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.texts[id] = text
	return nil
}

func (f *textRepoFake) GetText(_ context.Context, id string) (string, error) {
	text, ok := f.texts[id]
	if !ok {
		return "", domain.WrapError(domain.ErrDocumentTextNotFound, "get text", errors.New(id))
	}
	return text, nil
}

func (f *textRepoFake) HasText(_ context.Context, id string) (bool, error) {
	_, ok := f.texts[id]
	return ok, nil
}

type userDirectoryFake struct {
	users map[string]*domain.User
}

func (f *userDirectoryFake) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrUserNotFound, "get user", errors.New(id))
	}
	copyUser := *u
	return &copyUser, nil
}

type blobStoreFake struct {
	objects   map[string][]byte
	putErr    error
	getErr    error
	deleted   []string
	presigned string
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{objects: make(map[string][]byte)}
}

func (f *blobStoreFake) Put(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.objects[key] = raw
	return key, nil
}

func (f *blobStoreFake) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *blobStoreFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

func (f *blobStoreFake) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presigned != "" {
		return f.presigned, nil
	}
	return "https://files.test/" + key, nil
}

type jobQueueFake struct {
	ocr        []domain.OCRJob
	extraction []domain.ExtractionJob
	emails     []domain.EmailJob
	err        error
	emailErr   error
}

func (f *jobQueueFake) EnqueueOCR(_ context.Context, job domain.OCRJob) error {
	if f.err != nil {
		return f.err
	}
	f.ocr = append(f.ocr, job)
	return nil
}

func (f *jobQueueFake) EnqueueExtraction(_ context.Context, job domain.ExtractionJob) error {
	if f.err != nil {
		return f.err
	}
	f.extraction = append(f.extraction, job)
	return nil
}

func (f *jobQueueFake) EnqueueEmail(_ context.Context, job domain.EmailJob) error {
	if f.emailErr != nil {
		return f.emailErr
	}
	f.emails = append(f.emails, job)
	return nil
}

type textExtractorFake struct {
	text    string
	err     error
	formats []domain.Format
}

func (f *textExtractorFake) Extract(_ context.Context, format domain.Format, _ []byte) (string, error) {
	f.formats = append(f.formats, format)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fieldExtractorFake struct {
	fields   domain.ExtractionFields
	err      error
	gotText  string
	deadline bool
	// during runs inside the call, while the model would be working.
	during func()
}

func (f *fieldExtractorFake) ExtractFields(ctx context.Context, text string) (domain.ExtractionFields, error) {
	f.gotText = text
	_, f.deadline = ctx.Deadline()
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return domain.ExtractionFields{}, f.err
	}
	return f.fields, nil
}

type notifierFake struct {
	notifications []domain.Notification
	err           error
}

func (f *notifierFake) CreateInAppNotification(_ context.Context, n domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.notifications = append(f.notifications, n)
	return nil
}

type alertCheckerFake struct {
	checked []string
	alerted bool
	err     error
}

func (f *alertCheckerFake) CheckDocument(_ context.Context, id string) (bool, error) {
	f.checked = append(f.checked, id)
	return f.alerted, f.err
}
