package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
	"github.com/kirillkom/renewal-tracker/internal/core/ports"
	"github.com/kirillkom/renewal-tracker/internal/infrastructure/queue/memory"
)

var alertNow = time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

type alertFixture struct {
	repo     *documentRepoFake
	users    *userDirectoryFake
	queue    *jobQueueFake
	notifier *notifierFake
	uc       *AlertUseCase
}

func newAlertFixture(opts AlertOptions, docs ...*domain.Document) *alertFixture {
	f := &alertFixture{
		repo: newDocumentRepoFake(docs...),
		users: &userDirectoryFake{users: map[string]*domain.User{
			"owner-1": {ID: "owner-1", Email: "owner@example.com", Name: "Dana", Tier: domain.TierPro},
			"no-mail": {ID: "no-mail", Tier: domain.TierPro},
		}},
		queue:    &jobQueueFake{},
		notifier: &notifierFake{},
	}
	f.uc = NewAlertUseCase(f.repo, f.users, NewQueuedEmailSender(f.queue), f.notifier, opts, nil)
	f.uc.now = fixedClock(alertNow)
	return f
}

func today() domain.Date { return domain.DateOf(alertNow) }

func deadlineDoc(id string, endOffset, notice int) *domain.Document {
	end := today().AddDays(endOffset)
	return &domain.Document{
		ID:               id,
		OwnerID:          strPtr("owner-1"),
		OriginalFilename: id + ".pdf",
		Vendor:           strPtr("Vendor " + id),
		EndDate:          &end,
		NoticeDays:       intPtr(notice),
		Status:           domain.StatusReady,
	}
}

func TestSweepSafeDocumentIsNotAlerted(t *testing.T) {
	f := newAlertFixture(AlertOptions{}, deadlineDoc("a", 37, 5))

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.Alerted != 0 || len(f.queue.emails) != 0 {
		t.Fatalf("expected no alert, got %+v", summary)
	}
}

func TestSweepAlertsOncePerDayAtThirtyDays(t *testing.T) {
	f := newAlertFixture(AlertOptions{}, deadlineDoc("b", 35, 5))

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.Alerted != 1 || len(f.queue.emails) != 1 || len(f.notifier.notifications) != 1 {
		t.Fatalf("expected exactly one alert, summary=%+v emails=%d", summary, len(f.queue.emails))
	}
	email := f.queue.emails[0]
	if email.To != "owner@example.com" || !strings.Contains(email.Subject, "30 days left") {
		t.Fatalf("unexpected email: %+v", email)
	}
	if !strings.Contains(email.HTML, "warning") || !strings.Contains(email.HTML, "Dana") {
		t.Fatalf("expected warning tier in email body: %s", email.HTML)
	}
	if got := f.repo.doc("b").LastAlertedOn; got == nil || *got != today() {
		t.Fatalf("expected lastAlertedOn=today, got %v", got)
	}

	again, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if again.Alerted != 0 || len(f.queue.emails) != 1 {
		t.Fatalf("second sweep on the same day must not alert, got %+v", again)
	}
}

func TestSweepOnlyFiresOnBoundaries(t *testing.T) {
	f := newAlertFixture(AlertOptions{},
		deadlineDoc("d29", 34, 5),
		deadlineDoc("d7", 12, 5),
		deadlineDoc("d6", 11, 5),
		deadlineDoc("d0", 5, 5),
		deadlineDoc("dneg", 1, 5),
	)

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	alerted := map[string]bool{}
	for _, e := range f.queue.emails {
		alerted[e.DocumentID] = true
	}
	for id, want := range map[string]bool{"d29": false, "d7": true, "d6": false, "d0": true, "dneg": true} {
		if alerted[id] != want {
			t.Fatalf("doc %s alerted=%v, want %v", id, alerted[id], want)
		}
	}
	if summary.Scanned != 5 || summary.Alerted != 3 || summary.Skipped != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSweepCatchUpAlertsMissedBoundary(t *testing.T) {
	doc := deadlineDoc("late", 33, 5) // 28 days left to cancel
	f := newAlertFixture(AlertOptions{CatchUp: true}, doc)

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.Alerted != 1 {
		t.Fatalf("expected catch-up alert, got %+v", summary)
	}

	off := newAlertFixture(AlertOptions{}, deadlineDoc("late", 33, 5))
	summary, _ = off.uc.Sweep(context.Background())
	if summary.Alerted != 0 {
		t.Fatalf("catch-up disabled must not alert, got %+v", summary)
	}
}

func TestSweepIsolatesSendFailures(t *testing.T) {
	f := newAlertFixture(AlertOptions{BatchSize: 1},
		deadlineDoc("a", 35, 5),
		deadlineDoc("b", 5, 5),
	)
	f.queue.emailErr = errors.New("broker down")

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() must not fail on per-document errors, got %v", err)
	}
	if summary.Failed != 2 || summary.Scanned != 2 {
		t.Fatalf("expected both documents attempted and failed, got %+v", summary)
	}
	if f.repo.doc("a").LastAlertedOn != nil || f.repo.doc("b").LastAlertedOn != nil {
		t.Fatalf("failed sends must not set lastAlertedOn")
	}
	if len(f.notifier.notifications) != 0 {
		t.Fatalf("no in-app notification without an email")
	}
}

func TestSweepPaginatesAllCandidates(t *testing.T) {
	var docs []*domain.Document
	for i := 0; i < 7; i++ {
		docs = append(docs, deadlineDoc(fmt.Sprintf("doc-%02d", i), 5, 5))
	}
	f := newAlertFixture(AlertOptions{BatchSize: 3}, docs...)

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.Scanned != 7 || summary.Alerted != 7 {
		t.Fatalf("expected all 7 documents alerted, got %+v", summary)
	}
}

func TestSweepSkipsOwnerlessAndEmaillessDocuments(t *testing.T) {
	orphan := deadlineDoc("orphan", 5, 5)
	orphan.OwnerID = nil
	noMail := deadlineDoc("nomail", 5, 5)
	noMail.OwnerID = strPtr("no-mail")
	f := newAlertFixture(AlertOptions{}, orphan, noMail)

	summary, err := f.uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.Alerted != 0 || summary.Skipped != 2 || len(f.queue.emails) != 0 {
		t.Fatalf("expected both skipped, got %+v", summary)
	}
}

func TestCheckDocumentFiresInsideWindow(t *testing.T) {
	f := newAlertFixture(AlertOptions{}, deadlineDoc("c", 2, 5))

	alerted, err := f.uc.CheckDocument(context.Background(), "c")
	if err != nil {
		t.Fatalf("CheckDocument() error = %v", err)
	}
	if !alerted || len(f.queue.emails) != 1 {
		t.Fatalf("expected immediate alert for critical document")
	}
	if !strings.Contains(f.queue.emails[0].Subject, "passed") {
		t.Fatalf("unexpected subject %q", f.queue.emails[0].Subject)
	}

	alerted, err = f.uc.CheckDocument(context.Background(), "c")
	if err != nil || alerted {
		t.Fatalf("second check the same day must not alert, alerted=%v err=%v", alerted, err)
	}
}

func TestCheckDocumentIgnoresSafeAndUnreadyDocuments(t *testing.T) {
	processing := deadlineDoc("p", 5, 5)
	processing.Status = domain.StatusProcessing
	f := newAlertFixture(AlertOptions{}, deadlineDoc("safe", 60, 5), processing)

	for _, id := range []string{"safe", "p"} {
		alerted, err := f.uc.CheckDocument(context.Background(), id)
		if err != nil || alerted {
			t.Fatalf("CheckDocument(%s) alerted=%v err=%v", id, alerted, err)
		}
	}
}

func TestCheckDocumentKeepsAlertWhenInAppFails(t *testing.T) {
	f := newAlertFixture(AlertOptions{}, deadlineDoc("c", 10, 5))
	f.notifier.err = errors.New("insert failed")

	alerted, err := f.uc.CheckDocument(context.Background(), "c")
	if err != nil || !alerted {
		t.Fatalf("email was sent, alert must be recorded: alerted=%v err=%v", alerted, err)
	}
	if f.repo.doc("c").LastAlertedOn == nil {
		t.Fatalf("expected lastAlertedOn to be set")
	}
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	f := newAlertFixture(AlertOptions{Location: loc})
	f.uc.now = fixedClock(time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC))

	if got := f.uc.today(); got != domain.NewDate(2026, 6, 2) {
		t.Fatalf("today = %s, want 2026-06-02", got)
	}
}

func TestEditAfterSweepSameDayDeliversSecondEmail(t *testing.T) {
	q := memory.New(memory.Options{})
	defer q.Close()
	repo := newDocumentRepoFake(deadlineDoc("b", 35, 5))
	users := &userDirectoryFake{users: map[string]*domain.User{
		"owner-1": {ID: "owner-1", Email: "owner@example.com", Tier: domain.TierPro},
	}}
	alerts := NewAlertUseCase(repo, users, NewQueuedEmailSender(q), &notifierFake{}, AlertOptions{}, nil)
	alerts.now = fixedClock(alertNow)
	manage := NewManageDocumentUseCase(repo, newBlobStoreFake(), alerts, nil)
	manage.now = fixedClock(alertNow)

	if summary, err := alerts.Sweep(context.Background()); err != nil || summary.Alerted != 1 {
		t.Fatalf("Sweep() = %+v, %v", summary, err)
	}
	if _, err := manage.Edit(context.Background(), "b", "owner-1", domain.DocumentEdit{
		EndDate: domain.Some(today().AddDays(2)),
	}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	var (
		mu       sync.Mutex
		subjects []string
	)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = q.Consume(ctx, domain.QueueEmail, func(_ context.Context, d ports.Delivery) error {
			var job domain.EmailJob
			if err := json.Unmarshal(d.Payload, &job); err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			subjects = append(subjects, job.Subject)
			if len(subjects) == 2 {
				close(done)
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("expected 2 emails (sweep and edit), got %d: %v", len(subjects), subjects)
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(subjects[1], "passed") {
		t.Fatalf("second email must carry the edited deadline, got %q", subjects[1])
	}
}
