package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"CareLink/internal/dispatch"
	"CareLink/internal/model"
)

// fakeStore 内存实现，Advance 的守卫条件与 SQL 一致
type fakeStore struct {
	mu          sync.Mutex
	escalations map[uuid.UUID]*model.Escalation
	alerts      map[uuid.UUID]*model.Alert

	listErr     error
	alertErr    map[uuid.UUID]error
	advanceErr  error
	beforeWrite func(adv model.Advance)

	listCalls int
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		escalations: map[uuid.UUID]*model.Escalation{},
		alerts:      map[uuid.UUID]*model.Alert{},
		alertErr:    map[uuid.UUID]error{},
	}
}

func (s *fakeStore) addAlert(a *model.Alert) {
	s.alerts[a.ID] = a
}

func (s *fakeStore) addEscalation(e *model.Escalation) {
	s.escalations[e.ID] = e
}

func (s *fakeStore) get(id uuid.UUID) model.Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.escalations[id]
}

func (s *fakeStore) ListDue(_ context.Context, now time.Time) ([]model.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}

	var due []model.Escalation
	for _, e := range s.escalations {
		if e.IsDue(now) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextEscalationAt.Before(due[j].NextEscalationAt)
	})
	return due, nil
}

func (s *fakeStore) GetAlert(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	if err := s.alertErr[id]; err != nil {
		return nil, err
	}
	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.New("alert not found")
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) Advance(ctx context.Context, adv model.Advance) error {
	if s.beforeWrite != nil {
		s.beforeWrite(adv)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.advanceErr != nil {
		return s.advanceErr
	}

	e, ok := s.escalations[adv.EscalationID]
	if !ok || e.Resolved || e.EscalationLevel != adv.FromLevel {
		return ErrEscalationStale
	}

	e.EscalationLevel = adv.ToLevel
	e.EscalatedAt = adv.EscalatedAt
	e.NextEscalationAt = adv.NextEscalationAt
	s.writes++
	return nil
}

func (s *fakeStore) Resolve(ctx context.Context, id uuid.UUID, level int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escalations[id]
	if !ok || e.Resolved || e.EscalationLevel != level {
		return ErrEscalationStale
	}
	e.Resolved = true
	e.ResolvedAt = &at
	s.writes++
	return nil
}

func (s *fakeStore) resolve(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations[id].Resolved = true
}

type fakeResolver struct {
	byHousehold map[uuid.UUID]*model.Recipients
	err         map[uuid.UUID]error
}

func (r *fakeResolver) Resolve(_ context.Context, householdID uuid.UUID) (*model.Recipients, error) {
	if err := r.err[householdID]; err != nil {
		return nil, err
	}
	if rec, ok := r.byHousehold[householdID]; ok {
		return rec, nil
	}
	return &model.Recipients{HouseholdID: householdID}, nil
}

type fakePush struct {
	calls [][]dispatch.PushMessage
	err   error
}

func (p *fakePush) SendPush(_ context.Context, messages []dispatch.PushMessage) error {
	p.calls = append(p.calls, messages)
	return p.err
}

func (p *fakePush) tokens() []string {
	var out []string
	for _, call := range p.calls {
		for _, m := range call {
			out = append(out, m.To)
		}
	}
	return out
}

type fakeEmail struct {
	sent     []dispatch.Email
	failFor  map[string]error
	notReady error
	onSend   func()
}

func (f *fakeEmail) Ready() error {
	return f.notReady
}

func (f *fakeEmail) SendEmail(_ context.Context, email dispatch.Email) error {
	f.sent = append(f.sent, email)
	if f.onSend != nil {
		f.onSend()
	}
	if err := f.failFor[email.To]; err != nil {
		return err
	}
	return nil
}

func (f *fakeEmail) recipients() []string {
	out := make([]string, 0, len(f.sent))
	for _, e := range f.sent {
		out = append(out, e.To)
	}
	return out
}

type fakeLock struct {
	held       bool
	err        error
	acquired   int
	releasedBy []string
}

func (l *fakeLock) Acquire(context.Context) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	l.acquired++
	return "token", true, nil
}

func (l *fakeLock) Release(_ context.Context, token string) error {
	l.releasedBy = append(l.releasedBy, token)
	return nil
}

type fakePublisher struct {
	events []model.EscalationAdvancedEvent
	err    error
}

func (p *fakePublisher) PublishEscalationAdvanced(_ context.Context, event model.EscalationAdvancedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }
