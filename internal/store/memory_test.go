package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mindmeld/internal/domain"
)

func newTestSession(code string) *domain.Session {
	return &domain.Session{
		Code:      code,
		Capacity:  2,
		Status:    domain.StatusWaiting,
		Round:     1,
		CreatedAt: time.Now(),
	}
}

func TestMemorySessionCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateSession(ctx, newTestSession("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateSession(ctx, newTestSession("AAAAAA")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create = %v; want ErrDuplicate", err)
	}

	s, err := m.Session(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != domain.StatusWaiting || s.Round != 1 {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := m.Session(ctx, "ZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing session = %v; want ErrNotFound", err)
	}

	if err := m.DeleteSession(ctx, "AAAAAA"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Session(ctx, "AAAAAA"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete = %v; want ErrNotFound", err)
	}
}

func TestMemoryConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateSession(ctx, newTestSession("AAAAAA")); err != nil {
		t.Fatal(err)
	}

	s, err := m.UpdateSession(ctx, "AAAAAA",
		func(s domain.Session) bool { return s.Round == 1 },
		func(s *domain.Session) { s.Round = 2 },
	)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Round != 2 {
		t.Fatalf("round = %d; want 2", s.Round)
	}

	// same guard again loses
	_, err = m.UpdateSession(ctx, "AAAAAA",
		func(s domain.Session) bool { return s.Round == 1 },
		func(s *domain.Session) { s.Round = 2 },
	)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update = %v; want ErrConflict", err)
	}

	// record untouched by the failed update
	got, _ := m.Session(ctx, "AAAAAA")
	if got.Round != 2 {
		t.Fatalf("round after conflict = %d; want 2", got.Round)
	}
}

func TestMemoryConditionalUpdateRace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateSession(ctx, newTestSession("AAAAAA")); err != nil {
		t.Fatal(err)
	}

	const attackers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied, conflicts := 0, 0

	for i := 0; i < attackers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.UpdateSession(ctx, "AAAAAA",
				func(s domain.Session) bool { return s.Round == 1 },
				func(s *domain.Session) { s.Round = 2 },
			)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 1 || conflicts != attackers-1 {
		t.Fatalf("applied=%d conflicts=%d; want 1 and %d", applied, conflicts, attackers-1)
	}
	s, _ := m.Session(ctx, "AAAAAA")
	if s.Round != 2 {
		t.Fatalf("round = %d; want exactly 2", s.Round)
	}
}

func TestMemorySubmissionsUniquePerRound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	sub := &domain.Submission{SessionCode: "AAAAAA", ParticipantID: "p1", Round: 1, Word: "beach"}
	if err := m.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateSubmission(ctx, sub); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second submission = %v; want ErrDuplicate", err)
	}

	subs, err := m.RoundSubmissions(ctx, "AAAAAA", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d submissions; want 1", len(subs))
	}
}

func TestMemorySubscribeDeliversChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	events, cancel, err := m.Subscribe(ctx, "AAAAAA")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := m.CreateSession(ctx, newTestSession("AAAAAA")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Kind != KindSession || ev.Op != OpInsert || ev.SessionCode != "AAAAAA" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no change event delivered")
	}

	// other sessions' changes are filtered out
	if err := m.CreateSession(ctx, newTestSession("BBBBBB")); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		t.Fatalf("got foreign event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryResetRoundFlags(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, id := range []string{"p1", "p2"} {
		p := &domain.Participant{ID: id, SessionCode: "AAAAAA", DisplayName: id, Word: "beach", Submitted: true}
		if err := m.CreateParticipant(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.ResetRoundFlags(ctx, "AAAAAA"); err != nil {
		t.Fatal(err)
	}

	participants, err := m.Participants(ctx, "AAAAAA")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range participants {
		if p.Submitted || p.Word != "" {
			t.Fatalf("participant %s not reset: %+v", p.ID, p)
		}
	}
}
