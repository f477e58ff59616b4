package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/store"
)

// seedSession creates a session with one participant per name and returns
// the participant ids in order.
func seedSession(t *testing.T, st store.Store, code string, status domain.Status, timerEnabled bool, roundLimit int, names ...string) []string {
	t.Helper()
	ctx := context.Background()

	s := &domain.Session{
		Code:         code,
		Capacity:     len(names),
		Status:       status,
		Round:        1,
		RoundLimit:   roundLimit,
		TimerEnabled: timerEnabled,
		CreatedAt:    time.Now(),
	}
	if err := st.CreateSession(ctx, s); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	ids := make([]string, 0, len(names))
	for i, name := range names {
		p := &domain.Participant{
			ID:          fmt.Sprintf("%s-p%d", code, i+1),
			SessionCode: code,
			DisplayName: name,
			JoinedAt:    time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := st.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("seed participant: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func mustSession(t *testing.T, st store.Store, code string) *domain.Session {
	t.Helper()
	s, err := st.Session(context.Background(), code)
	if err != nil {
		t.Fatalf("read session %s: %v", code, err)
	}
	return s
}

func submitAll(t *testing.T, r *Resolver, pids []string, words ...string) {
	t.Helper()
	for i, pid := range pids {
		if err := r.AcceptSubmission(context.Background(), pid, words[i]); err != nil {
			t.Fatalf("submit %q for %s: %v", words[i], pid, err)
		}
	}
}
