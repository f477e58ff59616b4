package engine

import (
	"context"
	"errors"
	"testing"

	"mindmeld/internal/domain"
	"mindmeld/internal/store"
)

func newResolver(st store.Store) *Resolver {
	return NewResolver(st, NewMachine(st))
}

// Scenario: both players find the word on round one.
func TestResolveWinFirstRound(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "WINONE", domain.StatusActive, false, 0, "alice", "bob")

	submitAll(t, r, pids, "beach", "Beach")

	s := mustSession(t, st, "WINONE")
	if s.Status != domain.StatusFinished {
		t.Fatalf("status = %s; want finished", s.Status)
	}
	if !s.Won() || s.RoundsTaken != 1 {
		t.Fatalf("won=%v roundsTaken=%d; want won in 1", s.Won(), s.RoundsTaken)
	}
	if s.WinnerName != "alice & bob" {
		t.Fatalf("winner = %q; want %q", s.WinnerName, "alice & bob")
	}
}

// Scenario: miss on round one, match on round two.
func TestResolveAdvanceThenWin(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "TWORND", domain.StatusActive, false, 0, "alice", "bob")

	submitAll(t, r, pids, "beach", "wave")

	s := mustSession(t, st, "TWORND")
	if s.Status != domain.StatusActive || s.Round != 2 {
		t.Fatalf("after mismatch: status=%s round=%d; want active round 2", s.Status, s.Round)
	}

	submitAll(t, r, pids, "surf", "surf")

	s = mustSession(t, st, "TWORND")
	if s.Status != domain.StatusFinished || s.RoundsTaken != 2 {
		t.Fatalf("status=%s roundsTaken=%d; want finished in 2", s.Status, s.RoundsTaken)
	}
}

// Scenario: resubmitting a word from an earlier round is rejected before
// anything is written.
func TestResolveRejectsReusedWord(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "REUSED", domain.StatusActive, false, 0, "alice", "bob")

	submitAll(t, r, pids, "beach", "wave")   // round 1
	submitAll(t, r, pids, "sand", "shell")   // round 2

	s := mustSession(t, st, "REUSED")
	if s.Round != 3 {
		t.Fatalf("round = %d; want 3", s.Round)
	}

	err := r.AcceptSubmission(ctx, pids[0], "BEACH")
	if !errors.Is(err, domain.ErrDuplicateWord) {
		t.Fatalf("reused word err = %v; want ErrDuplicateWord", err)
	}

	// nothing was written and the session did not move
	subs, _ := st.RoundSubmissions(ctx, "REUSED", 3)
	if len(subs) != 0 {
		t.Fatalf("%d submissions written for round 3; want 0", len(subs))
	}
	if got := mustSession(t, st, "REUSED"); got.Round != 3 || got.Status != domain.StatusActive {
		t.Fatalf("session moved after rejection: %+v", got)
	}

	// a different word still goes through
	if err := r.AcceptSubmission(ctx, pids[0], "coral"); err != nil {
		t.Fatalf("fresh word rejected: %v", err)
	}
}

func TestResolveRejectsDoubleSubmitSameRound(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "DOUBLE", domain.StatusActive, false, 0, "alice", "bob")

	if err := r.AcceptSubmission(ctx, pids[0], "beach"); err != nil {
		t.Fatal(err)
	}
	if err := r.AcceptSubmission(ctx, pids[0], "wave"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v; want ErrAlreadySubmitted", err)
	}
}

func TestResolveRejectsEmptyWord(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "EMPTYW", domain.StatusActive, false, 0, "alice", "bob")

	for _, w := range []string{"", "   ", "\t"} {
		if err := r.AcceptSubmission(context.Background(), pids[0], w); !errors.Is(err, domain.ErrEmptyWord) {
			t.Fatalf("empty word %q err = %v; want ErrEmptyWord", w, err)
		}
	}
}

func TestResolveIncompleteRoundWaits(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "WAITIN", domain.StatusActive, false, 0, "alice", "bob", "carol")

	if err := r.AcceptSubmission(context.Background(), pids[0], "beach"); err != nil {
		t.Fatal(err)
	}
	if err := r.AcceptSubmission(context.Background(), pids[1], "beach"); err != nil {
		t.Fatal(err)
	}

	s := mustSession(t, st, "WAITIN")
	if s.Status != domain.StatusActive || s.Round != 1 {
		t.Fatalf("resolved with a submission missing: %+v", s)
	}
}

// More than two participants win without a single attributed winner.
func TestResolveWinThreePlayersNoWinnerName(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "TRIPLE", domain.StatusActive, false, 0, "alice", "bob", "carol")

	submitAll(t, r, pids, "surf", "surf", "surf")

	s := mustSession(t, st, "TRIPLE")
	if !s.Won() || s.RoundsTaken != 1 {
		t.Fatalf("won=%v roundsTaken=%d; want won in 1", s.Won(), s.RoundsTaken)
	}
	if s.WinnerName != "" {
		t.Fatalf("winner = %q; want unset for three players", s.WinnerName)
	}
}

func TestResolveRoundLimitExhaustion(t *testing.T) {
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "LIMITS", domain.StatusActive, false, 2, "alice", "bob")

	submitAll(t, r, pids, "beach", "wave") // round 1 of 2
	submitAll(t, r, pids, "surf", "sand") // round 2 of 2, still no match

	s := mustSession(t, st, "LIMITS")
	if s.Status != domain.StatusFinished {
		t.Fatalf("status = %s; want finished after round limit", s.Status)
	}
	if s.Won() || s.WinnerName != "" {
		t.Fatalf("exhausted session records a win: %+v", s)
	}
}

// Resolution re-reads the round at decision time: running Resolve again
// after the round already advanced must not double-advance.
func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "REPEAT", domain.StatusActive, false, 0, "alice", "bob")

	submitAll(t, r, pids, "beach", "wave")

	for i := 0; i < 5; i++ {
		if err := r.Resolve(ctx, "REPEAT"); err != nil {
			t.Fatalf("re-resolve %d: %v", i, err)
		}
	}

	if got := mustSession(t, st, "REPEAT").Round; got != 2 {
		t.Fatalf("round = %d after repeated resolution; want 2", got)
	}
}

// A session whose roster dropped below capacity mid-game is abandoned and
// never resolved further.
func TestResolveSkipsAbandonedSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := newResolver(st)
	pids := seedSession(t, st, "GONERS", domain.StatusActive, false, 0, "alice", "bob", "carol")

	if err := r.AcceptSubmission(ctx, pids[0], "beach"); err != nil {
		t.Fatal(err)
	}
	if err := r.AcceptSubmission(ctx, pids[1], "beach"); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteParticipant(ctx, pids[2]); err != nil {
		t.Fatal(err)
	}

	if err := r.Resolve(ctx, "GONERS"); err != nil {
		t.Fatal(err)
	}

	s := mustSession(t, st, "GONERS")
	if s.Status != domain.StatusActive || s.Round != 1 {
		t.Fatalf("abandoned session was resolved: %+v", s)
	}
}
