package store

import (
	"context"
	"sort"
	"sync"

	"mindmeld/internal/domain"
)

// Memory is an in-process Store. It backs unit tests and single-node
// deployments; conditional updates are serialized by a mutex so they carry
// the same succeed-or-conflict semantics as the Postgres implementation.
type Memory struct {
	mu           sync.Mutex
	sessions     map[string]domain.Session
	participants map[string]domain.Participant
	submissions  map[string]domain.Submission // keyed by code|pid|round

	subMu       sync.Mutex
	subscribers map[string]map[int]chan ChangeEvent
	subSeq      int
}

func NewMemory() *Memory {
	return &Memory{
		sessions:     make(map[string]domain.Session),
		participants: make(map[string]domain.Participant),
		submissions:  make(map[string]domain.Submission),
		subscribers:  make(map[string]map[int]chan ChangeEvent),
	}
}

func submissionMapKey(code, pid string, round int) string {
	return code + "|" + SubmissionKey(pid, round)
}

func (m *Memory) CreateSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	if _, ok := m.sessions[s.Code]; ok {
		m.mu.Unlock()
		return ErrDuplicate
	}
	m.sessions[s.Code] = *s
	m.mu.Unlock()

	m.publish(ChangeEvent{Kind: KindSession, Op: OpInsert, Key: s.Code, SessionCode: s.Code})
	return nil
}

func (m *Memory) Session(ctx context.Context, code string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := s
	return &out, nil
}

func (m *Memory) UpdateSession(ctx context.Context, code string, pred func(domain.Session) bool, apply func(*domain.Session)) (*domain.Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !pred(s) {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	apply(&s)
	m.sessions[code] = s
	out := s
	m.mu.Unlock()

	m.publish(ChangeEvent{Kind: KindSession, Op: OpUpdate, Key: code, SessionCode: code})
	return &out, nil
}

func (m *Memory) DeleteSession(ctx context.Context, code string) error {
	m.mu.Lock()
	_, ok := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.publish(ChangeEvent{Kind: KindSession, Op: OpDelete, Key: code, SessionCode: code})
	return nil
}

func (m *Memory) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	m.mu.Lock()
	if _, ok := m.participants[p.ID]; ok {
		m.mu.Unlock()
		return ErrDuplicate
	}
	m.participants[p.ID] = *p
	m.mu.Unlock()

	m.publish(ChangeEvent{Kind: KindParticipant, Op: OpInsert, Key: p.ID, SessionCode: p.SessionCode})
	return nil
}

func (m *Memory) Participant(ctx context.Context, id string) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}

func (m *Memory) Participants(ctx context.Context, sessionCode string) ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Participant
	for _, p := range m.participants {
		if p.SessionCode == sessionCode {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *Memory) UpdateParticipant(ctx context.Context, id string, pred func(domain.Participant) bool, apply func(*domain.Participant)) (*domain.Participant, error) {
	m.mu.Lock()
	p, ok := m.participants[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !pred(p) {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	apply(&p)
	m.participants[id] = p
	out := p
	m.mu.Unlock()

	m.publish(ChangeEvent{Kind: KindParticipant, Op: OpUpdate, Key: id, SessionCode: out.SessionCode})
	return &out, nil
}

func (m *Memory) DeleteParticipant(ctx context.Context, id string) error {
	m.mu.Lock()
	p, ok := m.participants[id]
	delete(m.participants, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.publish(ChangeEvent{Kind: KindParticipant, Op: OpDelete, Key: id, SessionCode: p.SessionCode})
	return nil
}

func (m *Memory) CreateSubmission(ctx context.Context, s *domain.Submission) error {
	key := submissionMapKey(s.SessionCode, s.ParticipantID, s.Round)
	m.mu.Lock()
	if _, ok := m.submissions[key]; ok {
		m.mu.Unlock()
		return ErrDuplicate
	}
	m.submissions[key] = *s
	m.mu.Unlock()

	m.publish(ChangeEvent{
		Kind:        KindSubmission,
		Op:          OpInsert,
		Key:         SubmissionKey(s.ParticipantID, s.Round),
		SessionCode: s.SessionCode,
	})
	return nil
}

func (m *Memory) Submissions(ctx context.Context, sessionCode string) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.submissions {
		if s.SessionCode == sessionCode {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) RoundSubmissions(ctx context.Context, sessionCode string, round int) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.submissions {
		if s.SessionCode == sessionCode && s.Round == round {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubmissions(ctx context.Context, sessionCode string) error {
	m.mu.Lock()
	for key, s := range m.submissions {
		if s.SessionCode == sessionCode {
			delete(m.submissions, key)
		}
	}
	m.mu.Unlock()

	m.publish(ChangeEvent{Kind: KindSubmission, Op: OpDelete, Key: "", SessionCode: sessionCode})
	return nil
}

func (m *Memory) ResetRoundFlags(ctx context.Context, sessionCode string) error {
	m.mu.Lock()
	var changed []string
	for id, p := range m.participants {
		if p.SessionCode == sessionCode && (p.Submitted || p.Word != "") {
			p.Submitted = false
			p.Word = ""
			m.participants[id] = p
			changed = append(changed, id)
		}
	}
	m.mu.Unlock()

	for _, id := range changed {
		m.publish(ChangeEvent{Kind: KindParticipant, Op: OpUpdate, Key: id, SessionCode: sessionCode})
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, sessionCode string) (<-chan ChangeEvent, func(), error) {
	m.subMu.Lock()
	m.subSeq++
	id := m.subSeq
	ch := make(chan ChangeEvent, 64)
	if m.subscribers[sessionCode] == nil {
		m.subscribers[sessionCode] = make(map[int]chan ChangeEvent)
	}
	m.subscribers[sessionCode][id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if subs, ok := m.subscribers[sessionCode]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(m.subscribers, sessionCode)
			}
		}
		m.subMu.Unlock()
	}
	return ch, cancel, nil
}

func (m *Memory) publish(ev ChangeEvent) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers[ev.SessionCode] {
		// drop rather than block a slow consumer; delivery is
		// at-least-once only relative to a healthy subscriber
		select {
		case ch <- ev:
		default:
		}
	}
}
