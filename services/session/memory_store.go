package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sahilchouksey/study-artifacts/model"
)

// MemoryStore keeps sessions in process memory. It backs the CLI and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ProcessingSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*model.ProcessingSession)}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *model.ProcessingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = model.SessionStatusPending
	}
	for i := range s.Documents {
		s.Documents[i].SessionID = s.ID
		if s.Documents[i].ExtractionStatus == "" {
			s.Documents[i].ExtractionStatus = model.ExtractionStatusPending
		}
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.ProcessingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := cloneSession(s)
	sort.SliceStable(out.Documents, func(i, j int) bool { return out.Documents[i].Position < out.Documents[j].Position })
	return out, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to model.SessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	now := time.Now()
	s.Status = to
	s.UpdatedAt = now
	if to == model.SessionStatusProcessing {
		s.StartedAt = &now
	}
	if to.IsTerminal() {
		s.CompletedAt = &now
	}
	return true, nil
}

func (m *MemoryStore) SaveStageOutcome(_ context.Context, sessionID string, outcome model.StageOutcome) error {
	rec, err := outcomeRecord(sessionID, outcome)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for i := range s.StageOutcomes {
		if s.StageOutcomes[i].Stage == rec.Stage {
			s.StageOutcomes[i] = rec
			return nil
		}
	}
	s.StageOutcomes = append(s.StageOutcomes, rec)
	return nil
}

func (m *MemoryStore) SaveDocumentExtraction(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		for i := range s.Documents {
			if s.Documents[i].ID != doc.ID {
				continue
			}
			d := &s.Documents[i]
			d.PageCount = doc.PageCount
			d.ExtractionStatus = doc.ExtractionStatus
			d.Strategy = doc.Strategy
			d.ExtractionError = doc.ExtractionError
			d.BatchFailures = doc.BatchFailures
			d.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("document %s not found", doc.ID)
}

func (m *MemoryStore) ListStale(_ context.Context, status model.SessionStatus, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		since := s.CreatedAt
		if s.StartedAt != nil {
			since = *s.StartedAt
		}
		if s.Status == status && since.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneSession(s *model.ProcessingSession) *model.ProcessingSession {
	out := *s
	out.Documents = append([]model.Document(nil), s.Documents...)
	out.StageOutcomes = append([]model.StageOutcomeRecord(nil), s.StageOutcomes...)
	return &out
}
