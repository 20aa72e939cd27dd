package repository

import (
	"context"
	"sync"

	"github.com/contentpress/bakerd/internal/domain"
)

// StateWrite records one SetBakeState call for assertion in tests.
type StateWrite struct {
	ModuleIdent int
	State       domain.BakeState
	RecipeID    *int
	Message     string
}

// MockBakeStore is a hand-written, in-memory implementation of BakeStore
// used in unit tests. No mock-generation library needed.
type MockBakeStore struct {
	mu           sync.Mutex
	StateWrites  []StateWrite
	Removed      []string
	Associations []domain.TaskAssociation

	// Canned responses — set in tests.
	Candidates domain.RecipeCandidates
	Info       domain.PublicationInfo
	Pending    int

	// Optional error overrides — set in tests to simulate failure paths.
	SetBakeStateErr  error
	RemoveErr        error
	AssociationErr   error
	CandidatesErr    error
	InfoErr          error
	NotifyPendingErr error
}

func NewMockBakeStore() *MockBakeStore {
	return &MockBakeStore{}
}

func (m *MockBakeStore) SetBakeState(_ context.Context, moduleIdent int, state domain.BakeState, recipeID *int, message string) error {
	if m.SetBakeStateErr != nil {
		return m.SetBakeStateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StateWrites = append(m.StateWrites, StateWrite{
		ModuleIdent: moduleIdent,
		State:       state,
		RecipeID:    recipeID,
		Message:     message,
	})
	return nil
}

func (m *MockBakeStore) RemoveDerivedContent(_ context.Context, identHash string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, identHash)
	return nil
}

func (m *MockBakeStore) RecordTaskAssociation(_ context.Context, moduleIdent int, taskID string) error {
	if m.AssociationErr != nil {
		return m.AssociationErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Associations = append(m.Associations, domain.TaskAssociation{ModuleIdent: moduleIdent, TaskID: taskID})
	return nil
}

func (m *MockBakeStore) ResolveRecipeCandidates(_ context.Context, _ int) (domain.RecipeCandidates, error) {
	if m.CandidatesErr != nil {
		return domain.RecipeCandidates{}, m.CandidatesErr
	}
	return m.Candidates, nil
}

func (m *MockBakeStore) PublicationInfo(_ context.Context, _ string) (domain.PublicationInfo, error) {
	if m.InfoErr != nil {
		return domain.PublicationInfo{}, m.InfoErr
	}
	return m.Info, nil
}

func (m *MockBakeStore) NotifyPendingPublications(_ context.Context) (int, error) {
	if m.NotifyPendingErr != nil {
		return 0, m.NotifyPendingErr
	}
	return m.Pending, nil
}

// Writes returns a copy of the recorded state writes.
func (m *MockBakeStore) Writes() []StateWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateWrite, len(m.StateWrites))
	copy(out, m.StateWrites)
	return out
}
