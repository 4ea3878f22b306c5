package storage

import "github.com/dennisdiepolder/cdrboard/backend/internal/types"

// Store is the call archive interface. The archive keeps reconstructed,
// answered call sessions for the per-agent drill-down; aggregates themselves
// are never persisted.
type Store interface {
	SaveCalls(calls []types.ArchivedCall) error
	GetCallsByDate(date string) ([]types.ArchivedCall, error)
	GetAgentCallsByDate(agentID, date string) ([]types.ArchivedCall, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveCalls(_ []types.ArchivedCall) error { return nil }
func (s *NoopStore) GetCallsByDate(_ string) ([]types.ArchivedCall, error) {
	return nil, nil
}
func (s *NoopStore) GetAgentCallsByDate(_, _ string) ([]types.ArchivedCall, error) {
	return nil, nil
}
func (s *NoopStore) TruncateAll() error { return nil }
