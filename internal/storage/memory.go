package storage

import (
	"context"
	"sort"
	"sync"

	"aureservoir/internal/model"
)

type MemoryStore struct {
	mu       sync.RWMutex
	networks map[string]model.Network
	runs     map[string][]model.TrainingRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		networks: make(map[string]model.Network),
		runs:     make(map[string][]model.TrainingRun),
	}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.networks = make(map[string]model.Network)
	s.runs = make(map[string][]model.TrainingRun)
	return nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, network model.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.networks[network.ID] = network
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, id string) (model.Network, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	network, ok := s.networks[id]
	return network, ok, nil
}

func (s *MemoryStore) ListNetworks(_ context.Context) ([]model.Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	networks := make([]model.Network, 0, len(s.networks))
	for _, network := range s.networks {
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].ID < networks[j].ID })
	return networks, nil
}

func (s *MemoryStore) DeleteNetwork(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.networks, id)
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) SaveTrainingRun(_ context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.NetworkID] = append(s.runs[run.NetworkID], run)
	return nil
}

func (s *MemoryStore) GetTrainingRuns(_ context.Context, networkID string) ([]model.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, ok := s.runs[networkID]
	if !ok {
		return nil, nil
	}
	copied := make([]model.TrainingRun, len(runs))
	copy(copied, runs)
	return copied, nil
}
