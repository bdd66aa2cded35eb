package storage

import (
	"context"

	"aureservoir/internal/model"
)

// Store defines persistence operations for networks and their training
// history.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, network model.Network) error
	GetNetwork(ctx context.Context, id string) (model.Network, bool, error)
	ListNetworks(ctx context.Context) ([]model.Network, error)
	DeleteNetwork(ctx context.Context, id string) error
	SaveTrainingRun(ctx context.Context, run model.TrainingRun) error
	GetTrainingRuns(ctx context.Context, networkID string) ([]model.TrainingRun, error)
}
