package storage

import (
	"encoding/json"
	"errors"

	"aureservoir/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeNetwork(n model.Network) ([]byte, error) {
	return json.Marshal(n)
}

func DecodeNetwork(data []byte) (model.Network, error) {
	var network model.Network
	if err := json.Unmarshal(data, &network); err != nil {
		return model.Network{}, err
	}
	if err := checkVersion(network.VersionedRecord); err != nil {
		return model.Network{}, err
	}
	return network, nil
}

func EncodeTrainingRun(r model.TrainingRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTrainingRun(data []byte) (model.TrainingRun, error) {
	var run model.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TrainingRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TrainingRun{}, err
	}
	return run, nil
}

// Stamp sets the current schema and codec versions on a record before it
// is persisted.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
