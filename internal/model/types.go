package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Matrix is a row-major dense matrix snapshot.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Network is the persistable snapshot of an echo state network: fixed
// weights, the trained readout, the current reservoir state and the
// hyperparameters needed to rebuild the runtime object.
type Network struct {
	VersionedRecord
	ID      string `json:"id"`
	Name    string `json:"name"`
	Neurons int    `json:"neurons"`
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`

	Variant string `json:"variant"`
	Solver  string `json:"solver"`

	ReservoirActivation string `json:"reservoir_activation"`
	OutputActivation    string `json:"output_activation"`

	Noise          float64 `json:"noise"`
	LeakRate       float64 `json:"leak_rate"`
	TikhonovFactor float64 `json:"tikhonov_factor"`

	Win   Matrix    `json:"win"`
	W     Matrix    `json:"w"`
	Wback Matrix    `json:"wback"`
	Wout  Matrix    `json:"wout"`
	State []float64 `json:"state"`
}

// TrainingRun records one completed readout training on a network.
type TrainingRun struct {
	VersionedRecord
	ID           string  `json:"id"`
	NetworkID    string  `json:"network_id"`
	Solver       string  `json:"solver"`
	Steps        int     `json:"steps"`
	Washout      int     `json:"washout"`
	RetainedRows int     `json:"retained_rows"`
	TrainMSE     float64 `json:"train_mse"`
	CreatedAtUTC string  `json:"created_at_utc"`
}
