// Package aureservoir is the embedding surface for the echo state
// network runtime: create networks, train readouts, simulate, and
// persist everything through a pluggable store.
package aureservoir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"aureservoir/internal/esn"
	"aureservoir/internal/model"
	"aureservoir/internal/reservoir"
	"aureservoir/internal/storage"
)

const defaultDBPath = "aureservoir.db"

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store storage.Store
}

// CreateRequest describes a new network. Zero-valued reservoir shaping
// fields fall back to the defaults of the reservoir package.
type CreateRequest struct {
	Name    string
	Neurons int
	Inputs  int
	Outputs int

	Variant string
	Solver  string

	ReservoirActivation string
	OutputActivation    string

	Noise          float64
	LeakRate       float64
	TikhonovFactor float64
	Seed           int64

	Connectivity   float64
	InConnectivity float64
	FBConnectivity float64
	Alpha          float64
	InScale        float64
	InShift        float64
	FBScale        float64
	FBShift        float64
}

type NetworkSummary struct {
	ID      string
	Name    string
	Neurons int
	Inputs  int
	Outputs int
	Variant string
	Solver  string
	Trained bool
}

type TrainSummary struct {
	RunID        string
	Solver       string
	Steps        int
	Washout      int
	RetainedRows int
	TrainMSE     float64
}

type RunItem struct {
	RunID        string
	Solver       string
	Steps        int
	Washout      int
	RetainedRows int
	TrainMSE     float64
	CreatedAtUTC string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) CreateNetwork(ctx context.Context, req CreateRequest) (NetworkSummary, error) {
	variant, err := esn.ParseVariant(orDefault(req.Variant, "standard"))
	if err != nil {
		return NetworkSummary{}, err
	}
	solver, err := esn.ParseSolver(orDefault(req.Solver, "pseudoinverse"))
	if err != nil {
		return NetworkSummary{}, err
	}

	net, err := esn.NewNetwork(esn.Config{
		Neurons:             req.Neurons,
		Inputs:              req.Inputs,
		Outputs:             req.Outputs,
		Variant:             variant,
		Solver:              solver,
		ReservoirActivation: req.ReservoirActivation,
		OutputActivation:    req.OutputActivation,
		Noise:               req.Noise,
		LeakRate:            req.LeakRate,
		TikhonovFactor:      req.TikhonovFactor,
		Seed:                req.Seed,
	})
	if err != nil {
		return NetworkSummary{}, err
	}

	if err := reservoir.Init(net, reservoirConfig(req)); err != nil {
		return NetworkSummary{}, err
	}

	id := uuid.NewString()
	name := req.Name
	if name == "" {
		name = id[:8]
	}
	record := net.Snapshot(id, name)
	record.VersionedRecord = storage.Stamp()
	if err := c.store.SaveNetwork(ctx, record); err != nil {
		return NetworkSummary{}, err
	}
	return summarize(record), nil
}

func (c *Client) Networks(ctx context.Context) ([]NetworkSummary, error) {
	records, err := c.store.ListNetworks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NetworkSummary, 0, len(records))
	for _, record := range records {
		out = append(out, summarize(record))
	}
	return out, nil
}

func (c *Client) TrainingRuns(ctx context.Context, networkID string) ([]RunItem, error) {
	runs, err := c.store.GetTrainingRuns(ctx, networkID)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			Solver:       run.Solver,
			Steps:        run.Steps,
			Washout:      run.Washout,
			RetainedRows: run.RetainedRows,
			TrainMSE:     run.TrainMSE,
			CreatedAtUTC: run.CreatedAtUTC,
		})
	}
	return out, nil
}

func (c *Client) DeleteNetwork(ctx context.Context, id string) error {
	return c.store.DeleteNetwork(ctx, id)
}

// Handle binds a loaded network to a simulation engine and trainer.
// Filter coefficients configured on the handle live in the engine, so
// one handle must be used for a configure-train-run sequence.
type Handle struct {
	client *Client
	id     string
	name   string

	net     *esn.Network
	sim     esn.Simulator
	trainer esn.Trainer
}

func (c *Client) Open(ctx context.Context, id string) (*Handle, error) {
	record, ok, err := c.store.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("network not found: %s", id)
	}

	net, err := esn.FromSnapshot(record)
	if err != nil {
		return nil, err
	}
	sim, err := esn.NewSimulator(net.Variant)
	if err != nil {
		return nil, err
	}
	trainer, err := esn.NewTrainer(net.Solver)
	if err != nil {
		return nil, err
	}
	return &Handle{
		client:  c,
		id:      id,
		name:    record.Name,
		net:     net,
		sim:     sim,
		trainer: trainer,
	}, nil
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

func (h *Handle) Summary() NetworkSummary {
	return summarize(h.net.Snapshot(h.id, h.name))
}

// ResetState clears the reservoir state and the stored output feedback
// so the next Simulate starts from scratch.
func (h *Handle) ResetState() {
	h.net.ResetState()
	h.sim.Reallocate(h.net)
}

func (h *Handle) SetBPCutoff(f1, f2 []float64) error {
	return h.sim.SetBPCutoff(h.net, f1, f2)
}

func (h *Handle) SetBPCutoffConst(f1, f2 float64) error {
	return h.sim.SetBPCutoffConst(h.net, f1, f2)
}

func (h *Handle) SetIIRCoeff(b, a [][]float64) error {
	bm, err := matFromRows(b)
	if err != nil {
		return err
	}
	am, err := matFromRows(a)
	if err != nil {
		return err
	}
	return h.sim.SetIIRCoeff(h.net, bm, am)
}

// Train fits the readout on teacher-forced input/target series given as
// channel-major slices (one row per channel, one column per step). The
// updated network is persisted together with a training run record.
func (h *Handle) Train(ctx context.Context, in, target [][]float64, washout int) (TrainSummary, error) {
	inMat, err := matFromRows(in)
	if err != nil {
		return TrainSummary{}, err
	}
	targetMat, err := matFromRows(target)
	if err != nil {
		return TrainSummary{}, err
	}

	if err := h.trainer.Train(h.net, h.sim, inMat, targetMat, washout); err != nil {
		return TrainSummary{}, err
	}

	_, steps := inMat.Dims()
	mse, err := h.trainError(inMat, targetMat, washout)
	if err != nil {
		return TrainSummary{}, err
	}

	summary := TrainSummary{
		RunID:        uuid.NewString(),
		Solver:       h.net.Solver.String(),
		Steps:        steps,
		Washout:      washout,
		RetainedRows: steps - washout,
		TrainMSE:     mse,
	}

	if err := h.Save(ctx); err != nil {
		return TrainSummary{}, err
	}
	run := model.TrainingRun{
		VersionedRecord: storage.Stamp(),
		ID:              summary.RunID,
		NetworkID:       h.id,
		Solver:          summary.Solver,
		Steps:           summary.Steps,
		Washout:         summary.Washout,
		RetainedRows:    summary.RetainedRows,
		TrainMSE:        summary.TrainMSE,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := h.client.store.SaveTrainingRun(ctx, run); err != nil {
		return TrainSummary{}, err
	}
	return summary, nil
}

// Simulate runs the network over the input series and returns the
// output series, both channel-major. Reservoir state carries over from
// any previous call on this handle.
func (h *Handle) Simulate(in [][]float64) ([][]float64, error) {
	inMat, err := matFromRows(in)
	if err != nil {
		return nil, err
	}
	_, steps := inMat.Dims()
	out := mat.NewDense(h.net.Outputs, steps, nil)
	if err := h.sim.Simulate(h.net, inMat, out); err != nil {
		return nil, err
	}
	return rowsFromMat(out), nil
}

func (h *Handle) Save(ctx context.Context) error {
	record := h.net.Snapshot(h.id, h.name)
	record.VersionedRecord = storage.Stamp()
	return h.client.store.SaveNetwork(ctx, record)
}

// trainError replays the training input in free-run mode from a reset
// state and reports the mean squared error past the washout.
func (h *Handle) trainError(in, target *mat.Dense, washout int) (float64, error) {
	outputs, steps := target.Dims()
	h.net.ResetState()
	h.sim.Reallocate(h.net)

	out := mat.NewDense(outputs, steps, nil)
	if err := h.sim.Simulate(h.net, in, out); err != nil {
		return 0, err
	}

	var sum float64
	for r := 0; r < outputs; r++ {
		d := floats.Distance(out.RawRowView(r)[washout:], target.RawRowView(r)[washout:], 2)
		sum += d * d
	}
	return sum / float64(outputs*(steps-washout)), nil
}

func reservoirConfig(req CreateRequest) reservoir.Config {
	cfg := reservoir.DefaultConfig()
	if req.Connectivity != 0 {
		cfg.Connectivity = req.Connectivity
	}
	if req.InConnectivity != 0 {
		cfg.InConnectivity = req.InConnectivity
	}
	cfg.FBConnectivity = req.FBConnectivity
	if req.Alpha != 0 {
		cfg.Alpha = req.Alpha
	}
	if req.InScale != 0 {
		cfg.InScale = req.InScale
	}
	cfg.InShift = req.InShift
	if req.FBScale != 0 {
		cfg.FBScale = req.FBScale
	}
	cfg.FBShift = req.FBShift
	return cfg
}

func summarize(record model.Network) NetworkSummary {
	trained := false
	for _, v := range record.Wout.Data {
		if v != 0 {
			trained = true
			break
		}
	}
	return NetworkSummary{
		ID:      record.ID,
		Name:    record.Name,
		Neurons: record.Neurons,
		Inputs:  record.Inputs,
		Outputs: record.Outputs,
		Variant: record.Variant,
		Solver:  record.Solver,
		Trained: trained,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func matFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.New("series must have at least one channel")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, errors.New("series must have at least one step")
	}
	m := mat.NewDense(len(rows), cols, nil)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("channel %d has %d steps, expected %d", r, len(row), cols)
		}
		m.SetRow(r, row)
	}
	return m, nil
}

func rowsFromMat(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = append([]float64(nil), m.RawRowView(r)...)
	}
	return out
}
