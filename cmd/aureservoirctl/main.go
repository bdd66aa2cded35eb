package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"aureservoir/internal/storage"
	resapi "aureservoir/pkg/aureservoir"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "create":
		return runCreate(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "run":
		return runSimulate(ctx, args[1:])
	case "info":
		return runInfo(ctx, args[1:])
	case "networks":
		return runNetworks(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func addStoreFlags(fs *flag.FlagSet) (storeKind, dbPath *string) {
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", "aureservoir.db", "sqlite database path")
	return storeKind, dbPath
}

func openClient(ctx context.Context, storeKind, dbPath string) (*resapi.Client, error) {
	client, err := resapi.New(resapi.Options{StoreKind: storeKind, DBPath: dbPath})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	configPath := fs.String("config", "", "optional network config JSON path")
	name := fs.String("name", "", "network name")
	neurons := fs.Int("neurons", 100, "reservoir size")
	inputs := fs.Int("inputs", 1, "input channel count")
	outputs := fs.Int("outputs", 1, "output channel count")
	variant := fs.String("variant", "standard", "simulation variant: standard|square|leaky|bandpass|iir")
	solver := fs.String("solver", "pseudoinverse", "training solver: pseudoinverse|leastsquares|ridge")
	reservoirAct := fs.String("reservoir-activation", "tanh", "reservoir activation function")
	outputAct := fs.String("output-activation", "linear", "output activation function")
	noise := fs.Float64("noise", 0, "additive state noise amplitude")
	leakRate := fs.Float64("leak-rate", 0, "leaky integration rate in [0,1]")
	tikhonov := fs.Float64("tikhonov", 0, "ridge regularization factor")
	seed := fs.Int64("seed", 0, "rng seed (0 uses wall clock)")
	connectivity := fs.Float64("connectivity", 0.1, "reservoir weight density")
	alpha := fs.Float64("alpha", 0.8, "target spectral radius")
	fbConnectivity := fs.Float64("fb-connectivity", 0, "feedback weight density")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadOrDefaultCreateRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = resapi.CreateRequest{
			Name:                *name,
			Neurons:             *neurons,
			Inputs:              *inputs,
			Outputs:             *outputs,
			Variant:             *variant,
			Solver:              *solver,
			ReservoirActivation: *reservoirAct,
			OutputActivation:    *outputAct,
			Noise:               *noise,
			LeakRate:            *leakRate,
			TikhonovFactor:      *tikhonov,
			Seed:                *seed,
			Connectivity:        *connectivity,
			Alpha:               *alpha,
			FBConnectivity:      *fbConnectivity,
		}
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.CreateNetwork(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("created network id=%s name=%s variant=%s solver=%s neurons=%s\n",
		summary.ID, summary.Name, summary.Variant, summary.Solver, humanize.Comma(int64(summary.Neurons)))
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "network id")
	dataPath := fs.String("data", "", "training series JSON path (input and target)")
	washout := fs.Int("washout", 0, "initial steps discarded from training")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("train requires -id")
	}
	if *dataPath == "" {
		return usageError("train requires -data")
	}

	series, err := loadSeries(*dataPath)
	if err != nil {
		return err
	}
	if len(series.Target) == 0 {
		return fmt.Errorf("training data %s has no target series", *dataPath)
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	handle, err := client.Open(ctx, *id)
	if err != nil {
		return err
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("training %s on %s steps...\n", handle.Name(), humanize.Comma(int64(len(series.Input[0]))))
	}

	result, err := handle.Train(ctx, series.Input, series.Target, *washout)
	if err != nil {
		return err
	}
	fmt.Printf("trained run=%s solver=%s steps=%s retained=%s mse=%.6g\n",
		result.RunID, result.Solver,
		humanize.Comma(int64(result.Steps)), humanize.Comma(int64(result.RetainedRows)),
		result.TrainMSE)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "network id")
	dataPath := fs.String("data", "", "input series JSON path")
	outPath := fs.String("out", "", "output JSON path (default stdout)")
	reset := fs.Bool("reset", false, "reset reservoir state before simulating")
	save := fs.Bool("save", false, "persist the post-run reservoir state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("run requires -id")
	}
	if *dataPath == "" {
		return usageError("run requires -data")
	}

	series, err := loadSeries(*dataPath)
	if err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	handle, err := client.Open(ctx, *id)
	if err != nil {
		return err
	}
	if *reset {
		handle.ResetState()
	}

	out, err := handle.Simulate(series.Input)
	if err != nil {
		return err
	}
	if *save {
		if err := handle.Save(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(map[string]any{"output": out})
	if err != nil {
		return err
	}
	if *outPath == "" {
		fmt.Println(string(payload))
		return nil
	}
	return os.WriteFile(*outPath, payload, 0o644)
}

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "network id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("info requires -id")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	handle, err := client.Open(ctx, *id)
	if err != nil {
		return err
	}
	summary := handle.Summary()
	fmt.Printf("network id=%s name=%s\n", summary.ID, summary.Name)
	fmt.Printf("  neurons=%s inputs=%d outputs=%d\n", humanize.Comma(int64(summary.Neurons)), summary.Inputs, summary.Outputs)
	fmt.Printf("  variant=%s solver=%s trained=%t\n", summary.Variant, summary.Solver, summary.Trained)

	runs, err := client.TrainingRuns(ctx, *id)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("  run=%s solver=%s steps=%s retained=%s mse=%.6g at=%s\n",
			run.RunID, run.Solver,
			humanize.Comma(int64(run.Steps)), humanize.Comma(int64(run.RetainedRows)),
			run.TrainMSE, run.CreatedAtUTC)
	}
	return nil
}

func runNetworks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("networks", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	networks, err := client.Networks(ctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		fmt.Printf("%s name=%s variant=%s solver=%s neurons=%s trained=%t\n",
			n.ID, n.Name, n.Variant, n.Solver, humanize.Comma(int64(n.Neurons)), n.Trained)
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "network id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return usageError("delete requires -id")
	}

	client, err := openClient(ctx, *storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.DeleteNetwork(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted network id=%s\n", *id)
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: aureservoirctl <init|create|train|run|info|networks|delete> [flags]", msg)
}
