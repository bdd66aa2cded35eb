package main

import (
	"encoding/json"
	"fmt"
	"os"

	resapi "aureservoir/pkg/aureservoir"
)

func loadCreateRequestFromConfig(path string) (resapi.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return resapi.CreateRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return resapi.CreateRequest{}, err
	}

	var req resapi.CreateRequest
	if v, ok := asString(raw["name"]); ok {
		req.Name = v
	}
	if v, ok := asInt(raw["neurons"]); ok {
		req.Neurons = v
	}
	if v, ok := asInt(raw["inputs"]); ok {
		req.Inputs = v
	}
	if v, ok := asInt(raw["outputs"]); ok {
		req.Outputs = v
	}
	if v, ok := asString(raw["variant"]); ok {
		req.Variant = v
	}
	if v, ok := asString(raw["solver"]); ok {
		req.Solver = v
	}
	if v, ok := asString(raw["reservoir_activation"]); ok {
		req.ReservoirActivation = v
	}
	if v, ok := asString(raw["output_activation"]); ok {
		req.OutputActivation = v
	}
	if v, ok := asFloat64(raw["noise"]); ok {
		req.Noise = v
	}
	if v, ok := asFloat64(raw["leak_rate"]); ok {
		req.LeakRate = v
	}
	if v, ok := asFloat64(raw["tikhonov_factor"]); ok {
		req.TikhonovFactor = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asFloat64(raw["connectivity"]); ok {
		req.Connectivity = v
	}
	if v, ok := asFloat64(raw["in_connectivity"]); ok {
		req.InConnectivity = v
	}
	if v, ok := asFloat64(raw["fb_connectivity"]); ok {
		req.FBConnectivity = v
	}
	if v, ok := asFloat64(raw["alpha"]); ok {
		req.Alpha = v
	}
	if v, ok := asFloat64(raw["in_scale"]); ok {
		req.InScale = v
	}
	if v, ok := asFloat64(raw["in_shift"]); ok {
		req.InShift = v
	}
	if v, ok := asFloat64(raw["fb_scale"]); ok {
		req.FBScale = v
	}
	if v, ok := asFloat64(raw["fb_shift"]); ok {
		req.FBShift = v
	}
	return req, nil
}

func loadOrDefaultCreateRequest(configPath string) (resapi.CreateRequest, error) {
	if configPath == "" {
		return resapi.CreateRequest{}, nil
	}
	req, err := loadCreateRequestFromConfig(configPath)
	if err != nil {
		return resapi.CreateRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// series holds channel-major input and target data: one row per
// channel, one column per step.
type series struct {
	Input  [][]float64 `json:"input"`
	Target [][]float64 `json:"target"`
}

func loadSeries(path string) (series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return series{}, err
	}
	var s series
	if err := json.Unmarshal(data, &s); err != nil {
		return series{}, fmt.Errorf("parse series %s: %w", path, err)
	}
	if len(s.Input) == 0 || len(s.Input[0]) == 0 {
		return series{}, fmt.Errorf("series %s has no input data", path)
	}
	for r, row := range s.Input {
		if len(row) != len(s.Input[0]) {
			return series{}, fmt.Errorf("series %s: input channel %d has %d steps, expected %d", path, r, len(row), len(s.Input[0]))
		}
	}
	for r, row := range s.Target {
		if len(row) != len(s.Input[0]) {
			return series{}, fmt.Errorf("series %s: target channel %d has %d steps, expected %d", path, r, len(row), len(s.Input[0]))
		}
	}
	return s, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
