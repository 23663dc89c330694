package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	Trace        []TraceStep `json:"trace"`
}

// MarshalTrace renders a result's trace as indented JSON with a trailing
// newline. Field order is fixed by the struct definitions, so equal runs
// produce equal bytes.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{ScenarioName: name, Trace: result.Trace}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
