package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/harness"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		Filter string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run reservation scenarios",
		Long: `Run YAML reservation scenarios against an in-memory engine.

Each scenario configures its own lots, runs its steps at explicit
instants and checks the expected outcomes and final assertions. The
configured event log is never touched.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lotledger test ./scenarios
  lotledger test ./scenarios --filter "cancel*"
  lotledger test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		// Scenarios need no configuration; skip the root's config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(args[0], opts.Filter, opts.RootOptions, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(dir, filter string, opts *RootOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenarioFile(file)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		status := "ok"
		if result.Failed > 0 {
			status = "error"
		}
		if err := encoder.Encode(CLIResponse{Status: status, Data: result}); err != nil {
			return err
		}
	} else {
		writeTestText(cmd, result, opts.Verbose)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

func runScenarioFile(file string) ScenarioResult {
	sr := ScenarioResult{Name: strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = scenario.Name

	res, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Pass = res.Pass
	sr.Errors = res.Errors
	return sr
}

// findScenarioFiles lists .yaml and .yml files in dir, sorted, optionally
// filtered by a glob on the base name.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, name)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}

func writeTestText(cmd *cobra.Command, result TestResult, verbose bool) {
	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			if verbose {
				fmt.Fprintf(w, "  %s\n", sr.File)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
