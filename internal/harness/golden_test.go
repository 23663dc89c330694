package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"cancel_then_rebook", "noshow_vs_expired"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)

			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_AllPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)

			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
