package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/timinghooks/pkg/timers"
)

var sample = timers.State{
	"reading":     {{Start: 0, End: 1}, {Start: 3, End: 4}},
	"computation": {{Start: 1, End: 3}},
}

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"state.json", "state.yaml", "state.YML"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, sample))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sample, loaded)

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temporary file left behind")
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0644))
	_, err := Load(garbage)
	assert.True(t, errors.Is(err, timers.ErrInvalidState), "got %v", err)

	reversed := filepath.Join(dir, "reversed.yaml")
	require.NoError(t, os.WriteFile(reversed, []byte("x:\n  - {start: 2, end: 1}\n"), 0644))
	_, err = Load(reversed)
	assert.True(t, errors.Is(err, timers.ErrInvalidState), "got %v", err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, Save(a, sample))
	require.NoError(t, Save(b, timers.State{"reading": {{Start: 10, End: 12}}}))

	merged, err := LoadAll([]string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Count("reading"))
	assert.Equal(t, 1, merged.Count("computation"))

	_, err = LoadAll([]string{a, filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}
