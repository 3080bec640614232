// Package statefile reads and writes exported accumulator state as JSON or
// YAML, chosen by file extension.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/psantana5/timinghooks/pkg/timers"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads and validates one state file
func Load(path string) (timers.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state timers.State
	if isYAML(path) {
		err = yaml.Unmarshal(data, &state)
	} else {
		err = json.Unmarshal(data, &state)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", timers.ErrInvalidState, path, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}

// LoadAll merges every file into one accumulator. Nothing is returned if any
// file fails to load.
func LoadAll(paths []string, opts ...timers.Option) (*timers.Timers, error) {
	merged := timers.New(opts...)
	for _, path := range paths {
		state, err := Load(path)
		if err != nil {
			return nil, err
		}
		if err := merged.MergeState(state); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return merged, nil
}

// Save writes state to path, replacing the file
func Save(path string, state timers.State) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(state)
	} else {
		data, err = json.MarshalIndent(state, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	// write to a temporary file first so a crash never leaves half a file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
