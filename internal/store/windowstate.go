package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// WindowState is the persisted host window geometry. The window host
// reads and applies it at startup; this core only owns the file shape.
type WindowState struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Maximized  bool `json:"maximized"`
	Fullscreen bool `json:"fullscreen"`
}

// DefaultWindowState returns the geometry used when no saved state
// exists.
func DefaultWindowState() WindowState {
	return WindowState{Width: 1280, Height: 720}
}

// LoadWindowState reads saved window geometry, returning the default
// when the file is missing.
func LoadWindowState(path string) (WindowState, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultWindowState(), nil
	}
	if err != nil {
		return DefaultWindowState(), fmt.Errorf("failed to read window state: %w", err)
	}
	var state WindowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return DefaultWindowState(), fmt.Errorf("failed to parse window state: %w", err)
	}
	return state, nil
}

// SaveWindowState persists window geometry.
func SaveWindowState(path string, state WindowState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode window state: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write window state: %w", err)
	}
	return nil
}
