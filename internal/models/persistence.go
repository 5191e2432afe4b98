package models

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveDir is where sessions and the YAML ghost memory live.
var SaveDir = ".saves"

// ErrNoSession is returned when a named session has never been saved.
var ErrNoSession = errors.New("no saved session")

// Save writes the session under SaveDir/name as state.yaml and history.yaml.
func (s *SessionState) Save(name string) error {
	dir := filepath.Join(SaveDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// History is kept in its own file so state.yaml stays small.
	state := *s
	state.History = GameHistory{}
	stateData, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "state.yaml"), stateData, 0644); err != nil {
		return err
	}

	historyData, err := yaml.Marshal(s.History)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "history.yaml"), historyData, 0644); err != nil {
		return err
	}

	return nil
}

// LoadSession reads a session saved with Save.
func LoadSession(name string) (*SessionState, error) {
	dir := filepath.Join(SaveDir, name)

	stateData, err := os.ReadFile(filepath.Join(dir, "state.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, name)
	}
	if err != nil {
		return nil, err
	}
	var state SessionState
	if err := yaml.Unmarshal(stateData, &state); err != nil {
		return nil, fmt.Errorf("parse state of %s: %w", name, err)
	}

	historyData, err := os.ReadFile(filepath.Join(dir, "history.yaml"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(historyData, &state.History); err != nil {
			return nil, fmt.Errorf("parse history of %s: %w", name, err)
		}
	}
	if state.Stats == nil {
		state.Stats = DefaultStats()
	}

	return &state, nil
}

// ListSessions returns the names of saved sessions.
func ListSessions() ([]string, error) {
	if _, err := os.Stat(SaveDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(SaveDir)
	if err != nil {
		return nil, err
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			// state.yaml marks a valid session
			statePath := filepath.Join(SaveDir, entry.Name(), "state.yaml")
			if _, err := os.Stat(statePath); err == nil {
				sessions = append(sessions, entry.Name())
			}
		}
	}
	return sessions, nil
}

// GhostStore persists ghost memory across sessions.
type GhostStore interface {
	LoadGhost(ctx context.Context) (*GhostMemory, error)
	SaveGhost(ctx context.Context, g *GhostMemory) error
}

// FileGhostStore keeps ghost memory in a single YAML file.
type FileGhostStore struct {
	Path string
}

// NewFileGhostStore stores ghost memory at SaveDir/ghost.yaml.
func NewFileGhostStore() *FileGhostStore {
	return &FileGhostStore{Path: filepath.Join(SaveDir, "ghost.yaml")}
}

// LoadGhost returns an empty memory when the file does not exist yet.
func (f *FileGhostStore) LoadGhost(ctx context.Context) (*GhostMemory, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return &GhostMemory{}, nil
	}
	if err != nil {
		return nil, err
	}
	var g GhostMemory
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse ghost memory: %w", err)
	}
	return &g, nil
}

func (f *FileGhostStore) SaveGhost(ctx context.Context, g *GhostMemory) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(g)
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}
