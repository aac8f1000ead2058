package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Repository mirrors the session table as an opaque snapshot. Saves are
// best-effort and run after every store mutation; Load runs once at startup.
type Repository interface {
	Load(ctx context.Context) (map[string]Session, error)
	Save(ctx context.Context, sessions map[string]Session) error
}

// FileRepo keeps the snapshot in a local JSON file. This is the default
// backend and matches the durability bar of "reload last snapshot on
// restart" and nothing more.
type FileRepo struct {
	path string
}

func NewFileRepo(path string) (*FileRepo, error) {
	if path == "" {
		return nil, errors.New("session: file path is required")
	}
	return &FileRepo{path: path}, nil
}

func (r *FileRepo) Load(ctx context.Context) (map[string]Session, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Session{}, nil
		}
		return nil, err
	}
	var out map[string]Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]Session{}
	}
	return out, nil
}

func (r *FileRepo) Save(ctx context.Context, sessions map[string]Session) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	// Write-then-rename keeps a crashed save from truncating the snapshot.
	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil && filepath.Dir(r.path) != "." {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// MemoryRepo is an in-memory repository for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	snapshot map[string]Session
	saves    int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Load(ctx context.Context) (map[string]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Session, len(r.snapshot))
	for k, v := range r.snapshot {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepo) Save(ctx context.Context, sessions map[string]Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = make(map[string]Session, len(sessions))
	for k, v := range sessions {
		r.snapshot[k] = v
	}
	r.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (r *MemoryRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
