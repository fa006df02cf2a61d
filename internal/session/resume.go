package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"geminivoice-go/internal/storage"
)

const (
	// ResumeKey is the storage key of the session resumption document.
	ResumeKey = "gf_session"
	// DefaultResumeTTL bounds how long a resumption handle is offered back to the upstream.
	DefaultResumeTTL = 2 * time.Hour
)

// ResumeState is the persisted resumption handle.
type ResumeState struct {
	Handle    string         `json:"handle"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ResumeStore keeps the newest session resumption handle in a storage backend.
type ResumeStore struct {
	backend storage.Backend
	ttl     time.Duration
	now     func() time.Time

	mu sync.Mutex
}

// NewResumeStore stores handles in backend; ttl <= 0 uses DefaultResumeTTL.
func NewResumeStore(backend storage.Backend, ttl time.Duration) *ResumeStore {
	if ttl <= 0 {
		ttl = DefaultResumeTTL
	}
	return &ResumeStore{backend: backend, ttl: ttl, now: time.Now}
}

// Save records handle as the newest one.
func (s *ResumeStore) Save(ctx context.Context, handle string, metadata map[string]any) error {
	if handle == "" {
		return nil
	}
	data, err := json.MarshalIndent(ResumeState{Handle: handle, Timestamp: s.now().UTC(), Metadata: metadata}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode resume state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.PutDocument(ctx, ResumeKey, data)
}

// Load returns the stored handle, or "" when there is none or it has expired.
// Expired handles are removed.
func (s *ResumeStore) Load(ctx context.Context) (string, error) {
	st, err := s.State(ctx)
	if err != nil || st == nil {
		return "", err
	}
	return st.Handle, nil
}

// State returns the stored state when it is still valid.
func (s *ResumeStore) State(ctx context.Context) (*ResumeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.GetDocument(ctx, ResumeKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var st ResumeState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode resume state: %w", err)
	}
	if st.Handle == "" || s.now().Sub(st.Timestamp) > s.ttl {
		_ = s.backend.DeleteDocument(ctx, ResumeKey)
		return nil, nil
	}
	return &st, nil
}

// Clear forgets the stored handle.
func (s *ResumeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.DeleteDocument(ctx, ResumeKey)
}
