package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	snapshotPrefix = "session:"
	queuePrefix    = "queue:"
)

var ErrNotFound = errors.New("session not found")

// KV is the durable storage the manager writes to. Last write wins.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type Manager struct {
	kv         KV
	appVersion string
	now        func() time.Time
}

func NewManager(kv KV, appVersion string) *Manager {
	return &Manager{kv: kv, appVersion: appVersion, now: time.Now}
}

// NewID returns a fresh session identifier.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

// New starts a snapshot for a run.
func (m *Manager) New(mode Mode, cfg RunConfig, sourceText, fingerprint string) *Snapshot {
	return &Snapshot{
		Meta: Meta{
			Version:    SnapshotVersion,
			CreatedAt:  m.now().UTC(),
			AppVersion: m.appVersion,
		},
		SourceFingerprint: fingerprint,
		Config:            cfg,
		Mode:              mode,
		SourceText:        sourceText,
		TranslatedChunks:  map[int]ChunkRecord{},
	}
}

func (m *Manager) Save(ctx context.Context, id string, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := m.kv.Set(ctx, snapshotPrefix+id, data); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

func (m *Manager) Load(ctx context.Context, id string) (*Snapshot, error) {
	data, ok, err := m.kv.Get(ctx, snapshotPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if s.TranslatedChunks == nil {
		s.TranslatedChunks = map[int]ChunkRecord{}
	}
	return &s, nil
}

// Delete removes the snapshot and any queue stored for id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, ok, err := m.kv.Get(ctx, snapshotPrefix+id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := m.kv.Delete(ctx, snapshotPrefix+id); err != nil {
		return err
	}
	return m.kv.Delete(ctx, queuePrefix+id)
}

// Summary is one line of a session listing.
type Summary struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time
	Input     string
	Total     int
	Processed int
	Failed    int
}

func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	keys, err := m.kv.Keys(ctx, snapshotPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, snapshotPrefix)
		s, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		sum := Summary{
			ID:        id,
			Mode:      s.Mode,
			CreatedAt: s.Meta.CreatedAt,
			Input:     s.Config.Input,
			Total:     s.Progress.TotalChunks,
			Processed: s.Progress.ProcessedChunks,
		}
		for _, rec := range s.TranslatedChunks {
			if rec.Status == StatusFailed {
				sum.Failed++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (m *Manager) SaveQueue(ctx context.Context, id string, q *ExtractionQueue) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	return m.kv.Set(ctx, queuePrefix+id, data)
}

// LoadQueue returns the stored queue for id, or nil when there is none.
func (m *Manager) LoadQueue(ctx context.Context, id string) (*ExtractionQueue, error) {
	data, ok, err := m.kv.Get(ctx, queuePrefix+id)
	if err != nil || !ok {
		return nil, err
	}
	var q ExtractionQueue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to decode queue %s: %w", id, err)
	}
	return &q, nil
}
