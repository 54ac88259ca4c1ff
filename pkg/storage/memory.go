package storage

import (
	"context"
	"sync"

	"github.com/sunrudder/sunrudder/pkg/types"
)

// Memory keeps settings in process memory. Settings are lost on restart.
type Memory struct {
	mu       sync.Mutex
	settings *types.Settings
	version  int
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetSettings(ctx context.Context) (types.Settings, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return types.Settings{}, 0, ErrSettingsNotFound
	}
	return m.settings.Clone(), m.version, nil
}

func (m *Memory) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := settings.Clone()
	m.settings = &s
	m.version = version
	return nil
}

func (m *Memory) Close() error {
	return nil
}
