package state

import (
	"context"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Static always returns the same state. It is useful for trying out
// settings without a Home Assistant instance.
type Static struct {
	mu    sync.Mutex
	state types.SystemState
}

func configuredStatic() *Static {
	initial := types.DefaultSystemState()
	var state types.SystemState
	lflag.JSON(&state, "static-state", initial, "JSON SystemState returned by the static state provider")

	s := &Static{}
	lflag.Do(func() {
		s.state = state
	})
	return s
}

// NewStatic returns a Static provider returning state.
func NewStatic(state types.SystemState) *Static {
	return &Static{state: state}
}

// Set replaces the state returned from now on.
func (s *Static) Set(state types.SystemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Static) GetCurrentState(ctx context.Context) types.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Timestamp = time.Now()
	return st
}
