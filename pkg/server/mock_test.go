package server

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/sunrudder/sunrudder/pkg/loop"
	"github.com/sunrudder/sunrudder/pkg/types"
)

type mockLoop struct {
	mock.Mock
}

func (m *mockLoop) State(ctx context.Context) types.SystemState {
	args := m.Called(ctx)
	return args.Get(0).(types.SystemState)
}

func (m *mockLoop) DryRun(ctx context.Context) (types.SystemState, types.Decision) {
	args := m.Called(ctx)
	return args.Get(0).(types.SystemState), args.Get(1).(types.Decision)
}

func (m *mockLoop) RunOnce(ctx context.Context) loop.Tick {
	args := m.Called(ctx)
	return args.Get(0).(loop.Tick)
}

func (m *mockLoop) Actuate(ctx context.Context, action types.DeviceAction) loop.Manual {
	args := m.Called(ctx, action)
	return args.Get(0).(loop.Manual)
}
