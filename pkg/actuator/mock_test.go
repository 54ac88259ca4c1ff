package actuator

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
	"github.com/sunrudder/sunrudder/pkg/types"
)

type mockActuator struct {
	mock.Mock
}

func (m *mockActuator) Execute(ctx context.Context, action types.DeviceAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *mockActuator) Close() error {
	return nil
}

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	args := m.Called(ctx, domain, service, entityID, data)
	return args.Error(0)
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) ObserveAction(action types.DeviceAction, err error) {
	m.Called(action, err)
}

// doneToken is an already completed mqtt.Token.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool {
	return true
}

func (t doneToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (t doneToken) Error() error {
	return t.err
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}
