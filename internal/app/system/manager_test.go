package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	events   *[]string
	startErr error
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(context.Context) error {
	*s.events = append(*s.events, "start "+s.name)
	return s.startErr
}

func (s recordingService) Stop(context.Context) error {
	*s.events = append(*s.events, "stop "+s.name)
	return nil
}

func TestManagerOrdersLifecycle(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(recordingService{name: "b", events: &events}))
	assert.Error(t, m.Register(recordingService{name: "a", events: &events}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Register(NoopService{ServiceName: "late"}))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	m := NewManager()
	require.NoError(t, m.Register(recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(recordingService{name: "b", events: &events, startErr: errors.New("boom")}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, events)
}
