package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func recording(name string, events *[]string, requires ...string) *Dependency {
	return &Dependency{
		Name:     name,
		Requires: requires,
		OnStart: func(context.Context) error {
			*events = append(*events, "start "+name)
			return nil
		},
		OnStop: func(context.Context) error {
			*events = append(*events, "stop "+name)
			return nil
		},
	}
}

func TestStartup_OrderAndStop(t *testing.T) {
	var events []string
	s := testStartup(1)
	s.AddDependency(recording("migrations", &events, "database"))
	s.AddDependency(recording("database", &events))
	s.AddDependency(recording("redis", &events))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start migrations", "start redis"}, events)
	assert.Equal(t, StartupStatusStarted, s.Status("migrations"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop redis", "stop migrations", "stop database"}, events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilHealthy(t *testing.T) {
	calls := 0
	s := testStartup(3)
	s.AddDependency(&Dependency{Name: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := testStartup(2)
	s.AddDependency(&Dependency{Name: "kafka", OnStart: func(context.Context) error {
		return errors.New("no brokers")
	}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup failed after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		s := testStartup(1)
		s.AddDependency(&Dependency{Name: "api", Requires: []string{"cache"}})
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("cycle", func(t *testing.T) {
		s := testStartup(1)
		s.AddDependency(&Dependency{Name: "a", Requires: []string{"b"}})
		s.AddDependency(&Dependency{Name: "b", Requires: []string{"a"}})
		assert.ErrorContains(t, s.Start(context.Background()), "cycle")
	})
}
