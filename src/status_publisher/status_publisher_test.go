package status_publisher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) *Publisher {
	dir := t.TempDir()
	return NewPublisher(filepath.Join(dir, "status.json"), filepath.Join(dir, "backend.pid"))
}

func TestPublishAndRead(t *testing.T) {
	p := newTestPublisher(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	rec, err := p.Read()
	require.NoError(t, err)
	assert.Nil(t, rec, "no status before the first publish")

	clients := 2
	require.NoError(t, p.Publish(Record{
		Phase:     session.PhaseActive,
		Message:   "Hotspot Cafe is active on wlp2s0",
		Interface: "wlp2s0",
		SSID:      "Cafe",
		Clients:   &clients,
	}))

	rec, err = p.Read()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, session.PhaseActive, rec.Phase)
	assert.Equal(t, fixed, rec.Timestamp.UTC())
	assert.Equal(t, "wlp2s0", rec.Interface)
	require.NotNil(t, rec.Clients)
	assert.Equal(t, 2, *rec.Clients)
	assert.Empty(t, rec.ErrorCode)

	info, err := os.Stat(p.StatusPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestPublishErrorCodeOnWire(t *testing.T) {
	p := newTestPublisher(t)
	require.NoError(t, p.Publish(Record{
		Phase:     session.PhaseError,
		Message:   "wlp2s0 is the only connection to the internet",
		ErrorCode: "safety.single_adapter_lockout",
	}))

	data, err := os.ReadFile(p.StatusPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errorCode": "safety.single_adapter_lockout"`)
	assert.Contains(t, string(data), `"phase": "error"`)
	assert.NotContains(t, string(data), "clients")
}

func TestPublishLeavesNoTemporaryFiles(t *testing.T) {
	p := newTestPublisher(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(Record{Phase: session.PhaseStarting, Message: "Starting"}))
	}
	entries, err := os.ReadDir(filepath.Dir(p.StatusPath()))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"status.json"}, names)
}

func TestReadStatusCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := ReadStatus(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0644))
	rec, err := ReadStatus(path)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPIDMarker(t *testing.T) {
	p := newTestPublisher(t)

	pid, err := p.ReadPID()
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, p.WritePID(4242))
	pid, err = p.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	// another controller's marker is left alone
	require.NoError(t, p.RemovePID(1111))
	pid, _ = p.ReadPID()
	assert.Equal(t, 4242, pid)

	require.NoError(t, p.RemovePID(4242))
	pid, _ = p.ReadPID()
	assert.Zero(t, pid)
}

func TestSystemProcessesAlive(t *testing.T) {
	procs := SystemProcesses{}
	assert.True(t, procs.Alive(os.Getpid()))
	assert.False(t, procs.Alive(0))
	assert.False(t, procs.Alive(-1))
	assert.Error(t, procs.Signal(0, 0))
}

func TestWatchDeliversUpdates(t *testing.T) {
	p := newTestPublisher(t)
	require.NoError(t, p.Publish(Record{Phase: session.PhaseStarting, Message: "Starting"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var phases []session.Phase
	seen := make(chan struct{}, 8)

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p.StatusPath(), func(rec *Record) {
			mu.Lock()
			phases = append(phases, rec.Phase)
			mu.Unlock()
			seen <- struct{}{}
		})
	}()

	select {
	case <-seen:
	case <-ctx.Done():
		t.Fatal("initial record was not delivered")
	}

	require.NoError(t, p.Publish(Record{Phase: session.PhaseActive, Message: "Active"}))

	select {
	case <-seen:
	case <-ctx.Done():
		t.Fatal("update was not delivered")
	}

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, session.PhaseStarting, phases[0])
	assert.Equal(t, session.PhaseActive, phases[len(phases)-1])
}
