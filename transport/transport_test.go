package transport_test

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/transport"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func newTransport(t *testing.T, cfg transport.Config) *transport.Transport {
	t.Helper()
	return transport.New(cfg, zaptest.NewLogger(t).Sugar())
}

func TestStartSpawnFailure(t *testing.T) {
	tr := newTransport(t, transport.Config{Command: "/nonexistent/ferrule-test-binary"})

	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
}

func TestWriteReadRoundTrip(t *testing.T) {
	requireTool(t, "cat")

	tr := newTransport(t, transport.Config{Command: "cat"})
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop(context.Background())

	payload := []byte("Content-Length: 2\r\n\r\n{}")
	n, err := tr.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	echo := make([]byte, len(payload))
	_, err = io.ReadFull(tr.Reader(), echo)
	require.NoError(t, err)
	assert.Equal(t, payload, echo)
}

func TestWriteAfterStop(t *testing.T) {
	requireTool(t, "cat")

	tr := newTransport(t, transport.Config{Command: "cat"})
	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.Stop(context.Background()))

	_, err := tr.Write([]byte("late"))
	require.Error(t, err)
	assert.True(t, errors.IsConnectionClosed(err))
}

func TestWriteBeforeStart(t *testing.T) {
	tr := newTransport(t, transport.Config{Command: "cat"})

	_, err := tr.Write([]byte("early"))
	require.Error(t, err)
	assert.False(t, errors.IsConnectionClosed(err))
}

func TestStopIdempotent(t *testing.T) {
	requireTool(t, "cat")

	tr := newTransport(t, transport.Config{Command: "cat"})
	require.NoError(t, tr.Start(context.Background()))

	require.NoError(t, tr.Stop(context.Background()))
	require.NoError(t, tr.Stop(context.Background()))

	select {
	case <-tr.Done():
	default:
		t.Fatal("done channel not closed after Stop")
	}
}

func TestStopBeforeStart(t *testing.T) {
	tr := newTransport(t, transport.Config{Command: "cat"})
	require.NoError(t, tr.Stop(context.Background()))

	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConnectionClosed(err))
}

func TestDoneOnSpontaneousExit(t *testing.T) {
	requireTool(t, "sh")

	tr := newTransport(t, transport.Config{Command: "sh", Args: []string{"-c", "true"}})
	require.NoError(t, tr.Start(context.Background()))

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process exit never observed")
	}

	// The stdout pipe is gone once the child is reaped
	buf := make([]byte, 1)
	_, err := tr.Reader().Read(buf)
	assert.Error(t, err)
}

func TestStopKillsChildIgnoringStdin(t *testing.T) {
	requireTool(t, "sleep")

	tr := newTransport(t, transport.Config{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, tr.Start(context.Background()))

	// sleep never reads stdin, so only the kill path can end it. A canceled
	// ctx takes that path without sitting out the grace period.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, tr.Stop(ctx))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not kill the child")
	}
}

func TestDirAndEnv(t *testing.T) {
	requireTool(t, "sh")

	dir := t.TempDir()
	tr := newTransport(t, transport.Config{
		Command: "sh",
		Args:    []string{"-c", `pwd; printf '%s\n' "$FERRULE_TEST_VALUE"`},
		Dir:     dir,
		Env:     map[string]string{"FERRULE_TEST_VALUE": "forty-two"},
	})
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop(context.Background())

	scanner := bufio.NewScanner(tr.Reader())

	require.True(t, scanner.Scan())
	got, err := filepath.EvalSymlinks(scanner.Text())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.True(t, scanner.Scan())
	assert.Equal(t, "forty-two", scanner.Text())
}

func TestPid(t *testing.T) {
	requireTool(t, "cat")

	tr := newTransport(t, transport.Config{Command: "cat"})
	assert.Zero(t, tr.Pid())

	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop(context.Background())
	assert.Positive(t, tr.Pid())
}

func TestConcurrentWritesStayWhole(t *testing.T) {
	requireTool(t, "cat")

	tr := newTransport(t, transport.Config{Command: "cat"})
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop(context.Background())

	const writers = 8
	const width = 512

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			line := strings.Repeat(string(rune('a'+n)), width) + "\n"
			_, err := tr.Write([]byte(line))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every echoed line must come back homogeneous; a torn write would
	// interleave letters from two goroutines.
	scanner := bufio.NewScanner(tr.Reader())
	for seen := 0; seen < writers; seen++ {
		require.True(t, scanner.Scan(), "missing line %d", seen)
		line := scanner.Text()
		require.Len(t, line, width)
		assert.Equal(t, strings.Repeat(line[:1], width), line)
	}
}
