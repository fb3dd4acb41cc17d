//go:build unix

package lock

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileExclusivity(t *testing.T) {
	testExclusivity(t, NewFileExclusivity(t.TempDir()))
}

func TestFileExclusivityLockFile(t *testing.T) {
	assert := require.New(t)

	ex := NewFileExclusivity(t.TempDir())
	g, err := ex.AcquireExclusive(DeviceLockName)
	assert.NoError(err)
	defer g.Release()

	_, err = os.Stat(filepath.Join(ex.Dir(), DeviceLockName))
	assert.NoError(err, "lock file must exist at a well known path")

	// a second instance on the same directory sees the same lock
	_, ok, err := NewFileExclusivity(ex.Dir()).TryAcquireExclusive(DeviceLockName)
	assert.NoError(err)
	assert.False(ok)
}

func TestFileExclusivityIOFailure(t *testing.T) {
	assert := require.New(t)

	ex := NewFileExclusivity(filepath.Join(t.TempDir(), "missing", "dir"))

	_, err := ex.AcquireExclusive(DeviceLockName)
	assert.ErrorIs(err, ErrLock)
	assert.ErrorIs(err, os.ErrNotExist)

	_, ok, err := ex.TryAcquireExclusive(DeviceLockName)
	assert.ErrorIs(err, ErrLock)
	assert.False(ok, "an I/O failure is never reported as held")
}

func TestFileExclusivityDefaultDir(t *testing.T) {
	require.Equal(t, os.TempDir(), NewFileExclusivity("").Dir())
}

func TestReleaseHeld(t *testing.T) {
	assert := require.New(t)

	ex := NewFileExclusivity(t.TempDir())
	g, err := ex.AcquireExclusive("abrupt")
	assert.NoError(err)

	releaseHeld()

	g2, ok, err := ex.TryAcquireExclusive("abrupt")
	assert.NoError(err)
	assert.True(ok, "held locks are released on exit")
	assert.NoError(g2.Release())
	assert.NoError(g.Release())
}

const holderDirEnv = "GNARK_GPU_LOCK_HOLDER_DIR"

// holdDeviceLock runs in a child test process: it takes the device lock and
// waits to be signaled.
func holdDeviceLock(t *testing.T, dir string) {
	g, err := NewFileExclusivity(dir).AcquireExclusive(DeviceLockName)
	require.NoError(t, err)
	fmt.Println("locked")
	time.Sleep(time.Minute)
	g.Release()
	t.Fatal("still running after the signal")
}

func TestExitOnSignal(t *testing.T) {
	if dir := os.Getenv(holderDirEnv); dir != "" {
		holdDeviceLock(t, dir)
		return
	}
	for _, sig := range []unix.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGTSTP} {
		t.Run(unix.SignalName(sig), func(t *testing.T) {
			assert := require.New(t)

			dir := t.TempDir()
			cmd := exec.Command(os.Args[0], "-test.run=^TestExitOnSignal$")
			cmd.Env = append(os.Environ(), holderDirEnv+"="+dir)
			out, err := cmd.StdoutPipe()
			assert.NoError(err)
			assert.NoError(cmd.Start())

			line, err := bufio.NewReader(out).ReadString('\n')
			assert.NoError(err)
			assert.Equal("locked\n", line)

			ex := NewFileExclusivity(dir)
			_, ok, err := ex.TryAcquireExclusive(DeviceLockName)
			assert.NoError(err)
			assert.False(ok, "the child holds the device")

			assert.NoError(cmd.Process.Signal(sig))
			done := make(chan error, 1)
			go func() { done <- cmd.Wait() }()
			select {
			case err = <-done:
			case <-time.After(10 * time.Second):
				cmd.Process.Kill()
				<-done
				t.Fatalf("process kept running after %s", unix.SignalName(sig))
			}
			var exitErr *exec.ExitError
			assert.ErrorAs(err, &exitErr)
			assert.Equal(128+int(sig), exitErr.ExitCode())

			g, ok, err := ex.TryAcquireExclusive(DeviceLockName)
			assert.NoError(err)
			assert.True(ok, "the lock is free once the holder is gone")
			assert.NoError(g.Release())
		})
	}
}
