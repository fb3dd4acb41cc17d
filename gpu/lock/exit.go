package lock

import (
	"os"
	"os/signal"

	"github.com/dc0d/onexit"
)

// onexit traps the termination signals as soon as it is imported but leaves
// the process running, so the lock package terminates it once held locks
// are released. A process must never keep running after its locks are gone.
func init() {
	onexit.Register(releaseHeld)
	exitOnSignal(exitSignals...)
}

func exitOnSignal(sigs ...os.Signal) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, sigs...)
	go func() {
		s := <-sigc
		onexit.ForceExit(signalExitCode(s))
	}()
}
