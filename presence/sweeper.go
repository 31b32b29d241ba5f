package presence

import (
	"time"

	"github.com/robfig/cron/v3"
)

// StartSweeper schedules the registry sweeps. The returned cron is already
// running; Stop it on shutdown.
func StartSweeper(typing *TypingRegistry, active *ActiveTracker) *cron.Cron {
	runner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if typing != nil {
		// cron specs are validated constants, AddFunc cannot fail here
		_, _ = runner.AddFunc(TypingSweepSpec, typing.Sweep)
	}
	if active != nil {
		_, _ = runner.AddFunc(ActiveSweepSpec, active.Sweep)
	}
	runner.Start()
	return runner
}
