package app

import "time"

// Scheduler arms a single-shot callback after d and returns a cancel func.
// The default implementation wraps time.AfterFunc; tests substitute a manual
// scheduler to fire deadlines deterministically.
type Scheduler func(d time.Duration, fn func()) (cancel func())

func realScheduler(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// timerController owns the at-most-one pending deadline of a session. All
// methods must be called with the session lock held.
type timerController struct {
	schedule Scheduler
	cancel   func()
}

func newTimerController(schedule Scheduler) *timerController {
	return &timerController{schedule: schedule}
}

// arm cancels any pending deadline and schedules a new one.
func (t *timerController) arm(d time.Duration, fn func()) {
	t.disarm()
	t.cancel = t.schedule(d, fn)
}

func (t *timerController) disarm() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
