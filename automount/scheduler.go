package automount

import (
	"context"
	"time"
)

// Notify updates m's scheduled deadline and reprograms the auto-unmount
// timer if the heap minimum changed. It is the entry point called by the
// operation dispatcher after every successful operation that touches a
// mount.
func (s *System) Notify(m *Mount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(m)
}

// notifyLocked is notify's body, callable from code that already holds
// s.mu (doMount, the expiry loop).
func (s *System) notifyLocked(m *Mount) {
	if !s.AutoUnmountEnabled() {
		return
	}

	if m != nil {
		if m.linked() {
			s.heap.remove(m)
		}
		if m.Idle() {
			m.unmountDeadline = nowMicro() + s.opts.Timeout.Microseconds()
			s.heap.insert(m)
		} else {
			m.unmountDeadline = unmountNever
		}
	}

	s.reprogramLocked()
}

// reprogramLocked reprograms the timer to the heap's minimum deadline, but
// only touches the timer if that minimum actually changed since the last
// call. Note that Notify on an idle mount recomputes its deadline from the
// current time, so a repeated Notify moves that deadline later.
func (s *System) reprogramLocked() {
	var want int64 = unmountNever
	if top := s.heap.min(); top != nil {
		want = top.unmountDeadline
	}
	if want == s.nextTimerFire {
		return
	}
	s.nextTimerFire = want

	if s.timer == nil {
		return // scheduler goroutine not started (e.g. in unit tests)
	}

	s.timer.Stop()
	if want == unmountNever {
		return
	}
	d := time.Duration(want-nowMicro()) * time.Microsecond
	if d < time.Microsecond {
		d = time.Microsecond
	}
	s.timer.Reset(d)
}

// StartScheduler launches the background goroutine standing in for the
// original implementation's SIGALRM-driven interval timer: a single
// reprogrammable timer, reset to the heap's minimum deadline whenever a
// notify() changes that minimum, that unmounts all expired mounts when it fires. ctx's
// cancellation stops the goroutine.
func (s *System) StartScheduler(ctx context.Context) {
	s.mu.Lock()
	s.timer = time.NewTimer(time.Hour)
	s.timer.Stop()
	s.timerStop = make(chan struct{})
	timer := s.timer
	stop := s.timerStop
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				s.expire(ctx)
			}
		}
	}()
}

// StopScheduler halts the background goroutine started by StartScheduler.
func (s *System) StopScheduler() {
	s.mu.Lock()
	stop := s.timerStop
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// expire pops and unmounts every mount whose deadline has passed, then
// reprograms for the new minimum: repeatedly pop the heap minimum while its
// deadline is <= now and call doUmount, then reprogram the timer.
func (s *System) expire(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMicro()
	for {
		top := s.heap.min()
		if top == nil || top.unmountDeadline > now {
			break
		}
		s.doUmount(ctx, top)
	}
	s.reprogramLocked()
}
