package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/scheduler"
)

// DeadlineWorker runs periodic deadline sweeps so lapsed chats are released
// even when no requests arrive. Request-driven sweeps remain the primary
// trigger; this covers idle periods.
type DeadlineWorker struct {
	monitor  *scheduler.Monitor
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// StartDeadlineWorker launches the sweep loop. Returns nil when interval is
// zero (background sweeping disabled).
func StartDeadlineWorker(monitor *scheduler.Monitor, interval time.Duration, logger *zap.Logger) *DeadlineWorker {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &DeadlineWorker{
		monitor:  monitor,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *DeadlineWorker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.monitor.Sweep(context.Background()); err != nil {
				w.logger.Error("deadline sweep failed", zap.Error(err))
			}
		}
	}
}

// Stop terminates the loop and waits for the in-flight sweep to finish.
func (w *DeadlineWorker) Stop() {
	if w == nil {
		return
	}
	close(w.stop)
	<-w.done
}
