package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"seedpipe/internal/etl"
	"seedpipe/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: stage runs, history and triggers
// ─────────────────────────────────────────────────────────────

// DefaultWatchDebounce is how long Watch waits after the last file event.
const DefaultWatchDebounce = 500 * time.Millisecond

// PipelineService wraps an etl.Engine with run history, a per-stage
// running guard and the watch/schedule triggers.
type PipelineService struct {
	engine  *etl.Engine
	runs    *storage.RunStore // nil disables history
	emitter EventEmitter
	logger  *slog.Logger
	guard   runningGuard

	WatchDebounce time.Duration
}

// NewPipelineService creates a PipelineService ready for use.
// runs and emitter may be nil.
func NewPipelineService(engine *etl.Engine, runs *storage.RunStore, emitter EventEmitter, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	return &PipelineService{
		engine:        engine,
		runs:          runs,
		emitter:       emitter,
		logger:        logger,
		WatchDebounce: DefaultWatchDebounce,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunFetch runs the fetch stage synchronously.
func (s *PipelineService) RunFetch(ctx context.Context, keySetPath string) (*etl.RunResult, error) {
	return s.run(ctx, etl.RunFetch, []string{keySetPath}, func() (*etl.RunResult, error) {
		return s.engine.RunFetch(ctx, keySetPath)
	})
}

// RunFlatten runs the flatten stage synchronously.
func (s *PipelineService) RunFlatten(ctx context.Context, paths []string) (*etl.RunResult, error) {
	return s.run(ctx, etl.RunFlatten, paths, func() (*etl.RunResult, error) {
		return s.engine.RunFlatten(ctx, paths)
	})
}

func (s *PipelineService) run(ctx context.Context, kind etl.RunKind, inputs []string, fn func() (*etl.RunResult, error)) (*etl.RunResult, error) {
	// Each stage writes a single file, so the stage name is the lock key.
	if !s.guard.TryLock(string(kind)) {
		return nil, fmt.Errorf("%s run is already in progress", kind)
	}
	defer s.guard.Unlock(string(kind))

	start := time.Now()
	result, runErr := fn()
	s.record(kind, inputs, start, result, runErr)

	if runErr != nil {
		s.emitter.Emit(ctx, EventRunFailed, result)
	} else {
		s.emitter.Emit(ctx, EventRunCompleted, result)
	}
	return result, runErr
}

func (s *PipelineService) record(kind etl.RunKind, inputs []string, start time.Time, result *etl.RunResult, runErr error) {
	if s.runs == nil {
		return
	}
	runLog := &etl.RunLog{
		Kind:       kind,
		Inputs:     inputs,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Status:     etl.StatusError,
	}
	if result != nil {
		runLog.Output = result.Output
		runLog.Status = result.Status
		runLog.RowsRead = result.RowsRead
		runLog.RowsWritten = result.RowsWritten
	}
	if runErr != nil {
		runLog.Error = runErr.Error()
	}
	if err := s.runs.CreateRunLog(runLog); err != nil {
		s.logger.Warn("run history: failed to record run", "kind", kind, "err", err)
	}
}

// ListRunLogs returns the most recent run logs. An empty kind lists all.
func (s *PipelineService) ListRunLogs(kind etl.RunKind, limit int) ([]etl.RunLog, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return s.runs.ListRunLogs(kind, limit)
}

// WaitRunning blocks until all running stages finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// ── Triggers (file watch + cron) ──────────────────────────

// Watch re-runs the flatten stage over paths whenever one of them is
// written. Events are debounced and runs happen one after another on the
// watch loop. Watch returns once the watcher is registered; the returned
// channel yields the loop's exit error after ctx is cancelled.
func (s *PipelineService) Watch(ctx context.Context, paths []string) (<-chan error, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("watch: no input files")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	watched := make(map[string]bool)
	watchedDirs := make(map[string]bool)
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("bad path %q: %w", p, err)
		}
		watched[absPath] = true

		// Watch the directory so files that are replaced or created later are seen.
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch dir %q: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	debounce := s.WatchDebounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				done <- nil
				return
			case event, ok := <-watcher.Events:
				if !ok {
					done <- nil
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				if !watched[absPath] {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				s.logger.Info("watch: input changed, flattening", "files", len(paths))
				if _, err := s.RunFlatten(ctx, paths); err != nil {
					s.logger.Error("watch: flatten failed", "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					done <- nil
					return
				}
				s.logger.Warn("watch: watcher error", "err", err)
			}
		}
	}()

	s.logger.Info("watch: watching input files", "files", len(watched))
	return done, nil
}

// Schedule re-runs the fetch stage on a cron expression. A run that is
// still going when the next tick arrives makes that tick a no-op.
// Schedule returns once the scheduler is started; the returned channel
// is closed after ctx is cancelled and the last run has finished.
func (s *PipelineService) Schedule(ctx context.Context, expr, keySetPath string) (<-chan error, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(expr, func() {
		s.logger.Info("schedule: running fetch", "keyset", keySetPath)
		if _, err := s.RunFetch(ctx, keySetPath); err != nil {
			s.logger.Error("schedule: fetch failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	c.Start()
	s.logger.Info("schedule: fetch scheduled", "cron", expr)

	done := make(chan error, 1)
	go func() {
		defer close(done)
		<-ctx.Done()
		<-c.Stop().Done()
		done <- nil
	}()
	return done, nil
}
