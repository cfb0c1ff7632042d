package readiness

import (
	"context"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/logger"
	"os"
	"sync"
)

// Check is a named dependency check which must pass before the service reports ready.
type Check struct {
	Name  string
	Check func(context.Context) error
}

type Readiness struct {
	FilePath string
	checks   []Check

	mu      sync.Mutex
	isReady bool
}

func New(ctx context.Context, filePath string, checks ...Check) *Readiness {
	readiness := &Readiness{FilePath: filePath, checks: checks}
	go readiness.removeReadyWhenDone(ctx)
	return readiness
}

func (r *Readiness) Ready(ctx context.Context) error {
	for _, check := range r.checks {
		if check.Check == nil {
			continue
		}
		if err := check.Check(ctx); err != nil {
			return errors.Wrapf(err, "readiness check %q failed", check.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := os.Stat(r.FilePath); err == nil {
		logger.Logger.Warnw("Readiness file already existed", "readinessFilePath", r.FilePath)
	}
	file, err := os.Create(r.FilePath)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	r.isReady = true
	return nil
}

func (r *Readiness) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isReady
}

func (r *Readiness) Unready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isReady = false
	return os.Remove(r.FilePath)
}

func (r *Readiness) removeReadyWhenDone(ctx context.Context) {
	<-ctx.Done()
	if !r.IsReady() {
		return
	}
	logger.Logger.Info("Removing readiness file")
	if err := r.Unready(); err != nil {
		logger.Logger.Errorw("Error removing readiness file", "readinessFilePath", r.FilePath, "error", err)
	}
}
