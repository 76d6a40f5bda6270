package sandbox

import (
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/isdmx/luabox/metrics"
)

// maxNameAttempts bounds retries after an exclusive-create name collision.
const maxNameAttempts = 5

// artifact is one generated wrapper file, owned by a single execution.
type artifact struct {
	ID       string
	Path     string
	Contents string
}

// withArtifact writes contents to a fresh file in the staging directory, runs
// fn with it and removes the file before returning, on every path including a
// panic in fn. A panic is reported as an internal error result.
func (h *Harness) withArtifact(contents string, fn func(a artifact) ExecuteResult) (result ExecuteResult) {
	a, err := h.acquireArtifact(contents)
	if err != nil {
		h.logger.Error("failed to write wrapper", zap.String("dir", h.staging.Root()), zap.Error(err))
		return failureResult(OutcomeInternalError, err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("execution panicked", zap.String("artifact", a.ID), zap.Any("panic", r))
			result = failureResult(OutcomeInternalError, fmt.Sprintf("panic: %v", r))
		}
		h.releaseArtifact(a)
	}()

	return fn(a)
}

func (h *Harness) acquireArtifact(contents string) (artifact, error) {
	var lastErr error
	for range maxNameAttempts {
		id, path := h.staging.NewArtifactPath()
		a := artifact{
			ID:       id,
			Path:     path,
			Contents: contents,
		}
		err := h.fs.CreateExclusive(a.Path, []byte(contents), FilePermission)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return artifact{}, fmt.Errorf("failed to write wrapper: %w", err)
		}
		lastErr = err
	}
	return artifact{}, fmt.Errorf("failed to allocate wrapper name after %d attempts: %w", maxNameAttempts, lastErr)
}

func (h *Harness) releaseArtifact(a artifact) {
	err := h.fs.Remove(a.Path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	metrics.ArtifactCleanupFailures.Inc()
	h.logger.Warn("failed to remove wrapper", zap.String("path", a.Path), zap.Error(err))
}
