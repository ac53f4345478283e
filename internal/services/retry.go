package services

import (
	"github.com/mroshb/campus_match/internal/metrics"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

// retryConflict runs fn, and once more if it failed with a conflict.
func retryConflict(operation string, fn func() error) error {
	err := fn()
	if errors.HasCode(err, errors.ErrCodeConflict) {
		metrics.Conflicts.WithLabelValues(operation).Inc()
		logger.Warn("Write conflict, retrying", "operation", operation, "error", err)
		err = fn()
	}
	return err
}
