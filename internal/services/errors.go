package services

import (
	"errors"
	"log/slog"

	"github.com/BradenHooton/warden/internal/models"
)

// storeFailure logs a storage error and returns the sentinel the caller sees.
// Timeouts stay ErrServiceUnavailable; anything else becomes ErrInternalServer
// so no storage detail leaks out.
func storeFailure(logger *slog.Logger, msg string, err error, attrs ...any) error {
	logger.Error(msg, append(attrs, slog.Any("error", err))...)
	if errors.Is(err, models.ErrServiceUnavailable) {
		return models.ErrServiceUnavailable
	}
	return models.ErrInternalServer
}
