package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
)

// MapError maps infrastructure failures into messaging error codes.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.Wrap(domain.CodeNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.Wrap(domain.CodeConflict, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Wrap(domain.CodeTransientStore, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return domain.Wrap(domain.CodeConflict, op, err) // unique_violation
		case "23503":
			return domain.Wrap(domain.CodeValidation, op, err) // foreign_key_violation
		case "40001", "40P01", "55P03", "57P01":
			return domain.Wrap(domain.CodeTransientStore, op, err) // serialization/deadlock/lock/admin shutdown
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint failed"):
		return domain.Wrap(domain.CodeConflict, op, err)
	default:
		return domain.Wrap(domain.CodeTransientStore, op, err)
	}
}

// IsConflict reports whether err is (or maps to) a unique violation.
func IsConflict(err error) bool {
	return domain.IsCode(MapError("", err), domain.CodeConflict)
}
