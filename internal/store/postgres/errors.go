package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"docrag/internal/models"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapError translates constraint failures into the core's error taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateChecksum)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", op, models.ErrDocumentStillReferenced)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
