// Package numbering issues sequential document numbers of the form
// {PREFIX}{YYYY}{MM}{NNNN} from a per prefix and month counter row.
package numbering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"gorm.io/gorm"
)

const nextNumberSQL = `
INSERT INTO document_sequences (prefix, period, last_number, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (prefix, period)
DO UPDATE SET last_number = document_sequences.last_number + 1, updated_at = excluded.updated_at
RETURNING last_number`

type Sequencer struct {
	now func() time.Time
}

func NewSequencer(now func() time.Time) *Sequencer {
	if now == nil {
		now = time.Now
	}
	return &Sequencer{now: now}
}

// Next increments the counter for prefix in the current month and formats
// the result. The increment is a single upsert, so concurrent callers never
// observe the same value.
func (s *Sequencer) Next(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "number prefix is required")
	}
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "numbering requires a transaction")
	}

	now := s.now().UTC()
	period := now.Format("200601")

	var last int64
	if err := tx.WithContext(ctx).Raw(nextNumberSQL, prefix, period, now).Scan(&last).Error; err != nil {
		if db.IsLockContention(err) {
			return "", pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "allocate document number")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
	}
	if last <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "document sequence returned no value")
	}
	return Format(prefix, now, last), nil
}

func Format(prefix string, at time.Time, n int64) string {
	return fmt.Sprintf("%s%04d%02d%04d", prefix, at.Year(), int(at.Month()), n)
}
