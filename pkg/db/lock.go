package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock to the next query. Dialects without row locks
// (sqlite) ignore the clause and rely on their single-writer model.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SetLocalLockTimeout bounds lock waits for the rest of the transaction.
// It is a no-op outside postgres or when d is not positive.
func SetLocalLockTimeout(tx *gorm.DB, d time.Duration) error {
	if tx == nil || d <= 0 || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}
