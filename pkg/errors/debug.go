package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: the typed code (untyped
// errors report INTERNAL_ERROR), the wrap chain and, when a postgres error
// sits in the chain, its diagnostics. Nothing here is meant for API callers.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}

	fields := map[string]any{"error": err.Error(), "error_code": string(CodeInternal)}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.code)
		if m, ok := typed.details.(map[string]any); ok {
			for _, key := range []string{"step", "product_id", "warehouse_id", "document_id"} {
				if v, ok := m[key]; ok {
					fields[key] = v
				}
			}
		}
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	for k, v := range postgresFields(err) {
		fields[k] = v
	}
	return fields
}

func postgresFields(err error) map[string]any {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return nonEmpty(map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_message":    pgxErr.Message,
			"pg_detail":     pgxErr.Detail,
			"pg_table":      pgxErr.TableName,
			"pg_column":     pgxErr.ColumnName,
			"pg_constraint": pgxErr.ConstraintName,
		})
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return nonEmpty(map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_message":    pqErr.Message,
			"pg_detail":     pqErr.Detail,
			"pg_table":      pqErr.Table,
			"pg_column":     pqErr.Column,
			"pg_constraint": pqErr.Constraint,
		})
	}
	return nil
}

func nonEmpty(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
