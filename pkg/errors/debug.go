package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err for structured logs: the code, the unwrap chain and,
// when a Postgres error is in the chain, its SQLSTATE and constraint details.
// pgx errors come from the gorm driver; lib/pq errors come from goose.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		addPG(fields, pgxErr.Code, pgxErr.TableName, pgxErr.ConstraintName, pgxErr.Detail)
	case stdErrors.As(err, &pqErr):
		addPG(fields, string(pqErr.Code), pqErr.Table, pqErr.Constraint, pqErr.Detail)
	}
	return fields
}

func addPG(fields map[string]any, code, table, constraint, detail string) {
	fields["pg_code"] = code
	if table != "" {
		fields["pg_table"] = table
	}
	if constraint != "" {
		fields["pg_constraint"] = constraint
	}
	if detail != "" {
		fields["pg_detail"] = detail
	}
}
