package db

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// EngineError extracts the engine's machine-readable code and message from err.
// Postgres errors yield the SQLSTATE, SQLite errors the extended result code.
// For anything else code is empty and message is err.Error().
func EngineError(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += " (" + pgErr.Detail + ")"
		}
		if pgErr.Position > 0 {
			msg += " at position " + strconv.Itoa(int(pgErr.Position))
		}
		return pgErr.Code, msg
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code()), strings.TrimSpace(liteErr.Error())
	}
	return "", err.Error()
}
