package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// validID reports whether id can be compared with a uuid column. Anything else
// cannot match a row, so callers treat it as not found instead of letting the
// query fail with a cast error.
//
// uuid.Parse also accepts "urn:uuid:..." which Postgres rejects, so only the
// canonical 36 character form passes.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func uuidOrEmpty(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
