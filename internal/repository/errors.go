package repository

import (
	"errors"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// UniqueConstraint returns the violated constraint name when err is a
// Postgres unique violation, or "" otherwise.
func UniqueConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint != "" {
			return pqErr.Constraint
		}
		return "unique"
	}
	return ""
}
