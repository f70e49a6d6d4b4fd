package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"bayanat/pkg/platform/sentinel"
)

// SQLSTATE codes the stores care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeRaiseException      = "P0001"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// Classify wraps driver errors with the matching sentinel so services can translate
// them without knowing SQLSTATE codes. Unknown errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", sentinel.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s (%s)", sentinel.ErrConflict, pgErr.Message, pgErr.ConstraintName)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s (%s)", sentinel.ErrNotFound, pgErr.Detail, pgErr.ConstraintName)
	case codeCheckViolation, codeNotNullViolation, codeInvalidText, codeRaiseException:
		return fmt.Errorf("%w: %s", sentinel.ErrInvalidState, pgErr.Message)
	case codeSerialization, codeDeadlock:
		return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, pgErr.Message)
	}
	return err
}

// Constraint returns the violated constraint name, if err carries one.
func Constraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
