package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	ErrorClassUniqueViolation
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505":
			return ErrorClassUniqueViolation
		}
		return ErrorClassPermanent
	}

	// sqlite reports constraint failures as plain text
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrorClassUniqueViolation
	case strings.Contains(msg, "database is locked"):
		return ErrorClassTransient
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}
	return ErrorClassPermanent
}

func IsUniqueViolation(err error) bool {
	return ClassifyError(err) == ErrorClassUniqueViolation
}

func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorClassTransient, ErrorClassDeadlock, ErrorClassSerialization:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
