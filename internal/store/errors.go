package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrAlreadyRan means records for the period key and date already exist.
	ErrAlreadyRan = errors.New("already collected for today")

	ErrCompetitionNotFound = errors.New("competition not found")
	ErrRewardNotFound      = errors.New("reward not found")
)

// RecordFailure names one pool whose record could not be written.
type RecordFailure struct {
	Pool  string `json:"pool"`
	Error string `json:"error"`
}

// RecordCreationError is returned when a batch was rolled back because at least one record failed.
type RecordCreationError struct {
	Scope    string
	Failures []RecordFailure
}

func (e *RecordCreationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Pool, f.Error))
	}
	return fmt.Sprintf("failed to create %d record(s) for %s: %s", len(e.Failures), e.Scope, strings.Join(parts, ", "))
}

// BusinessLogicError aborts payout creation for a whole batch.
type BusinessLogicError struct {
	Project string
	ChainID int64
	Reason  string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("could not create payout records (%s for project %s/%d)", e.Reason, e.Project, e.ChainID)
}

// isUniqueViolation matches translated gorm errors and raw driver messages.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
