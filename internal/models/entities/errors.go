package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrInvalidSampleSize   = errors.New("sample size exceeds candidate pool")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrTaskLost            = errors.New("task is no longer owned by this attempt")
	ErrDeleteRefused       = errors.New("record store refused delete")
	ErrEnvironmentMismatch = NewDomainError("environment confirmation does not match, type the exact environment name")
)

// DomainError представляет ошибку предметной области
type DomainError struct {
	Message string
}

func (e DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) DomainError {
	return DomainError{Message: message}
}

// EnvironmentDenied - отказ в запуске в текущем окружении. Повторять не нужно.
type EnvironmentDenied struct {
	Environment    string
	Allowed        []string
	ProductionLike bool
}

func (e *EnvironmentDenied) Error() string {
	return fmt.Sprintf("environment %q is not allowed (allowed: %s)", e.Environment, strings.Join(e.Allowed, ", "))
}

// TaskExecutionFailure - ошибка удаления конкретной записи внутри задачи
type TaskExecutionFailure struct {
	TaskID  string
	EntryID int64
	Attempt int
	Err     error
}

func (e *TaskExecutionFailure) Error() string {
	return fmt.Sprintf("task %s attempt %d: failed to delete entry %d: %v", e.TaskID, e.Attempt, e.EntryID, e.Err)
}

func (e *TaskExecutionFailure) Unwrap() error {
	return e.Err
}
