package app

import (
	"errors"

	"efm-go/internal/efm"
)

// Recorded operation outcomes.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Operation is the history entry for the running command. It stays in memory
// (ID 0) until the command declares itself mutating.
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

func NewOperation(name, parameters string) *Operation {
	return &Operation{Name: name, Parameters: parameters, Status: StatusSuccess}
}

func (op *Operation) Persisted() bool { return op.ID != 0 }

// Fail records err as the outcome. The first failure wins; nil is ignored.
func (op *Operation) Fail(err error) {
	if err == nil || op.Status != StatusSuccess {
		return
	}
	if errors.Is(err, efm.ErrOperationCancelled) {
		op.Status = StatusCancelled
		return
	}
	op.Status = StatusError
}
