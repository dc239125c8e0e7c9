// Package remote talks to the external contract service that owns contract
// and credit state. Nothing here persists or decides anything; every mutation
// is delegated upstream.
package remote

import (
	"context"
	"errors"
	"fmt"

	"carbonlock/marketplace-portal/internal/contracts"
)

// ErrNotFound is returned when the remote service does not know a record.
var ErrNotFound = errors.New("record not found")

// RemoteError carries a rejection reported by the remote service. Message is
// shown to the user verbatim.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Describe includes the operation and status for logs.
func (e *RemoteError) Describe() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
}

// ContractService is the RPC surface of the remote contract service.
type ContractService interface {
	ListContracts(ctx context.Context) ([]contracts.Contract, error)
	ListCredits(ctx context.Context) ([]contracts.Credit, error)
	ListEvents(ctx context.Context) ([]contracts.Event, error)

	CreateContract(ctx context.Context, draft contracts.ContractDraft) (uint64, error)
	UpdateContract(ctx context.Context, id uint64, draft contracts.ContractDraft) (contracts.Contract, error)
	DeleteContract(ctx context.Context, id uint64) error
	BuyContract(ctx context.Context, id uint64) error
	ExpireContract(ctx context.Context, id uint64) error

	Close() error
}

// Is lets errors.Is(err, ErrNotFound) match remote 404 rejections.
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}
