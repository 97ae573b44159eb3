package services

import (
	"errors"
	"fmt"

	"github.com/example/floradispatch/internal/repositories"
)

var (
	// ErrPreconditionFailed rejects an assignment on an already-bound order or an unavailable store.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidTransition rejects a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrIncompleteCompletionData rejects completion without recipient name or photo.
	ErrIncompleteCompletionData = errors.New("incomplete completion data")
	// ErrAddressUnresolved means no area key could be derived from the delivery address.
	ErrAddressUnresolved = errors.New("address unresolved")
	// ErrDataStoreUnavailable wraps transient failures of the backing store.
	ErrDataStoreUnavailable = errors.New("data store unavailable")
	ErrNotFound             = errors.New("not found")
	ErrForbiddenActor       = errors.New("actor not permitted")
	// ErrSettlementConflict means another run claimed the same store period or orders.
	ErrSettlementConflict = errors.New("settlement conflict")
	ErrInvalidPeriod      = errors.New("invalid settlement period")
	// ErrPhotoUploadFailed is returned once every upload attempt for a photo failed.
	ErrPhotoUploadFailed = errors.New("photo upload failed")
)

var domainErrors = []error{
	ErrPreconditionFailed,
	ErrInvalidTransition,
	ErrIncompleteCompletionData,
	ErrAddressUnresolved,
	ErrDataStoreUnavailable,
	ErrNotFound,
	ErrForbiddenActor,
	ErrSettlementConflict,
	ErrInvalidPeriod,
	ErrPhotoUploadFailed,
}

// storeErr classifies an error coming out of a repository call.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range domainErrors {
		if errors.Is(err, domain) {
			return err
		}
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrDataStoreUnavailable, op, err)
}
