package errors

import "fmt"

var (
	// Permission and session failures.
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrWriteNotAllowed  = fmt.Errorf("write permission not granted")
	ErrSessionRevoked   = fmt.Errorf("session revoked")
	ErrSessionClosed    = fmt.Errorf("session already closed")

	// Record and blob lookups.
	ErrNotFound      = fmt.Errorf("record not found")
	ErrAlreadyExists = fmt.Errorf("record already exists")

	// Composer validation. Rejected at the boundary, never reaches the store.
	ErrMessageEmpty   = fmt.Errorf("message is empty")
	ErrMessageTooLong = fmt.Errorf("message exceeds maximum length")
	ErrBlobTooLarge   = fmt.Errorf("file exceeds maximum size")
	ErrUploadCanceled = fmt.Errorf("upload canceled")

	// Moderation two-step confirmation.
	ErrConfirmationExpired = fmt.Errorf("confirmation token expired")
	ErrConfirmationUnknown = fmt.Errorf("unknown confirmation token")

	// ErrInconsistentState reports a partial cascade: the blob was removed
	// but the record delete failed afterwards. Needs manual remediation.
	ErrInconsistentState = fmt.Errorf("inconsistent state between record and blob storage")

	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyWordList = fmt.Errorf("no forbidden words have been provided")

	// ErrSubscriptionLost marks a terminal subscription failure after the
	// retry budget is exhausted. Fatal to the session.
	ErrSubscriptionLost = fmt.Errorf("subscription lost")
)
