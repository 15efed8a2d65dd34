package status

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable scan and sync error codes, shared by the authoritative
// and offline validation paths and by the merge endpoint.
const (
	CodeTicketNotFound  = "TICKET_NOT_FOUND"
	CodeNotFoundOffline = "NOT_FOUND_OFFLINE"
	CodeTicketUsed      = "TICKET_USED"
	CodeTicketCancelled = "TICKET_CANCELLED"
	CodeTicketInvalid   = "TICKET_INVALID"
	CodeDuplicateScan   = "DUPLICATE_SCAN"
	CodeValidation      = "VALIDATION_ERROR"
	CodeTransport       = "TRANSPORT_ERROR"
	CodeStoreUnavail    = "STORE_UNAVAILABLE"
	CodeOrphanScanLog   = "ORPHAN_SCAN_LOG"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
)

var (
	ErrTicketNotFound   = errors.New("ticket: not found")
	ErrScanLogNotFound  = errors.New("scan log: not found")
	ErrStoreUnavailable = errors.New("store: local store unavailable")
	ErrTransport        = errors.New("transport: request failed")
	ErrRateLimited      = errors.New("rate limit: too many scan attempts")
)

// ScanError is a domain validation failure. It is a result value, not a
// fault: callers turn it into a rejected ScanResponse and never retry it.
type ScanError struct {
	Code    string
	Message string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan rejected: %s: %s", e.Code, e.Message)
}

func NewScanError(code, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// ForTicketStatus maps a non-active ticket status to its terminal-status
// conflict error.
func ForTicketStatus(ticketStatus string) *ScanError {
	var code, msg string
	switch ticketStatus {
	case "used":
		code, msg = CodeTicketUsed, "ticket has already been used"
	case "cancelled":
		code, msg = CodeTicketCancelled, "ticket has been cancelled"
	case "invalid":
		code, msg = CodeTicketInvalid, "ticket has been marked invalid"
	default:
		code, msg = CodeTicketInvalid, fmt.Sprintf("ticket is in unexpected status %q", ticketStatus)
	}
	return &ScanError{Code: code, Message: msg}
}

// HTTPStatus maps an error code to the transport status the server surface
// responds with.
func HTTPStatus(code string) int {
	switch code {
	case CodeTicketNotFound, CodeNotFoundOffline:
		return http.StatusNotFound
	case CodeTicketUsed, CodeTicketCancelled, CodeTicketInvalid:
		return http.StatusConflict
	case CodeValidation, CodeDuplicateScan:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeStoreUnavail, CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
