package models

// Scan result sources. Every ScanResponse is tagged with the mode that
// produced it so downstream consumers can tell an optimistic acceptance from
// an authoritative one.
const (
	ScanSourceAuthoritative = "authoritative"
	ScanSourceOffline       = "offline"
)

type ScanRequest struct {
	QRCode     string `json:"qr_code"`
	ScannedBy  string `json:"scanned_by,omitempty"`
	Location   string `json:"location,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// ScanResponse is the single outcome type shared by both validation modes.
// On rejection Success is false and Error carries a status code; Ticket and
// ScanLog are only set on success.
type ScanResponse struct {
	Success bool     `json:"success"`
	Source  string   `json:"source"`
	Ticket  *Ticket  `json:"ticket,omitempty"`
	ScanLog *ScanLog `json:"scan_log,omitempty"`
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
}

func ScanAccepted(source string, ticket *Ticket, scanLog *ScanLog) *ScanResponse {
	return &ScanResponse{
		Success: true,
		Source:  source,
		Ticket:  ticket,
		ScanLog: scanLog,
		Message: "ticket validated",
	}
}

func ScanRejected(source, code, message string) *ScanResponse {
	return &ScanResponse{
		Success: false,
		Source:  source,
		Error:   code,
		Message: message,
	}
}
