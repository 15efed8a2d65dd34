package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-gate/internal/status"
	"scan-gate/models"
)

func activeTicket(id, qr string) models.Ticket {
	now := time.Now().UTC().Add(-time.Hour)
	return models.Ticket{
		ID:         id,
		QRCode:     qr,
		EventName:  "Summer Festival",
		TicketType: "general",
		Price:      decimal.NewFromInt(25),
		Status:     models.TicketStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestScanService_Validate_Success(t *testing.T) {
	store := newFakeStore()
	store.seedTicket(activeTicket("ticket000000001", "T1"))
	service := NewScanService(store, nil, "scan-feed")

	resp, err := service.Validate(context.Background(), models.ScanRequest{
		QRCode:    "T1",
		ScannedBy: "alice",
		Location:  "north gate",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, models.ScanSourceAuthoritative, resp.Source)
	require.NotNil(t, resp.Ticket)
	require.NotNil(t, resp.ScanLog)
	assert.Equal(t, models.TicketStatusUsed, resp.Ticket.Status)
	require.NotNil(t, resp.Ticket.UsedAt)
	assert.Equal(t, "ticket000000001", resp.ScanLog.TicketID)
	assert.Equal(t, "alice", resp.ScanLog.ScannedBy)
	assert.Equal(t, *resp.Ticket.UsedAt, resp.ScanLog.ScannedAt)

	// Persisted state matches the response.
	stored := store.tickets["ticket000000001"]
	assert.Equal(t, models.TicketStatusUsed, stored.Status)
	assert.Equal(t, 1, store.scanLogCountFor("ticket000000001"))
}

func TestScanService_Validate_SecondScanRejected(t *testing.T) {
	store := newFakeStore()
	store.seedTicket(activeTicket("ticket000000001", "T1"))
	service := NewScanService(store, nil, "scan-feed")

	first, err := service.Validate(context.Background(), models.ScanRequest{QRCode: "T1"})
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := service.Validate(context.Background(), models.ScanRequest{QRCode: "T1"})
	require.NoError(t, err)

	assert.False(t, second.Success)
	assert.Equal(t, status.CodeTicketUsed, second.Error)
	// No second scan log, no second flip.
	assert.Equal(t, 1, store.scanLogCountFor("ticket000000001"))
}

func TestScanService_Validate_NotFound(t *testing.T) {
	store := newFakeStore()
	service := NewScanService(store, nil, "scan-feed")

	resp, err := service.Validate(context.Background(), models.ScanRequest{QRCode: "Q1"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, status.CodeTicketNotFound, resp.Error)
	assert.Empty(t, store.scanLogs)
}

func TestScanService_Validate_TerminalStatuses(t *testing.T) {
	cases := []struct {
		ticketStatus string
		wantCode     string
	}{
		{models.TicketStatusUsed, status.CodeTicketUsed},
		{models.TicketStatusCancelled, status.CodeTicketCancelled},
		{models.TicketStatusInvalid, status.CodeTicketInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.ticketStatus, func(t *testing.T) {
			store := newFakeStore()
			ticket := activeTicket("ticket000000001", "T1")
			ticket.Status = tc.ticketStatus
			store.seedTicket(ticket)
			service := NewScanService(store, nil, "scan-feed")

			resp, err := service.Validate(context.Background(), models.ScanRequest{QRCode: "T1"})
			require.NoError(t, err)

			assert.False(t, resp.Success)
			assert.Equal(t, tc.wantCode, resp.Error)
			// Rejection has zero side effects.
			assert.Equal(t, tc.ticketStatus, store.tickets["ticket000000001"].Status)
			assert.Empty(t, store.scanLogs)
		})
	}
}

func TestScanService_Validate_EmptyPayload(t *testing.T) {
	service := NewScanService(newFakeStore(), nil, "scan-feed")

	resp, err := service.Validate(context.Background(), models.ScanRequest{})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, status.CodeValidation, resp.Error)
}
