package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicket_IsTerminal(t *testing.T) {
	cases := []struct {
		status   string
		terminal bool
	}{
		{TicketStatusActive, false},
		{TicketStatusUsed, true},
		{TicketStatusCancelled, true},
		{TicketStatusInvalid, true},
	}
	for _, tc := range cases {
		ticket := &Ticket{Status: tc.status}
		assert.Equal(t, tc.terminal, ticket.IsTerminal(), tc.status)
	}
}

func TestTicket_JSONShape(t *testing.T) {
	usedAt := time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)
	ticket := Ticket{
		ID:     "ticket000000001",
		QRCode: "QR1",
		Price:  decimal.NewFromFloat(12.50),
		Status: TicketStatusUsed,
		UsedAt: &usedAt,
	}

	data, err := json.Marshal(ticket)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "qr_code")
	assert.Contains(t, raw, "used_at")
	assert.NotContains(t, raw, "holder_name", "empty optional fields are omitted")

	var back Ticket
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ticket.Price.Equal(back.Price))
	require.NotNil(t, back.UsedAt)
	assert.True(t, usedAt.Equal(*back.UsedAt))
}

func TestScanResponseConstructors(t *testing.T) {
	ticket := &Ticket{ID: "ticket000000001"}
	scanLog := &ScanLog{ID: "scanlog00000001", TicketID: ticket.ID}

	accepted := ScanAccepted(ScanSourceOffline, ticket, scanLog)
	assert.True(t, accepted.Success)
	assert.Equal(t, ScanSourceOffline, accepted.Source)
	assert.Same(t, ticket, accepted.Ticket)
	assert.Same(t, scanLog, accepted.ScanLog)
	assert.Empty(t, accepted.Error)

	rejected := ScanRejected(ScanSourceAuthoritative, "TICKET_USED", "ticket has already been used")
	assert.False(t, rejected.Success)
	assert.Equal(t, "TICKET_USED", rejected.Error)
	assert.Nil(t, rejected.Ticket)
}

func TestSyncBatchRequest_Empty(t *testing.T) {
	assert.True(t, (&SyncBatchRequest{}).Empty())
	assert.False(t, (&SyncBatchRequest{Tickets: []Ticket{{ID: "t"}}}).Empty())
	assert.False(t, (&SyncBatchRequest{ScanLogs: []ScanLog{{ID: "s"}}}).Empty())
}
