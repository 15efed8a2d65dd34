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

func TestTicketService_Issue(t *testing.T) {
	store := newFakeStore()
	svc := NewTicketService(store)

	issued, err := svc.Issue(context.Background(), models.Ticket{
		EventName:   "Summer Festival",
		TicketType:  "general",
		Price:       decimal.NewFromFloat(30),
		HolderEmail: "holder@example.com",
	})
	require.NoError(t, err)

	assert.Len(t, issued.ID, 15)
	assert.Equal(t, issued.ID, issued.QRCode)
	assert.Equal(t, models.TicketStatusActive, issued.Status)
	assert.Nil(t, issued.UsedAt)

	persisted, err := store.FindTicketByID(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summer Festival", persisted.EventName)
}

func TestTicketService_IssueValidation(t *testing.T) {
	svc := NewTicketService(newFakeStore())
	ctx := context.Background()

	cases := []struct {
		name   string
		ticket models.Ticket
	}{
		{"missing event name", models.Ticket{Price: decimal.NewFromInt(10)}},
		{"negative price", models.Ticket{EventName: "X", Price: decimal.NewFromInt(-1)}},
		{"malformed email", models.Ticket{EventName: "X", HolderEmail: "not-an-email"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Issue(ctx, tc.ticket)
			var scanErr *status.ScanError
			require.ErrorAs(t, err, &scanErr)
			assert.Equal(t, status.CodeValidation, scanErr.Code)
		})
	}
}

func TestTicketService_IssueKeepsCallerSuppliedID(t *testing.T) {
	svc := NewTicketService(newFakeStore())

	issued, err := svc.Issue(context.Background(), models.Ticket{
		ID:        "presetid0000001",
		EventName: "Reissue",
	})
	require.NoError(t, err)
	assert.Equal(t, "presetid0000001", issued.ID)
	assert.Equal(t, "presetid0000001", issued.QRCode)
}

func TestTicketService_ListWithLogs(t *testing.T) {
	store := newFakeStore()
	svc := NewTicketService(store)
	ctx := context.Background()

	now := time.Now().UTC()
	used := now
	store.seedTicket(models.Ticket{
		ID: "ticket000000001", QRCode: "QR1", EventName: "A",
		Status: models.TicketStatusUsed, UsedAt: &used,
	})
	store.seedTicket(models.Ticket{
		ID: "ticket000000002", QRCode: "QR2", EventName: "B",
		Status: models.TicketStatusActive,
	})
	require.NoError(t, store.CreateScanLog(ctx, &models.ScanLog{
		ID: "scanlog00000001", TicketID: "ticket000000001", ScannedAt: now,
	}))

	all, err := svc.List(ctx, models.TicketQuery{IncludeLogs: true})
	require.NoError(t, err)
	require.Len(t, all, 2)

	for _, entry := range all {
		if entry.ID == "ticket000000001" {
			require.Len(t, entry.ScanLogs, 1)
		} else {
			assert.Empty(t, entry.ScanLogs)
		}
	}

	active, err := svc.List(ctx, models.TicketQuery{Status: models.TicketStatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ticket000000002", active[0].ID)
	assert.Empty(t, active[0].ScanLogs)
}
