package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"

	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/monitoring"
	"scan-gate/utils"
)

// ScanService is the authoritative scan validation engine. Validation and
// its side effects run as one transaction against the system of record: at
// most one scan per ticket can ever succeed.
type ScanService struct {
	store      RecordStore
	pubnub     *pubnub.PubNub
	feedPrefix string
}

func NewScanService(store RecordStore, pn *pubnub.PubNub, feedPrefix string) *ScanService {
	return &ScanService{
		store:      store,
		pubnub:     pn,
		feedPrefix: feedPrefix,
	}
}

// Validate looks the ticket up by qr code and, if it is still active,
// atomically marks it used and records a scan log. Rejections are returned
// as response values; the error return is for storage faults only.
func (s *ScanService) Validate(ctx context.Context, req models.ScanRequest) (*models.ScanResponse, error) {
	started := time.Now()

	if req.QRCode == "" {
		return models.ScanRejected(models.ScanSourceAuthoritative,
			status.CodeValidation, "qr_code is required"), nil
	}

	var (
		ticket  *models.Ticket
		scanLog *models.ScanLog
		scanErr *status.ScanError
	)

	err := s.store.RunInTransaction(ctx, func(tx RecordStore) error {
		found, err := tx.FindTicketByQRCode(ctx, req.QRCode)
		if errors.Is(err, status.ErrTicketNotFound) {
			scanErr = status.NewScanError(status.CodeTicketNotFound, "no ticket matches this code")
			return nil
		}
		if err != nil {
			return err
		}

		if found.IsTerminal() {
			scanErr = status.ForTicketStatus(found.Status)
			return nil
		}

		usedAt := time.Now().UTC()
		if err := tx.SetTicketUsed(ctx, found.ID, usedAt); err != nil {
			return err
		}

		logID, err := utils.GenerateRecordID()
		if err != nil {
			return err
		}

		entry := &models.ScanLog{
			ID:         logID,
			TicketID:   found.ID,
			ScannedAt:  usedAt,
			ScannedBy:  req.ScannedBy,
			Location:   req.Location,
			DeviceInfo: req.DeviceInfo,
		}
		if err := tx.CreateScanLog(ctx, entry); err != nil {
			return err
		}

		found.Status = models.TicketStatusUsed
		found.UsedAt = &usedAt
		found.UpdatedAt = usedAt

		ticket = found
		scanLog = entry
		return nil
	})
	if err != nil {
		slog.Error("scan validation failed", "qr_code", req.QRCode, "error", err)
		return nil, err
	}

	if scanErr != nil {
		monitoring.TrackScan(models.ScanSourceAuthoritative, scanErr.Code, time.Since(started))
		return models.ScanRejected(models.ScanSourceAuthoritative, scanErr.Code, scanErr.Message), nil
	}

	monitoring.TrackScan(models.ScanSourceAuthoritative, "accepted", time.Since(started))
	s.publishScan(ticket, scanLog)

	return models.ScanAccepted(models.ScanSourceAuthoritative, ticket, scanLog), nil
}

// publishScan pushes the accepted scan onto the realtime feed for live gate
// dashboards. Feed delivery is best effort and never fails a scan.
func (s *ScanService) publishScan(ticket *models.Ticket, scanLog *models.ScanLog) {
	if s.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("%s-%s", s.feedPrefix, ticket.EventName)
	s.pubnub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":        "ticket_scanned",
			"ticket_id":   ticket.ID,
			"event_name":  ticket.EventName,
			"ticket_type": ticket.TicketType,
			"scanned_at":  scanLog.ScannedAt.Format(time.RFC3339),
			"scanned_by":  scanLog.ScannedBy,
			"location":    scanLog.Location,
		}).
		Execute()
}
