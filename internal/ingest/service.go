// Package ingest runs the packet pipeline: score the sequence, persist the
// packet, fan it out to viewers.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davekhr/telemetry-dashboard/internal/metrics"
	"github.com/davekhr/telemetry-dashboard/internal/models"
	"github.com/davekhr/telemetry-dashboard/internal/tracker"
)

// PacketStore is the persistence the pipeline needs.
type PacketStore interface {
	AppendPacket(ctx context.Context, pkt *models.Packet) (int64, error)
	RecentPackets(ctx context.Context, n int) ([]models.Packet, error)
	SaveDeviceLoss(ctx context.Context, deviceID string, lastSeq, cumulativeLost int64) error
}

// Publisher delivers an enriched packet event to connected viewers.
type Publisher interface {
	Publish(ev models.PacketEvent)
}

// Service coordinates the tracker, store and broadcaster for each accepted
// packet.
type Service struct {
	tracker *tracker.Tracker
	store   PacketStore
	pub     Publisher
	logger  *zap.Logger
}

// NewService wires the pipeline.
func NewService(tr *tracker.Tracker, st PacketStore, pub Publisher, logger *zap.Logger) *Service {
	return &Service{
		tracker: tr,
		store:   st,
		pub:     pub,
		logger:  logger,
	}
}

// Ingest records one validated transmission. The steps run in order with no
// rollback: when the store write fails, the tracker has already advanced and
// stays advanced. The error is surfaced to the caller; nothing is broadcast.
func (s *Service) Ingest(ctx context.Context, deviceID string, seq int64, payload models.Payload) (*models.Packet, error) {
	res := s.tracker.RecordAndScore(deviceID, seq)
	if res.LostNow > 0 {
		metrics.PacketsLostInferred.Add(float64(res.LostNow))
	}

	pkt := &models.Packet{
		DeviceID:       deviceID,
		Seq:            seq,
		LossPercentage: res.LossPercentage,
		Payload:        payload,
		ReceivedAt:     time.Now().UTC(),
	}

	id, err := s.store.AppendPacket(ctx, pkt)
	if err != nil {
		s.logger.Error("packet append failed",
			zap.String("device_id", deviceID),
			zap.Int64("seq", seq),
			zap.Error(err))
		return nil, fmt.Errorf("append packet: %w", err)
	}
	pkt.ID = id

	// The device_loss row mirrors in-memory state; a failed mirror write is
	// logged and absorbed, the packet itself is already durable.
	if err := s.store.SaveDeviceLoss(ctx, deviceID, res.LastSeq, res.CumulativeLost); err != nil {
		s.logger.Warn("device loss mirror write failed",
			zap.String("device_id", deviceID),
			zap.Error(err))
	}

	metrics.PacketsAccepted.Inc()

	s.pub.Publish(models.PacketEvent{
		DeviceID:       pkt.DeviceID,
		Seq:            pkt.Seq,
		LossPercentage: pkt.LossPercentage,
		Payload:        pkt.Payload,
		ReceivedAt:     pkt.ReceivedAt,
	})

	s.logger.Info("packet stored",
		zap.String("device_id", deviceID),
		zap.Int64("seq", seq),
		zap.Int64("id", id),
		zap.Float64("loss_percentage", res.LossPercentage))

	return pkt, nil
}

// RecentView returns the most recent n packets, oldest of the window first.
// Seeds the dashboard on viewer connect.
func (s *Service) RecentView(ctx context.Context, n int) ([]models.Packet, error) {
	return s.store.RecentPackets(ctx, n)
}

// DeviceSummaries returns the tracker's current per-device state.
func (s *Service) DeviceSummaries() []models.DeviceSummary {
	return s.tracker.Snapshot()
}
