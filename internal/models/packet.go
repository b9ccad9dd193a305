package models

import "time"

// Payload is the decoded request body of a telemetry transmission. The core
// treats it as opaque: whatever the device sent is persisted and relayed to
// viewers verbatim.
type Payload map[string]interface{}

// Packet is one persisted telemetry record. Rows are immutable once stored;
// ID is store-assigned and strictly increasing, so recency queries order by it.
type Packet struct {
	ID             int64     `json:"id"`
	DeviceID       string    `json:"device_id"`
	Seq            int64     `json:"seq"`
	LossPercentage float64   `json:"loss_percentage"`
	Payload        Payload   `json:"payload"`
	ReceivedAt     time.Time `json:"received_at"`
}

// PacketEvent is pushed to every subscribed viewer when a packet is accepted.
// Mirrors the shape the dashboard consumes: identity, sequence, loss, payload.
type PacketEvent struct {
	DeviceID       string    `json:"device_id"`
	Seq            int64     `json:"seq"`
	LossPercentage float64   `json:"loss_percentage"`
	Payload        Payload   `json:"payload"`
	ReceivedAt     time.Time `json:"received_at"`
}

// DeviceSummary is the per-device view served to the dashboard: the tracker's
// current state for one device.
type DeviceSummary struct {
	DeviceID       string  `json:"device_id"`
	LastSeq        int64   `json:"last_seq"`
	CumulativeLost int64   `json:"cumulative_lost"`
	LossPercentage float64 `json:"loss_percentage"`
}

// IngestResponse is returned by POST /:device_id/data on acceptance.
type IngestResponse struct {
	Status         string  `json:"status"`
	ID             int64   `json:"id"`
	Seq            int64   `json:"seq"`
	LossPercentage float64 `json:"loss_percentage"`
}
