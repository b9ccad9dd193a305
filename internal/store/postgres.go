package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davekhr/telemetry-dashboard/internal/metrics"
	"github.com/davekhr/telemetry-dashboard/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable, append-only persistence layer for packets
// plus the single-row-per-device loss table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// AppendPacket persists one packet and returns the store-assigned ID.
// Rows are never updated or deleted; the ID sequence makes the insertion
// order the recency order.
func (p *PostgresStore) AppendPacket(ctx context.Context, pkt *models.Packet) (int64, error) {
	payloadJSON, err := json.Marshal(pkt.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	start := time.Now()
	var id int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO packets(device_id, seq, loss_percentage, payload, received_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, pkt.DeviceID, pkt.Seq, pkt.LossPercentage, payloadJSON, pkt.ReceivedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	metrics.AppendDuration.Observe(time.Since(start).Seconds())

	return id, nil
}

// recentPacketsSQL selects the n newest packets and reorders them ascending.
// The subquery alias must not be a reserved word ("window" is: it opens a
// WINDOW clause).
const recentPacketsSQL = `
	SELECT id, device_id, seq, loss_percentage, payload, received_at
	FROM (
		SELECT id, device_id, seq, loss_percentage, payload, received_at
		FROM packets
		ORDER BY id DESC
		LIMIT $1
	) recent
	ORDER BY id ASC
`

// RecentPackets returns up to n most-recently-appended packets in ascending
// insertion order (oldest of the window first, newest last). An empty store
// yields an empty slice, not an error.
func (p *PostgresStore) RecentPackets(ctx context.Context, n int) ([]models.Packet, error) {
	rows, err := p.pool.Query(ctx, recentPacketsSQL, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	packets := make([]models.Packet, 0, n)
	for rows.Next() {
		var (
			pkt         models.Packet
			payloadJSON []byte
		)
		if err := rows.Scan(&pkt.ID, &pkt.DeviceID, &pkt.Seq, &pkt.LossPercentage, &payloadJSON, &pkt.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payloadJSON, &pkt.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for packet %d: %w", pkt.ID, err)
		}
		packets = append(packets, pkt)
	}

	return packets, rows.Err()
}

// SaveDeviceLoss mirrors the tracker's state for one device into the
// device_loss table: one row per device, upserted on every accepted packet.
func (p *PostgresStore) SaveDeviceLoss(ctx context.Context, deviceID string, lastSeq, cumulativeLost int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO device_loss(device_id, last_seq, cumulative_lost)
		VALUES ($1,$2,$3)
		ON CONFLICT (device_id) DO UPDATE
		SET last_seq = EXCLUDED.last_seq,
		    cumulative_lost = EXCLUDED.cumulative_lost
	`, deviceID, lastSeq, cumulativeLost)
	return err
}
