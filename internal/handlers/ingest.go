package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/davekhr/telemetry-dashboard/internal/auth"
	"github.com/davekhr/telemetry-dashboard/internal/ingest"
	"github.com/davekhr/telemetry-dashboard/internal/metrics"
	"github.com/davekhr/telemetry-dashboard/internal/models"
)

// RegisterIngestRoutes registers the ingestion-path endpoint.
//
// POST /:device_id/data
//   - Body must be a JSON object carrying "message" (the transmitter
//     credential) and "seq" (integer-convertible).
//   - 201 with the stored packet's id and loss percentage on acceptance,
//     403 on credential mismatch, 400 on malformed body, 500 on a failed
//     persistence write.
//   - Everything else in the body is opaque payload, stored and relayed to
//     viewers verbatim.
func RegisterIngestRoutes(r gin.IRoutes, authn auth.Authenticator, svc *ingest.Service) {
	r.POST("/:device_id/data", func(c *gin.Context) {
		deviceID := c.Param("device_id")

		payload, err := decodePayload(c)
		if err != nil {
			metrics.PacketsRejected.WithLabelValues("bad_body").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		credential, _ := payload["message"].(string)
		if !authn.Authenticate(deviceID, credential) {
			metrics.PacketsRejected.WithLabelValues("bad_credential").Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "wrong transmitter"})
			return
		}

		seq, err := sequenceField(payload)
		if err != nil {
			metrics.PacketsRejected.WithLabelValues("bad_seq").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be an integer"})
			return
		}

		pkt, err := svc.Ingest(c.Request.Context(), deviceID, seq, payload)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "packet store write failed"})
			return
		}

		c.JSON(http.StatusCreated, models.IngestResponse{
			Status:         "stored",
			ID:             pkt.ID,
			Seq:            pkt.Seq,
			LossPercentage: pkt.LossPercentage,
		})
	})
}

// decodePayload reads the body as a JSON object. UseNumber keeps "seq" exact
// instead of rounding it through float64.
func decodePayload(c *gin.Context) (models.Payload, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var payload models.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return payload, nil
}

// sequenceField extracts the device-assigned sequence number. Devices in the
// field send it as a JSON number; string-encoded integers are accepted too.
func sequenceField(payload models.Payload) (int64, error) {
	raw, ok := payload["seq"]
	if !ok {
		return 0, errors.New("seq missing")
	}

	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return 0, errors.New("seq not an integer")
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.New("seq not an integer")
		}
		return n, nil
	default:
		return 0, errors.New("seq not an integer")
	}
}
