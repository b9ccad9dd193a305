package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/davekhr/telemetry-dashboard/internal/auth"
	"github.com/davekhr/telemetry-dashboard/internal/broadcast"
	"github.com/davekhr/telemetry-dashboard/internal/ingest"
	"github.com/davekhr/telemetry-dashboard/internal/models"
	"github.com/davekhr/telemetry-dashboard/internal/tracker"
)

// memStore is an in-memory PacketStore for handler tests.
type memStore struct {
	mu         sync.Mutex
	packets    []models.Packet
	deviceLoss map[string][2]int64
}

func newMemStore() *memStore {
	return &memStore{deviceLoss: make(map[string][2]int64)}
}

func (s *memStore) AppendPacket(_ context.Context, pkt *models.Packet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *pkt
	stored.ID = int64(len(s.packets) + 1)
	s.packets = append(s.packets, stored)
	return stored.ID, nil
}

func (s *memStore) RecentPackets(_ context.Context, n int) ([]models.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.packets) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.Packet, len(s.packets)-start)
	copy(out, s.packets[start:])
	return out, nil
}

func (s *memStore) SaveDeviceLoss(_ context.Context, deviceID string, lastSeq, cumulativeLost int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceLoss[deviceID] = [2]int64{lastSeq, cumulativeLost}
	return nil
}

func newTestRouter(st ingest.PacketStore) (*gin.Engine, *broadcast.Broadcaster) {
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	bc := broadcast.New()
	svc := ingest.NewService(tracker.New(), st, bc, logger)

	r := gin.New()
	RegisterIngestRoutes(r, auth.NewSharedSecret("skywalker"), svc)
	RegisterDashboardRoutes(r, svc, bc, 20)
	return r, bc
}

// closeNotifyRecorder wraps httptest.ResponseRecorder with http.CloseNotifier,
// which gin's c.Stream requires from the underlying ResponseWriter.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func postData(r *gin.Engine, deviceID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/"+deviceID+"/data", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngest_WrongCredentialRejected(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	w := postData(r, "dev-a", `{"message":"vader","seq":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A rejected packet must not seed the recent view.
	req := httptest.NewRequest("GET", "/", nil)
	view := httptest.NewRecorder()
	r.ServeHTTP(view, req)

	var resp struct {
		Packets []models.Packet `json:"packets"`
	}
	assert.NoError(t, json.Unmarshal(view.Body.Bytes(), &resp))
	assert.Empty(t, resp.Packets)
}

func TestIngest_MissingCredentialRejected(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	w := postData(r, "dev-a", `{"seq":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIngest_MalformedBodyRejected(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	assert.Equal(t, http.StatusBadRequest, postData(r, "dev-a", `{"message":`).Code)
	assert.Equal(t, http.StatusBadRequest, postData(r, "dev-a", `{"message":"skywalker"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postData(r, "dev-a", `{"message":"skywalker","seq":"abc"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postData(r, "dev-a", `{"message":"skywalker","seq":1.5}`).Code)
}

func TestIngest_AcceptedPacketStoredWithLoss(t *testing.T) {
	st := newMemStore()
	r, _ := newTestRouter(st)

	assert.Equal(t, http.StatusCreated, postData(r, "dev-a", `{"message":"skywalker","seq":1}`).Code)
	assert.Equal(t, http.StatusCreated, postData(r, "dev-a", `{"message":"skywalker","seq":2}`).Code)

	w := postData(r, "dev-a", `{"message":"skywalker","seq":5,"temp":20.1}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.IngestResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stored", resp.Status)
	assert.Equal(t, int64(5), resp.Seq)
	assert.Equal(t, 40.0, resp.LossPercentage)

	// Payload persisted verbatim, extra field included.
	last := st.packets[len(st.packets)-1]
	assert.Equal(t, json.Number("20.1"), last.Payload["temp"])
	assert.Equal(t, "skywalker", last.Payload["message"])
}

func TestSequenceField_AcceptsOnlyIntegralNumbers(t *testing.T) {
	seq, err := sequenceField(models.Payload{"seq": json.Number("42")})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	seq, err = sequenceField(models.Payload{"seq": "7"})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), seq)

	// decodePayload always decodes with UseNumber, so a bare float64 can
	// only mean a caller bypassed it; there is no truncating fallback.
	for name, raw := range map[string]interface{}{
		"float":      float64(1.5),
		"bool":       true,
		"object":     map[string]interface{}{},
		"fractional": json.Number("1.5"),
	} {
		_, err := sequenceField(models.Payload{"seq": raw})
		assert.Error(t, err, "seq as %s must be rejected", name)
	}
}

func TestIngest_StringSequenceAccepted(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	w := postData(r, "dev-a", `{"message":"skywalker","seq":"7"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.IngestResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.Seq)
}

func TestRecentView_WindowOrderNewestLast(t *testing.T) {
	st := newMemStore()
	r, _ := newTestRouter(st)

	for seq := 1; seq <= 25; seq++ {
		w := postData(r, "dev-a", fmt.Sprintf(`{"message":"skywalker","seq":%d}`, seq))
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Packets []models.Packet `json:"packets"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Packets, 20)
	assert.Equal(t, int64(6), resp.Packets[0].ID)
	assert.Equal(t, int64(25), resp.Packets[19].ID)
}

func TestRecentView_LimitCappedAtWindow(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	req := httptest.NewRequest("GET", "/?limit=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeviceSummaries(t *testing.T) {
	r, _ := newTestRouter(newMemStore())

	postData(r, "dev-a", `{"message":"skywalker","seq":1}`)
	postData(r, "dev-a", `{"message":"skywalker","seq":4}`)
	postData(r, "dev-b", `{"message":"skywalker","seq":1}`)

	req := httptest.NewRequest("GET", "/devices", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Devices []models.DeviceSummary `json:"devices"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Devices, 2)
	assert.Equal(t, "dev-a", resp.Devices[0].DeviceID)
	assert.Equal(t, int64(2), resp.Devices[0].CumulativeLost)
	assert.Equal(t, 50.0, resp.Devices[0].LossPercentage)
	assert.Equal(t, "dev-b", resp.Devices[1].DeviceID)
	assert.Equal(t, int64(0), resp.Devices[1].CumulativeLost)
}

func TestStream_ReceivesPublishedEvent(t *testing.T) {
	r, bc := newTestRouter(newMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/stream", nil).WithContext(ctx)
	w := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	// The subscription is registered by the handler goroutine; wait for it.
	deadline := time.Now().Add(time.Second)
	for bc.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, bc.Len())

	bc.Publish(models.PacketEvent{DeviceID: "dev-a", Seq: 9, Payload: models.Payload{}})

	// Give the stream loop a moment to flush, then disconnect the viewer.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit on disconnect")
	}

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "event:packet"), "missing SSE event, body: %q", body)
	assert.True(t, strings.Contains(body, `"device_id":"dev-a"`), "missing event data, body: %q", body)
}
