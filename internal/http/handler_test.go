package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"violation-service/internal/config"
	"violation-service/internal/cooldown"
	"violation-service/internal/db"
	"violation-service/internal/domain/violation"
	"violation-service/internal/identity"
	"violation-service/internal/policy"
	"violation-service/internal/repository"
	"violation-service/internal/resolver"
	"violation-service/internal/service"
)

type fakeDetector struct {
	result violation.DetectionResult
}

func (d *fakeDetector) Detect(context.Context, []byte) violation.DetectionResult {
	return d.result
}

func detections(classIDs ...int) *fakeDetector {
	d := &fakeDetector{result: violation.DetectionResult{Success: true}}
	for _, id := range classIDs {
		d.result.Detections = append(d.result.Detections, violation.RawDetection{
			ClassID:    id,
			Confidence: 0.9,
			BBox:       violation.BBox{X1: 10, Y1: 10, X2: 60, Y2: 90},
		})
	}
	return d
}

func newRouter(t *testing.T, detector service.Detector) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	cfg := &config.Config{HTTP: config.HTTPConfig{MaxUploadMB: 1}}

	gdb, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"}, log)
	require.NoError(t, err)

	repo := repository.NewViolationRepository(gdb)
	table := policy.Default()
	res := resolver.New(table, log)
	sink := service.NewRecordSink(repo, nil)

	pipeline := service.NewPipeline(
		detector,
		res,
		identity.New(log),
		cooldown.NewEngine(cooldown.NewMemoryStore(), 30*time.Second, log),
		table,
		sink,
		service.PipelineOptions{DefaultLocation: "Live Camera Feed"},
		log,
	)
	violations := service.NewViolationService(repo, detector, res, table, sink, log)

	r := gin.New()
	NewHandler(pipeline, violations, cfg, log).Register(r)
	return r
}

func perform(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func jsonRequest(method, path string, payload any) *http.Request {
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, filename string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func stats(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data in %v", body)
	s, ok := data["stats"].(map[string]any)
	require.True(t, ok, "missing stats in %v", data)
	return s
}

func TestHealth(t *testing.T) {
	r := newRouter(t, detections())
	w, body := perform(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestDetectSnapshot(t *testing.T) {
	r := newRouter(t, detections(1, 5))
	frame := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	w, body := perform(r, jsonRequest(http.MethodPost, "/api/v1/detection/snapshot", gin.H{"frame": frame, "camera_id": "cam-1"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, stats(t, body)["confirmed"])
	assert.Equal(t, "processed", body["data"].(map[string]any)["status"])

	w, body = perform(r, jsonRequest(http.MethodPost, "/api/v1/detection/snapshot", gin.H{"frame": frame, "camera_id": "cam-1"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, stats(t, body)["confirmed"])
	assert.EqualValues(t, 1, stats(t, body)["skipped_duplicate"])
}

func TestDetectSnapshotRejectsBadFrames(t *testing.T) {
	r := newRouter(t, detections(1))

	tests := []struct {
		name    string
		payload any
	}{
		{name: "missing frame", payload: gin.H{"camera_id": "cam-1"}},
		{name: "not base64", payload: gin.H{"frame": "%%%not-base64%%%"}},
		{name: "empty data url", payload: gin.H{"frame": "data:image/png;base64,"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w, body := perform(r, jsonRequest(http.MethodPost, "/api/v1/detection/snapshot", test.payload))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDetectFrame(t *testing.T) {
	r := newRouter(t, detections(2, 3))

	w, body := perform(r, multipartRequest(t, "/api/v1/detection/frame", "frame.png", map[string]string{"camera_id": "cam-2"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, stats(t, body)["confirmed"])

	w, _ = perform(r, multipartRequest(t, "/api/v1/detection/frame", "frame.gif", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectFrameDetectorFailure(t *testing.T) {
	r := newRouter(t, &fakeDetector{result: violation.DetectionResult{Error: "connection refused"}})

	w, body := perform(r, multipartRequest(t, "/api/v1/detection/frame", "frame.jpg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "detection_failed", data["status"])
	assert.Equal(t, false, data["success"])
	assert.Equal(t, "connection refused", data["error"])
}

func TestUploadAndManageViolation(t *testing.T) {
	r := newRouter(t, detections(1))

	w, body := perform(r, multipartRequest(t, "/api/v1/upload/violation", "evidence.jpg", map[string]string{
		"vehicle_number": "KA 01 AB 1234",
		"violation_type": "No Helmet",
		"officer_id":     "officer-3",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := body["data"].(map[string]any)["violation"].(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "KA01AB1234", created["vehicle_number"])
	assert.EqualValues(t, 500, created["fine_amount"])

	w, body = perform(r, httptest.NewRequest(http.MethodGet, "/api/v1/violations?status=pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, body = perform(r, jsonRequest(http.MethodPut, "/api/v1/violations/"+id, gin.H{"status": "resolved"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, repository.StatusResolved, body["data"].(map[string]any)["status"])

	w, _ = perform(r, jsonRequest(http.MethodPut, "/api/v1/violations/"+id, gin.H{"status": "archived"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(r, httptest.NewRequest(http.MethodDelete, "/api/v1/violations/"+id, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = perform(r, httptest.NewRequest(http.MethodGet, "/api/v1/violations/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(r, httptest.NewRequest(http.MethodGet, "/api/v1/violations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTypeMismatch(t *testing.T) {
	r := newRouter(t, detections(3))

	w, body := perform(r, multipartRequest(t, "/api/v1/upload/violation", "evidence.jpg", map[string]string{
		"vehicle_number": "KA01AB1234",
		"violation_type": "Mobile Usage",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, body["error"], "mismatch")
}

func TestUploadMissingFile(t *testing.T) {
	r := newRouter(t, detections(1))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("vehicle_number", "KA01AB1234"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload/violation", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w, _ := perform(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectLive(t *testing.T) {
	srv := httptest.NewServer(newRouter(t, detections(1)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/detection/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	expected := []struct {
		confirmed float64
		duplicate float64
	}{
		{confirmed: 1},
		{duplicate: 1},
	}

	for _, want := range expected {
		require.NoError(t, conn.WriteJSON(gin.H{"frame": frame, "camera_id": "cam-live"}))

		var body map[string]any
		require.NoError(t, conn.ReadJSON(&body))
		s := stats(t, body)
		assert.Equal(t, want.confirmed, s["confirmed"])
		assert.Equal(t, want.duplicate, s["skipped_duplicate"])
	}

	require.NoError(t, conn.WriteJSON(gin.H{"frame": ""}))
	var body map[string]any
	require.NoError(t, conn.ReadJSON(&body))
	assert.NotEmpty(t, body["error"])
}

func TestCreateViolation(t *testing.T) {
	r := newRouter(t, detections())

	w, body := perform(r, jsonRequest(http.MethodPost, "/api/v1/violations", gin.H{
		"vehicle_number": "KA05MN4321",
		"violation_type": "No Helmet",
		"location":       "Silk Board",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := body["data"].(map[string]any)
	assert.Equal(t, "KA05MN4321", created["vehicle_number"])
	assert.Equal(t, "pending", created["status"])
	assert.EqualValues(t, 500, created["fine_amount"])

	w, body = perform(r, httptest.NewRequest(http.MethodGet, "/api/v1/violations/"+created["id"].(string), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Silk Board", body["data"].(map[string]any)["location"])

	w, _ = perform(r, jsonRequest(http.MethodPost, "/api/v1/violations", gin.H{"vehicle_number": "KA05MN4321", "violation_type": "Speeding"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(r, jsonRequest(http.MethodPost, "/api/v1/violations", gin.H{"violation_type": "No Helmet"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
