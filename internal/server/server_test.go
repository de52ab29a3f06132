package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jwulff/guardian-go/internal/cloudsync"
	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/qr"
	"github.com/jwulff/guardian-go/internal/session"
	"github.com/jwulff/guardian-go/internal/storage"
)

type fakeEncoder struct {
	err error
}

func (f fakeEncoder) Encode(payload string, level qr.Level) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG" + payload[:4]), nil
}

func newTestServer(t *testing.T, enc qr.Encoder) (http.Handler, *session.Session) {
	t.Helper()
	log := zap.NewNop().Sugar()
	sess := session.Open(context.Background(), storage.NewMemoryKV(), log, session.Options{})
	return New(sess, log, Options{Encoder: enc}), sess
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

var janeBody = map[string]any{"id": "P1", "displayName": "Jane Doe", "gender": "female", "birthYear": 1958}

func TestPatient(t *testing.T) {
	h, _ := newTestServer(t, fakeEncoder{})

	rec := do(t, h, "GET", "/api/patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decode(t, rec, &got)
	assert.Equal(t, health.UnsetID, got["id"])
	assert.Equal(t, false, got["complete"])

	rec = do(t, h, "PUT", "/api/patient", map[string]any{"id": "P1", "displayName": "Jane"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &got)
	assert.Contains(t, got["error"], "gender")

	rec = do(t, h, "PUT", "/api/patient", janeBody)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, "Jane Doe", got["displayName"])
	assert.Equal(t, true, got["complete"])

	rec = do(t, h, "PUT", "/api/patient", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadings(t *testing.T) {
	h, _ := newTestServer(t, fakeEncoder{})

	rec := do(t, h, "POST", "/api/readings/bp", map[string]any{"systolic": 150, "diastolic": 95, "pulse": 80})
	require.Equal(t, http.StatusCreated, rec.Code)
	var added readingResponse
	decode(t, rec, &added)
	assert.Equal(t, "high", string(added.Tier))
	assert.Equal(t, 0, added.Index)
	assert.Contains(t, added.Line, "BP: 150/95 mmHg, P: 80")

	rec = do(t, h, "POST", "/api/readings/glucose", map[string]any{"value": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/readings/weight", map[string]any{"value": 70})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/readings/glucose", map[string]any{"value": 131.5, "timing": "fasting", "medicationTaken": true})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, "GET", "/api/readings/glucose", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []readingResponse
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, 131.5, list[0].Reading.Value)
	assert.Equal(t, health.TimingFasting, list[0].Reading.Timing)
	assert.True(t, list[0].Reading.Medication)
	assert.Equal(t, "critical", string(list[0].Tier))
}

func seed(t *testing.T, sess *session.Session, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, sess.UpdatePatient(ctx, health.Patient{ID: "P1", DisplayName: "Jane Doe", Gender: health.GenderFemale, BirthYear: 1958}))
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		_, err := sess.AddReading(ctx, health.BloodPressure{
			Timestamp: now.Add(-time.Duration(n-i) * time.Hour),
			Systolic:  150,
			Diastolic: 95,
			Pulse:     70,
		})
		require.NoError(t, err)
	}
}

func TestExport(t *testing.T) {
	h, sess := newTestServer(t, fakeEncoder{})

	rec := do(t, h, "POST", "/api/exports/bp", map[string]any{"indices": []int{0}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	seed(t, sess, 4)

	rec = do(t, h, "POST", "/api/exports/bp", map[string]any{"indices": []int{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/exports/bp", map[string]any{"indices": []int{9}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/exports/bp", map[string]any{"indices": []int{0, 1, 2, 3}})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Bundle struct {
			ResourceType string `json:"resourceType"`
			Entry        []any  `json:"entry"`
		} `json:"bundle"`
		Text    string `json:"text"`
		Payload string `json:"payload"`
		Partial bool   `json:"partial"`
	}
	decode(t, rec, &got)
	assert.Equal(t, "Bundle", got.Bundle.ResourceType)
	assert.Len(t, got.Bundle.Entry, 6)
	assert.Contains(t, got.Text, "Jane Doe")
	assert.True(t, got.Partial)

	rec = do(t, h, "POST", "/api/viewer/decode", got.Payload)
	require.Equal(t, http.StatusOK, rec.Code)
	var viewed decodeResponse
	decode(t, rec, &viewed)
	assert.Len(t, viewed.Bundle.Entry, 5)
	assert.Contains(t, viewed.Text, qr.PartialSuffix)

	rec = do(t, h, "POST", "/api/viewer/decode", "not base64!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportQR(t *testing.T) {
	h, sess := newTestServer(t, fakeEncoder{})
	seed(t, sess, 2)

	rec := do(t, h, "GET", "/api/exports/bp/qr.png?indices=0,1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "false", rec.Header().Get("X-Partial-Data"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(t, h, "GET", "/api/exports/bp/qr.png?indices=a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	tooLarge, sess2 := newTestServer(t, fakeEncoder{err: errors.New("data too long")})
	seed(t, sess2, 1)
	rec = do(t, tooLarge, "GET", "/api/exports/bp/qr.png?indices=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, qr.TooLargeNotice, body["error"])
}

func TestRecommendations(t *testing.T) {
	h, sess := newTestServer(t, fakeEncoder{})

	rec := do(t, h, "GET", "/api/recommendations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Findings   []map[string]string `json:"findings"`
		Conclusion string              `json:"conclusion"`
	}
	decode(t, rec, &got)
	assert.Empty(t, got.Findings)
	assert.Equal(t, "stable", got.Conclusion)

	seed(t, sess, 3)
	rec = do(t, h, "GET", "/api/recommendations", nil)
	decode(t, rec, &got)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "danger", got.Findings[0]["severity"])
}

func TestMedications(t *testing.T) {
	h, _ := newTestServer(t, fakeEncoder{})

	rec := do(t, h, "GET", "/api/medications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(t, h, "POST", "/api/medications", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/medications", map[string]any{"name": "Metformin"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ev health.MedicationEvent
	decode(t, rec, &ev)
	assert.Equal(t, "diabetes", ev.Category)
	assert.NotEmpty(t, ev.ID)

	rec = do(t, h, "DELETE", "/api/medications/"+ev.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, "DELETE", "/api/medications/"+ev.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakePusher struct {
	mu       sync.Mutex
	payloads []cloudsync.Payload
}

func (f *fakePusher) PushAsync(ctx context.Context, p cloudsync.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
}

func TestAddReadingPushes(t *testing.T) {
	log := zap.NewNop().Sugar()
	sess := session.Open(context.Background(), storage.NewMemoryKV(), log, session.Options{})
	pusher := &fakePusher{}
	h := New(sess, log, Options{Encoder: fakeEncoder{}, Sync: pusher, SyncRecent: 2})

	rec := do(t, h, "POST", "/api/readings/bp", map[string]any{"systolic": 120, "diastolic": 80, "pulse": 60})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, pusher.payloads)

	seed(t, sess, 3)
	rec = do(t, h, "POST", "/api/readings/bp", map[string]any{"systolic": 120, "diastolic": 80, "pulse": 60})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, pusher.payloads, 1)
	assert.Len(t, pusher.payloads[0].Bundle.Observations, 2)
}

func TestCORS(t *testing.T) {
	h, _ := newTestServer(t, fakeEncoder{})

	req := httptest.NewRequest("OPTIONS", "/api/patient", nil)
	req.Header.Set("Origin", "http://viewer.example")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, []string{"*", "http://viewer.example"}, rec.Header().Get("Access-Control-Allow-Origin"))
}
