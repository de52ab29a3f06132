// Package server exposes a session over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/cloudsync"
	"github.com/jwulff/guardian-go/internal/fhir"
	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/qr"
	"github.com/jwulff/guardian-go/internal/report"
	"github.com/jwulff/guardian-go/internal/session"
	"github.com/jwulff/guardian-go/internal/severity"
	"github.com/jwulff/guardian-go/internal/storage"
	"github.com/jwulff/guardian-go/internal/trend"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Pusher forwards payloads in the background.
type Pusher interface {
	PushAsync(ctx context.Context, p cloudsync.Payload)
}

// Options configure the HTTP surface. When Sync is set, every accepted
// reading triggers a push of the SyncRecent latest readings of its kind.
type Options struct {
	AllowedOrigins []string
	Encoder        qr.Encoder
	Sync           Pusher
	SyncRecent     int
}

type handlers struct {
	sess   *session.Session
	enc    qr.Encoder
	sync   Pusher
	recent int
	log    *zap.SugaredLogger
}

// New builds the router for sess wrapped in a CORS handler.
func New(sess *session.Session, logger *zap.SugaredLogger, opts Options) http.Handler {
	if opts.Encoder == nil {
		opts.Encoder = qr.PNGEncoder{Size: qr.DefaultSize}
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.SyncRecent < 1 {
		opts.SyncRecent = 5
	}
	h := &handlers{sess: sess, enc: opts.Encoder, sync: opts.Sync, recent: opts.SyncRecent, log: logger}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/patient", h.getPatient).Methods("GET")
	api.HandleFunc("/patient", h.putPatient).Methods("PUT")
	api.HandleFunc("/readings/{kind}", h.listReadings).Methods("GET")
	api.HandleFunc("/readings/{kind}", h.addReading).Methods("POST")
	api.HandleFunc("/exports/{kind}", h.export).Methods("POST")
	api.HandleFunc("/exports/{kind}/qr.png", h.exportQR).Methods("GET")
	api.HandleFunc("/recommendations", h.recommendations).Methods("GET")
	api.HandleFunc("/viewer/decode", h.decode).Methods("POST")
	api.HandleFunc("/medications", h.listMedications).Methods("GET")
	api.HandleFunc("/medications", h.addMedication).Methods("POST")
	api.HandleFunc("/medications/{id}", h.deleteMedication).Methods("DELETE")

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to status codes.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var idxErr *session.IndexError
	var kindErr *bundle.KindMismatchError
	status := http.StatusInternalServerError
	switch {
	case health.IsValidationError(err), errors.As(err, &idxErr), errors.As(err, &kindErr):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoSelection), errors.Is(err, bundle.ErrNoReadings):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrIncompletePatient):
		status = http.StatusConflict
	case storage.IsNotFound(err):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeErrorBody(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return health.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func kindVar(r *http.Request) (health.Kind, error) {
	kind, err := health.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		return "", health.ValidationError{Field: "kind", Reason: err.Error()}
	}
	return kind, nil
}

// Patient

type patientBody struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	BirthYear   int    `json:"birthYear"`
}

type patientResponse struct {
	health.Patient
	Complete bool `json:"complete"`
}

func (h *handlers) getPatient(w http.ResponseWriter, r *http.Request) {
	p := h.sess.Patient()
	writeJSON(w, http.StatusOK, patientResponse{Patient: p, Complete: p.Complete()})
}

func (h *handlers) putPatient(w http.ResponseWriter, r *http.Request) {
	var body patientBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	p := health.Patient{
		ID:          strings.TrimSpace(body.ID),
		DisplayName: strings.TrimSpace(body.DisplayName),
		Gender:      health.ParseGender(body.Gender),
		BirthYear:   body.BirthYear,
	}
	if err := h.sess.UpdatePatient(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	p = h.sess.Patient()
	writeJSON(w, http.StatusOK, patientResponse{Patient: p, Complete: true})
}

// Readings

type readingBody struct {
	Timestamp       time.Time `json:"timestamp"`
	Systolic        int       `json:"systolic,omitempty"`
	Diastolic       int       `json:"diastolic,omitempty"`
	Pulse           int       `json:"pulse,omitempty"`
	Value           float64   `json:"value,omitempty"`
	Timing          string    `json:"timing,omitempty"`
	MedicationTaken bool      `json:"medicationTaken"`
}

func (b readingBody) reading(kind health.Kind, now time.Time) health.Reading {
	ts := b.Timestamp
	if ts.IsZero() {
		ts = now
	}
	if kind == health.KindBloodPressure {
		return health.BloodPressure{
			Timestamp:       ts,
			Systolic:        b.Systolic,
			Diastolic:       b.Diastolic,
			Pulse:           b.Pulse,
			MedicationTaken: b.MedicationTaken,
		}
	}
	return health.Glucose{
		Timestamp:       ts,
		Value:           b.Value,
		Timing:          health.ParseTiming(b.Timing),
		MedicationTaken: b.MedicationTaken,
	}
}

type readingResponse struct {
	Index   int                  `json:"index"`
	Reading health.StoredReading `json:"reading"`
	Tier    severity.Tier        `json:"tier"`
	Label   string               `json:"label"`
	Line    string               `json:"line"`
}

func (h *handlers) listReadings(w http.ResponseWriter, r *http.Request) {
	kind, err := kindVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rs := h.sess.Readings(kind)
	out := make([]readingResponse, len(rs))
	for i, rd := range rs {
		tier := severity.Classify(rd)
		out[i] = readingResponse{
			Index:   i,
			Reading: health.Store(rd),
			Tier:    tier,
			Label:   tier.Label(),
			Line:    report.Line(rd, h.sess.Location()),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) addReading(w http.ResponseWriter, r *http.Request) {
	kind, err := kindVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body readingBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	rd := body.reading(kind, time.Now().UTC())
	tier, err := h.sess.AddReading(r.Context(), rd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rd = health.Normalize(rd)
	h.push(kind)
	writeJSON(w, http.StatusCreated, readingResponse{
		Index:   indexOf(h.sess.Readings(kind), rd),
		Reading: health.Store(rd),
		Tier:    tier,
		Label:   tier.Label(),
		Line:    report.Line(rd, h.sess.Location()),
	})
}

func (h *handlers) push(kind health.Kind) {
	if h.sync == nil {
		return
	}
	p, err := h.sess.SyncLatest(kind, h.recent)
	if err != nil {
		h.log.Debugw("sync skipped", "kind", kind, "error", err)
		return
	}
	h.sync.PushAsync(context.Background(), p)
}

func indexOf(rs []health.Reading, rd health.Reading) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == rd {
			return i
		}
	}
	return -1
}

// Exports

type exportBody struct {
	Indices []int `json:"indices"`
}

type exportResponse struct {
	Bundle  *fhir.Bundle `json:"bundle"`
	Text    string       `json:"text"`
	Payload string       `json:"payload"`
	Partial bool         `json:"partial"`
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	kind, err := kindVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body exportBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	ex, err := h.sess.Export(r.Context(), kind, body.Indices)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Bundle:  fhir.Encode(ex.Bundle),
		Text:    ex.Text,
		Payload: ex.Payload,
		Partial: ex.Compact.Partial,
	})
}

func parseIndices(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, health.ValidationError{Field: "indices", Reason: "not a number: " + p}
		}
		out = append(out, n)
	}
	return out, nil
}

func (h *handlers) exportQR(w http.ResponseWriter, r *http.Request) {
	kind, err := kindVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	indices, err := parseIndices(r.URL.Query().Get("indices"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ex, err := h.sess.Export(r.Context(), kind, indices)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	img, err := qr.Render(ex.Bundle, h.enc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if img.Notice != "" {
		writeErrorBody(w, http.StatusUnprocessableEntity, img.Notice)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Partial-Data", strconv.FormatBool(img.Partial))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.PNG)
}

// Recommendations

func (h *handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	findings := h.sess.Recommendations(time.Now().UTC())
	if findings == nil {
		findings = []trend.Finding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"findings":   findings,
		"conclusion": trend.Conclusion(findings),
	})
}

// Viewer

type decodeResponse struct {
	Bundle *fhir.Bundle `json:"bundle"`
	Text   string       `json:"text"`
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := qr.DecodePayload(strings.TrimSpace(string(data)))
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decodeResponse{
		Bundle: fhir.Encode(b),
		Text:   report.Text(b, h.sess.Location()),
	})
}

// Medications

type medicationBody struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

func (h *handlers) listMedications(w http.ResponseWriter, r *http.Request) {
	meds := h.sess.Medications()
	if meds == nil {
		meds = []health.MedicationEvent{}
	}
	writeJSON(w, http.StatusOK, meds)
}

func (h *handlers) addMedication(w http.ResponseWriter, r *http.Request) {
	var body medicationBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if body.Date.IsZero() {
		body.Date = time.Now().UTC()
	}
	ev, err := h.sess.AddMedication(r.Context(), body.Name, body.Date)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *handlers) deleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.DeleteMedication(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
