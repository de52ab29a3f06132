// Package session holds the patient, their readings and their medication
// history for one running process, and persists every change through a
// storage.Store. Memory is authoritative: a store that fails to load or save
// is logged and the session carries on.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/cloudsync"
	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/medication"
	"github.com/jwulff/guardian-go/internal/qr"
	"github.com/jwulff/guardian-go/internal/report"
	"github.com/jwulff/guardian-go/internal/severity"
	"github.com/jwulff/guardian-go/internal/storage"
	"github.com/jwulff/guardian-go/internal/trend"
)

var (
	// ErrIncompletePatient is returned when exporting before the patient
	// identity has been filled in.
	ErrIncompletePatient = errors.New("patient identity is incomplete")
	// ErrNoSelection is returned when exporting an empty selection.
	ErrNoSelection = errors.New("no readings selected")
)

// IndexError reports a selection index outside the reading list.
type IndexError struct {
	Kind  health.Kind
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s reading index %d out of range [0,%d)", e.Kind, e.Index, e.Len)
}

var kinds = []health.Kind{health.KindBloodPressure, health.KindGlucose}

// Options configure a Session. Zero values select defaults.
type Options struct {
	Location  *time.Location
	Assembler *bundle.Assembler
	Now       func() time.Time
}

// Session is safe for concurrent use.
type Session struct {
	store     storage.Store
	repos     map[health.Kind]storage.Repository
	assembler *bundle.Assembler
	loc       *time.Location
	now       func() time.Time
	log       *zap.SugaredLogger

	mu       sync.RWMutex
	patient  health.Patient
	readings map[health.Kind][]health.Reading
	meds     []health.MedicationEvent
}

// Open loads the session state from store. A first run saves the default
// patient. Load failures fall back to empty state.
func Open(ctx context.Context, store storage.Store, logger *zap.SugaredLogger, opts Options) *Session {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Assembler == nil {
		opts.Assembler = bundle.NewAssembler()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Session{
		store:     store,
		repos:     make(map[health.Kind]storage.Repository, len(kinds)),
		assembler: opts.Assembler,
		loc:       opts.Location,
		now:       opts.Now,
		log:       logger,
		readings:  make(map[health.Kind][]health.Reading, len(kinds)),
	}
	for _, k := range kinds {
		s.repos[k] = store.Readings(k)
	}

	s.loadPatient(ctx)
	for _, k := range kinds {
		rs, err := s.repos[k].List(ctx)
		if err != nil {
			s.log.Warnw("failed to load readings", "kind", k, "error", err)
			continue
		}
		s.readings[k] = rs
	}
	if _, err := store.Load(ctx, storage.KeyMedications, &s.meds); err != nil {
		s.log.Warnw("failed to load medications", "error", err)
		s.meds = nil
	}

	s.log.Infow("session opened",
		"patient_id", s.patient.ID,
		"bp_readings", len(s.readings[health.KindBloodPressure]),
		"glucose_readings", len(s.readings[health.KindGlucose]),
		"medications", len(s.meds),
	)
	return s
}

func (s *Session) loadPatient(ctx context.Context) {
	var p health.Patient
	ok, err := s.store.Load(ctx, storage.KeyPatient, &p)
	switch {
	case err != nil:
		s.log.Warnw("failed to load patient", "error", err)
		s.patient = health.DefaultPatient()
	case !ok:
		s.patient = health.DefaultPatient()
		if err := s.store.Save(ctx, storage.KeyPatient, s.patient); err != nil {
			s.log.Warnw("failed to save default patient", "error", err)
		}
	default:
		s.patient = p
	}
}

// Location is the zone timestamps are displayed in.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Patient returns the current patient identity.
func (s *Session) Patient() health.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patient
}

// UpdatePatient replaces the patient identity. Readings belong to one
// patient, so all readings are cleared.
func (s *Session) UpdatePatient(ctx context.Context, p health.Patient) error {
	p.Gender = health.ParseGender(string(p.Gender))
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.patient = p
	for _, k := range kinds {
		s.readings[k] = nil
	}
	s.mu.Unlock()

	if err := s.store.Save(ctx, storage.KeyPatient, p); err != nil {
		s.log.Warnw("failed to save patient", "patient_id", p.ID, "error", err)
	}
	for _, k := range kinds {
		if err := s.repos[k].ReplaceAll(ctx, nil); err != nil {
			s.log.Warnw("failed to clear readings", "kind", k, "error", err)
		}
	}
	s.log.Infow("patient updated", "patient_id", p.ID)
	return nil
}

// AddReading validates and records r, returning its severity tier.
func (s *Session) AddReading(ctx context.Context, r health.Reading) (severity.Tier, error) {
	if err := health.ValidateReading(r); err != nil {
		return "", err
	}
	r = health.Normalize(r)

	s.mu.Lock()
	s.readings[r.Kind()] = append(s.readings[r.Kind()], r)
	s.mu.Unlock()

	if err := s.repos[r.Kind()].Append(ctx, r); err != nil {
		s.log.Warnw("failed to persist reading", "kind", r.Kind(), "error", err)
	}
	return severity.Classify(r), nil
}

// Import records readings from an external source, skipping any whose kind
// and instant are already logged. It returns the number added.
func (s *Session) Import(ctx context.Context, rs []health.Reading) (int, error) {
	added := 0
	for _, r := range rs {
		if err := health.ValidateReading(r); err != nil {
			return added, err
		}
		r = health.Normalize(r)
		if s.has(r.Kind(), r.Time()) {
			continue
		}
		if _, err := s.AddReading(ctx, r); err != nil {
			return added, err
		}
		added++
	}
	s.log.Infow("readings imported", "offered", len(rs), "added", added)
	return added, nil
}

func (s *Session) has(kind health.Kind, at time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings[kind] {
		if r.Time().Equal(at) {
			return true
		}
	}
	return false
}

// Readings returns the readings of kind, oldest first. Export indices refer
// to positions in this list.
func (s *Session) Readings(kind health.Kind) []health.Reading {
	s.mu.RLock()
	out := append([]health.Reading(nil), s.readings[kind]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})
	return out
}

// Latest returns the most recent reading of kind and its tier.
func (s *Session) Latest(kind health.Kind) (health.Reading, severity.Tier, bool) {
	rs := s.Readings(kind)
	if len(rs) == 0 {
		return nil, "", false
	}
	r := rs[len(rs)-1]
	return r, severity.Classify(r), true
}

// Export is an assembled bundle with its text and QR projections.
type Export struct {
	Bundle  *bundle.Bundle
	Text    string
	Compact qr.Compact
	Payload string
}

// Export assembles the selected readings of kind into a new bundle.
func (s *Session) Export(ctx context.Context, kind health.Kind, indices []int) (*Export, error) {
	patient := s.Patient()
	if !patient.Complete() {
		return nil, ErrIncompletePatient
	}
	if len(indices) == 0 {
		return nil, ErrNoSelection
	}

	all := s.Readings(kind)
	selected := make([]health.Reading, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(all) {
			return nil, &IndexError{Kind: kind, Index: i, Len: len(all)}
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		selected = append(selected, all[i])
	}

	b, err := s.assembler.Assemble(patient, kind, selected)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble bundle: %w", err)
	}

	out := &Export{Bundle: b}
	var payloadErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Text = report.Text(b, s.loc)
	}()
	go func() {
		defer wg.Done()
		out.Compact = qr.Project(b)
		out.Payload, payloadErr = qr.Payload(out.Compact)
	}()
	wg.Wait()
	if payloadErr != nil {
		return nil, payloadErr
	}

	s.log.Infow("bundle exported",
		"bundle_id", b.ID,
		"kind", kind,
		"observations", len(b.Observations),
		"partial", out.Compact.Partial,
	)
	return out, nil
}

// Recommendations analyzes the full history of both kinds at now.
func (s *Session) Recommendations(now time.Time) []trend.Finding {
	var all []health.Reading
	for _, k := range kinds {
		all = append(all, s.Readings(k)...)
	}
	return trend.Analyze(all, now)
}

// AddMedication records a dose of the named drug taken at at.
func (s *Session) AddMedication(ctx context.Context, name string, at time.Time) (health.MedicationEvent, error) {
	ev, err := medication.NewEvent(name, at)
	if err != nil {
		return health.MedicationEvent{}, err
	}

	s.mu.Lock()
	s.meds = append(s.meds, ev)
	meds := append([]health.MedicationEvent(nil), s.meds...)
	s.mu.Unlock()

	s.saveMedications(ctx, meds)
	return ev, nil
}

// DeleteMedication removes the event with id.
func (s *Session) DeleteMedication(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := -1
	for i, ev := range s.meds {
		if ev.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return storage.ErrNotFound{Resource: "medication", ID: id}
	}
	s.meds = append(s.meds[:idx:idx], s.meds[idx+1:]...)
	meds := append([]health.MedicationEvent(nil), s.meds...)
	s.mu.Unlock()

	s.saveMedications(ctx, meds)
	return nil
}

func (s *Session) saveMedications(ctx context.Context, meds []health.MedicationEvent) {
	if err := s.store.Save(ctx, storage.KeyMedications, meds); err != nil {
		s.log.Warnw("failed to persist medications", "count", len(meds), "error", err)
	}
}

// Medications returns the medication history, oldest first.
func (s *Session) Medications() []health.MedicationEvent {
	s.mu.RLock()
	out := append([]health.MedicationEvent(nil), s.meds...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// SyncTopic returns the persisted sync topic, generating one on first use.
func (s *Session) SyncTopic(ctx context.Context) (string, error) {
	var topic string
	ok, err := s.store.Load(ctx, storage.KeySyncTopic, &topic)
	if err != nil {
		s.log.Warnw("failed to load sync topic", "error", err)
	}
	if ok && err == nil && topic != "" {
		return topic, nil
	}

	topic, err = cloudsync.NewTopic()
	if err != nil {
		return "", err
	}
	if err := s.store.Save(ctx, storage.KeySyncTopic, topic); err != nil {
		s.log.Warnw("failed to save sync topic", "error", err)
	}
	return topic, nil
}

// SyncLatest builds a sync payload from the n most recent readings of kind.
func (s *Session) SyncLatest(kind health.Kind, n int) (cloudsync.Payload, error) {
	patient := s.Patient()
	if !patient.Complete() {
		return cloudsync.Payload{}, ErrIncompletePatient
	}
	return cloudsync.BuildPayload(s.assembler, patient, kind, s.Readings(kind), n)
}

// RecordSync persists the state of the latest push.
func (s *Session) RecordSync(ctx context.Context, st cloudsync.State) {
	if err := s.store.Save(ctx, storage.KeySyncState, st); err != nil {
		s.log.Warnw("failed to save sync state", "topic", st.Topic, "error", err)
	}
}

// LastSync returns the persisted push state, if any.
func (s *Session) LastSync(ctx context.Context) (cloudsync.State, bool) {
	var st cloudsync.State
	ok, err := s.store.Load(ctx, storage.KeySyncState, &st)
	if err != nil {
		s.log.Warnw("failed to load sync state", "error", err)
		return cloudsync.State{}, false
	}
	return st, ok
}
