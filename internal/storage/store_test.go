package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/guardian-go/internal/health"
)

func TestErrNotFound(t *testing.T) {
	err := ErrNotFound{Resource: "medication", ID: "123"}

	assert.Equal(t, "medication not found: 123", err.Error())
	assert.True(t, IsNotFound(err))
}

func TestIsNotFoundFalse(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(assert.AnError))
}

func TestReadingsKey(t *testing.T) {
	assert.Equal(t, "readings/bp", ReadingsKey(health.KindBloodPressure))
	assert.Equal(t, "readings/glucose", ReadingsKey(health.KindGlucose))
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	var p health.Patient
	ok, err := kv.Load(ctx, KeyPatient, &p)
	require.NoError(t, err)
	assert.False(t, ok)

	want := health.Patient{ID: "P1", DisplayName: "Jane Doe", Gender: health.GenderFemale, BirthYear: 1958}
	require.NoError(t, kv.Save(ctx, KeyPatient, want))

	ok, err = kv.Load(ctx, KeyPatient, &p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, p)

	require.NoError(t, kv.Delete(ctx, KeyPatient))
	err = Get(ctx, kv, KeyPatient, &p)
	assert.True(t, IsNotFound(err))
}

func TestMemoryKVBadValue(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	require.NoError(t, kv.Save(ctx, "k", "text"))
	var n int
	ok, err := kv.Load(ctx, "k", &n)
	assert.True(t, ok)
	assert.Error(t, err)

	assert.Error(t, kv.Save(ctx, "k", make(chan int)))
}

func TestKVRepository(t *testing.T) {
	kv := NewMemoryKV()
	repo := kv.Readings(health.KindGlucose)
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

	rs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)

	first := health.Glucose{Timestamp: now, Value: 101.5, Timing: health.TimingFasting}
	second := health.Glucose{Timestamp: now.Add(time.Hour), Value: 150, Timing: health.TimingPostPrandial, MedicationTaken: true}
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	rs, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []health.Reading{first, second}, rs)

	require.NoError(t, repo.ReplaceAll(ctx, nil))
	rs, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestKVRepositoryLegacyRecords(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	legacy := []map[string]any{
		{"dateTime": "2026-10-01T08:00:00Z", "systolic": 130, "diastolic": 85, "pulse": 70, "medicationTaken": true},
	}
	require.NoError(t, kv.Save(ctx, ReadingsKey(health.KindBloodPressure), legacy))

	rs, err := kv.Readings(health.KindBloodPressure).List(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, health.BloodPressure{
		Timestamp:       time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		Systolic:        130,
		Diastolic:       85,
		Pulse:           70,
		MedicationTaken: true,
	}, rs[0])
}

type brokenKV struct{ *MemoryKV }

func (b *brokenKV) Save(context.Context, string, any) error {
	return errors.New("disk full")
}

func TestKVRepositorySaveError(t *testing.T) {
	repo := NewKVRepository(&brokenKV{MemoryKV: NewMemoryKV()}, health.KindGlucose)

	err := repo.Append(context.Background(), health.Glucose{Timestamp: time.Now(), Value: 100, Timing: health.TimingOther})
	assert.ErrorContains(t, err, "disk full")
}
