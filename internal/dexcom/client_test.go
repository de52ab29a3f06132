package dexcom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/guardian-go/internal/health"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"valid timestamp", "Date(1705887600000)", 1705887600000},
		{"with zone offset", "Date(1234567890123-0500)", 1234567890123},
		{"with positive zone offset", "Date(1705887600000+0100)", 1705887600000},
		{"no Date wrapper", "1705887600000", 0},
		{"empty", "", 0},
		{"malformed", "Date(abc)", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTimestamp(tt.input))
		})
	}
}

func TestReadingArrow(t *testing.T) {
	assert.Equal(t, "^^", Reading{Trend: "DoubleUp"}.Arrow())
	assert.Equal(t, "-", Reading{Trend: "Flat"}.Arrow())
	assert.Equal(t, "\\", Reading{Trend: "FortyFiveDown"}.Arrow())
	assert.Equal(t, "?", Reading{Trend: "NotComputable"}.Arrow())
}

func TestReadingGlucose(t *testing.T) {
	g, err := Reading{WT: "Date(1705887600000)", Value: 142, Trend: "Flat"}.Glucose()
	require.NoError(t, err)
	assert.Equal(t, health.Glucose{
		Timestamp: time.UnixMilli(1705887600000).UTC(),
		Value:     142,
		Timing:    health.TimingOther,
	}, g)

	_, err = Reading{WT: "garbage", Value: 142}.Glucose()
	assert.True(t, health.IsValidationError(err))

	_, err = Reading{WT: "Date(1705887600000)", Value: 0}.Glucose()
	assert.Error(t, err)
}

func TestToGlucoseDropsInvalid(t *testing.T) {
	gs := ToGlucose([]Reading{
		{WT: "Date(1705887600000)", Value: 120},
		{WT: "", Value: 130},
		{WT: "Date(1705887900000)", Value: 125},
	})
	require.Len(t, gs, 2)
	assert.Equal(t, 125.0, gs[1].Value)
}

type fakeShare struct {
	auths    int
	fetches  int
	expireAt int
}

func (f *fakeShare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/General/AuthenticatePublisherAccount":
		f.auths++
		_ = json.NewEncoder(w).Encode("account-1")
	case "/General/LoginPublisherAccountById":
		_ = json.NewEncoder(w).Encode("session-1")
	case "/Publisher/ReadPublisherLatestGlucoseValues":
		f.fetches++
		if f.fetches == f.expireAt {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"Code":"SessionIdNotFound"}`))
			return
		}
		if r.URL.Query().Get("sessionId") != "session-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]Reading{
			{WT: "Date(1705887600000)", Value: 110, Trend: "Flat"},
			{WT: "Date(1705887900000)", Value: 118, Trend: "FortyFiveUp"},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, share *fakeShare) *Client {
	t.Helper()
	srv := httptest.NewServer(share)
	t.Cleanup(srv.Close)

	c := NewClient("user", "pass")
	c.BaseURL = srv.URL
	return c
}

func TestFetchGlucose(t *testing.T) {
	share := &fakeShare{}
	c := newTestClient(t, share)

	gs, err := c.FetchGlucose(context.Background(), 12, 60)
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.Equal(t, 110.0, gs[0].Value)
	assert.Equal(t, 1, share.auths)

	_, err = c.FetchGlucose(context.Background(), 12, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, share.auths)
}

func TestFetchRenewsExpiredSessionOnce(t *testing.T) {
	share := &fakeShare{expireAt: 2}
	c := newTestClient(t, share)

	_, err := c.FetchReadings(context.Background(), 12, 60)
	require.NoError(t, err)

	rs, err := c.FetchReadings(context.Background(), 12, 60)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
	assert.Equal(t, 2, share.auths)
}

func TestFetchGivesUpAfterRenewal(t *testing.T) {
	share := &fakeShare{expireAt: 1}
	c := newTestClient(t, share)

	_, err := c.FetchReadings(context.Background(), 12, 60)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, 1, share.auths)
}
