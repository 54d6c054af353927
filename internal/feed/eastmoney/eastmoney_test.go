// internal/feed/eastmoney/eastmoney_test.go
package eastmoney

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed"
)

var _ feed.PriceFeed = (*Eastmoney)(nil)

func TestSecid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"600519.SH", "1.600519"}, // Shanghai = 1
		{"600519.ss", "1.600519"},
		{"000001.SZ", "0.000001"}, // Shenzhen = 0
	}
	for _, tc := range tests {
		got, err := secid(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"AAPL", "0700.HK", "ABC.SH", ".SZ"} {
		_, err := secid(bad)
		assert.True(t, errors.Is(err, core.ErrSymbolNotFound), bad)
	}
}

func TestFetchHistory(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"data":{"code":"600519","name":"贵州茅台","klines":[
			"2024-01-03,1700.00,1712.50,1720.00,1695.00,25000,0",
			"2024-01-02,1685.00,1705.00,1710.00,1680.00,30000,0",
			"garbage",
			"2024-01-04,1712.50,0,1712.50,1712.50,0,0"
		]}}`))
	}))
	defer srv.Close()

	e := New(WithBaseURL(srv.URL))
	series, err := e.FetchHistory(context.Background(), "600519.SH",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, query, "secid=1.600519")
	assert.Contains(t, query, "beg=20240101")
	assert.Contains(t, query, "end=20240105")
	assert.Equal(t, "CNY", series.Currency)
	require.Len(t, series.Bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), series.Bars[0].Time)
	assert.Equal(t, 1705.0, series.Bars[0].Close)
	assert.Equal(t, 1712.5, series.Bars[1].Close)
	assert.Equal(t, int64(25000), series.Bars[1].Volume)
}

func TestFetchHistory_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unknown code", http.StatusOK, `{"data":null}`, core.ErrSymbolNotFound},
		{"server error", http.StatusInternalServerError, ``, core.ErrFeedFailed},
		{"bad json", http.StatusOK, `{"data":`, core.ErrFeedFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(WithBaseURL(srv.URL)).FetchHistory(context.Background(), "000001.SZ", time.Now().AddDate(0, 0, -7), time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
