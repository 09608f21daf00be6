package upstream

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quotagate"
)

func response(code int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: code,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFromResponse_Success(t *testing.T) {
	assert.NoError(t, FromResponse(response(http.StatusOK, "ok", nil)))
	assert.NoError(t, FromResponse(response(http.StatusNoContent, "", nil)))
}

func TestFromResponse_TooManyRequests(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")

	err := FromResponse(response(http.StatusTooManyRequests, "  slow down\n", h))
	require.Error(t, err)

	assert.ErrorIs(t, err, quotagate.ErrUpstreamRateLimited)
	assert.True(t, quotagate.DefaultClassifier{}.IsRateLimit(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode())
	assert.Equal(t, "slow down", se.Body)
	assert.Equal(t, 30*time.Second, se.RetryAfter)
	assert.Equal(t, "upstream: status 429: slow down", se.Error())
}

func TestFromResponse_ServerError(t *testing.T) {
	err := FromResponse(response(http.StatusInternalServerError, "", nil))
	require.Error(t, err)

	assert.NotErrorIs(t, err, quotagate.ErrUpstreamRateLimited)
	assert.False(t, quotagate.DefaultClassifier{}.IsRateLimit(err))
	assert.Equal(t, "upstream: status 500", err.Error())
}

func TestFromResponse_TruncatesBody(t *testing.T) {
	err := FromResponse(response(http.StatusBadRequest, strings.Repeat("x", 4096), nil))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Body, maxErrorBody)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative seconds", "-5", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}
