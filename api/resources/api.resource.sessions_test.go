// FilePath: api/resources/api.resource.sessions_test.go
package resources

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantio/aquahub/internal/models"
)

func TestDecodeEventFilter(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet,
		"/sessions/vds_1/events?kind=error_occurred&kind=session_failed&limit=25&offset=5&from=2026-01-10T00:00:00Z&to=2026-01-11T12:30:00Z", nil)
	require.NoError(t, err)

	filter, err := decodeEventFilter(r)
	require.NoError(t, err)
	assert.Equal(t, []models.EventKind{models.EventErrorOccurred, models.EventSessionFailed}, filter.Kinds)
	assert.Equal(t, 25, filter.Limit)
	assert.Equal(t, 5, filter.Offset)
	require.NotNil(t, filter.From)
	assert.True(t, filter.From.Equal(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, filter.To)
	assert.True(t, filter.To.Equal(time.Date(2026, 1, 11, 12, 30, 0, 0, time.UTC)))
}

func TestDecodeEventFilterDefaults(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/sessions/vds_1/events", nil)
	require.NoError(t, err)

	filter, err := decodeEventFilter(r)
	require.NoError(t, err)
	assert.Empty(t, filter.Kinds)
	assert.Nil(t, filter.From)
	assert.Nil(t, filter.To)
}

func TestDecodeEventFilterRejectsUnknownKind(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/sessions/vds_1/events?kind=explosion", nil)
	require.NoError(t, err)

	_, err = decodeEventFilter(r)
	assert.Error(t, err)
}

func TestDecodeEventFilterRejectsBadDates(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/sessions/vds_1/events?from=yesterday", nil)
	require.NoError(t, err)
	_, err = decodeEventFilter(r)
	assert.Error(t, err)

	r, err = http.NewRequest(http.MethodGet, "/sessions/vds_1/events?to=2026-01-11", nil)
	require.NoError(t, err)
	_, err = decodeEventFilter(r)
	assert.Error(t, err)
}
