package sessions

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Desarso/chatrelay/models"
)

func TestSSEFrameWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEFrameWriter(rec)

	require.NoError(t, w.Open())
	require.NoError(t, w.WriteFrame(models.ContentFrame("€")))
	require.NoError(t, w.WriteFrame(models.DoneFrame()))
	require.NoError(t, w.Close())

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		"data: {\"type\":\"content\",\"content\":\"€\"}\n\ndata: {\"type\":\"done\"}\n\n",
		rec.Body.String())

	assert.Error(t, w.WriteFrame(models.DoneFrame()), "writes after Close must fail")
}
