package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	return NewServer(Config{
		ServiceName: "pipeline-test",
		Version:     "1.2.3",
		Commit:      "abc1234",
	})
}

func TestHandleHealthReportsBuildInfo(t *testing.T) {
	srv := newTestServer()
	recorder := httptest.NewRecorder()

	srv.handleHealth(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var response HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "pipeline-test", response.Service)
	assert.Equal(t, "1.2.3", response.Version)
	assert.Equal(t, "abc1234", response.Commit)
}

func TestHandleStatusTracksStages(t *testing.T) {
	srv := newTestServer()

	status := func() StatusResponse {
		recorder := httptest.NewRecorder()
		srv.handleStatus(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, recorder.Code)
		var response StatusResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		return response
	}

	initial := status()
	assert.Equal(t, "starting", initial.Stage)
	assert.False(t, initial.Done)

	srv.SetStage("simulate")
	assert.Equal(t, "simulate", status().Stage)

	srv.SetDone()
	final := status()
	assert.True(t, final.Done)
	assert.Equal(t, "complete", final.Stage)
	assert.NotEmpty(t, final.Finished)
}

func TestHandleLive(t *testing.T) {
	recorder := httptest.NewRecorder()
	newTestServer().handleLive(recorder, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}
