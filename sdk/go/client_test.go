package sitepulsesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsRequestsUnderBasePath(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"labels":["a"],"marks":[{"position":1,"state":"completed"}],"progress":{"id":"b1","current_step":1,"total_steps":10,"actual_percent":10,"status":"OnPlan"},"transition":{"from":0,"to":1}}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	pkg, err := c.CompletePackageStep(context.Background(), "b 1", 1, "2024-01-05", "")
	require.NoError(t, err)
	assert.Equal(t, "POST /v0/packages/b 1/steps/1/complete", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "2024-01-05", gotBody["date"])
	assert.Equal(t, 10, pkg.Progress.ActualPercent)
	require.NotNil(t, pkg.Transition)
	assert.Equal(t, 1, pkg.Transition.To)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"invalid_transition","message":"bidding step 6 -> 2: backward step move not allowed"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).MovePackageStep(context.Background(), "b1", 2)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "code=invalid_transition")
}
