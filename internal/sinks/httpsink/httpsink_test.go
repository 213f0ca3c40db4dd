package httpsink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowcore/internal/sinkpipeline"
	"flowcore/pkg/retry"
)

func TestClassifyHTTPResponseSuccess(t *testing.T) {
	outcome, err := ClassifyHTTPResponse(httpResponse{statusCode: 204}, nil)
	require.Equal(t, retry.Successful, outcome)
	require.NoError(t, err)
}

func TestClassifyHTTPResponseRetryable(t *testing.T) {
	for _, code := range []int{408, 429, 500, 503} {
		outcome, err := ClassifyHTTPResponse(httpResponse{statusCode: code}, nil)
		require.Equal(t, retry.Retryable, outcome, "code %d", code)
		require.Error(t, err)
	}
}

func TestClassifyHTTPResponseRejected(t *testing.T) {
	outcome, err := ClassifyHTTPResponse(httpResponse{statusCode: 400}, nil)
	require.Equal(t, retry.Rejected, outcome)
	require.Error(t, err)
}

func TestClassifyHTTPResponseTransportError(t *testing.T) {
	outcome, err := ClassifyHTTPResponse(nil, context.DeadlineExceeded)
	require.Equal(t, retry.Retryable, outcome)
	require.Error(t, err)
}

func TestSinkTransportPostsBody(t *testing.T) {
	var gotMethod, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := New(Config{
		URL:     srv.URL,
		Auth:    Auth{Type: AuthBearer, Token: "xyz"},
		Timeout: time.Second,
	})
	require.NoError(t, err)

	resp, err := s.transport(context.Background(), sinkpipeline.Request{Key: "default", Body: []byte("hello")})
	require.NoError(t, err)
	hr := resp.(httpResponse)
	require.Equal(t, 204, hr.statusCode)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "Bearer xyz", gotAuth)
}

func TestHealthcheckSucceedsAgainstLiveServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, s.Healthcheck(context.Background()))
}
