package apiserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddlewareRecoversPanics(t *testing.T) {
	handler := loggingMiddleware(logrus.WithField("test", t.Name()))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/locaties", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingMiddlewarePassesStatusThrough(t *testing.T) {
	handler := loggingMiddleware(logrus.WithField("test", t.Name()))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/locaties?search=spui", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
