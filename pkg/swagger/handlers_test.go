package swagger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *mux.Router {
	router := mux.NewRouter()
	NewHandlers().RegisterRoutes(router)
	return router
}

func TestRouteIntegration(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name                 string
		path                 string
		expectedContentType  string
		expectedBodyContains []string
	}{
		{
			name:                 "YAML spec",
			path:                 "/openapi.yaml",
			expectedContentType:  "application/x-yaml",
			expectedBodyContains: []string{"openapi: 3.0.3", "/api/v1/telemetry"},
		},
		{
			name:                 "JSON spec",
			path:                 "/openapi.json",
			expectedContentType:  "application/json",
			expectedBodyContains: []string{`"openapi":"3.0.3"`, `"paths"`},
		},
		{
			name:                 "Swagger UI",
			path:                 "/swagger-ui",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"<!DOCTYPE html>", "FunnelPulse API - Swagger UI", "/openapi.yaml"},
		},
		{
			name:                 "API docs alias",
			path:                 "/api-docs",
			expectedContentType:  "text/html; charset=utf-8",
			expectedBodyContains: []string{"SwaggerUIBundle", "funnelpulse_admin_token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedContentType, w.Header().Get("Content-Type"))
			for _, expected := range tt.expectedBodyContains {
				assert.Contains(t, w.Body.String(), expected)
			}
		})
	}
}

func TestServeOpenAPISpec_CORS(t *testing.T) {
	router := newRouter()

	for _, path := range []string{"/openapi.yaml", "/openapi.json"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

func TestServeOpenAPISpecJSON_Document(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		OpenAPI string                            `json:"openapi"`
		Info    map[string]interface{}            `json:"info"`
		Paths   map[string]map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "FunnelPulse API", doc.Info["title"])
	for _, path := range []string{
		"/api/v1/telemetry",
		"/api/v1/metrics/aggregate",
		"/api/v1/metrics/daily/{date}",
		"/api/v1/metrics",
		"/api/v1/metrics/trends",
		"/api/v1/metrics/export",
		"/api/v1/alerts",
		"/api/v1/alerts/history",
		"/api/v1/alerts/{id}/acknowledge",
	} {
		assert.Contains(t, doc.Paths, path)
	}
	assert.Contains(t, doc.Paths["/api/v1/telemetry"], "post")
}

func TestYAMLToJSON(t *testing.T) {
	out, err := yamlToJSON([]byte("a: 1\nb:\n  - x\n  - y\n\"200\": ok\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x","y"],"200":"ok"}`, string(out))

	_, err = yamlToJSON([]byte("a: [unterminated"))
	assert.Error(t, err)
}

func TestRegisterRoutes_MethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
