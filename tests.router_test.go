package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestRouter builds the full router on top of a bolt backend stored in a temporary folder.
func newTestRouter(t *testing.T, config *Config) (*httprouter.Router, *APIHandler) {
	t.Helper()
	client, err := GetBoltDBClient(filepath.Join(t.TempDir(), "library.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	config.Storage.Driver = BoltDriver
	backend := &Backend{logger: zap.NewNop(), driver: BoltDriver, bolt: client, pinger: &boltPinger{client: client}}
	api := NewAPIHandler(zap.NewNop(), config, &Statistics{started: time.Now()}, NewClock(false), NewIDsHandler(), backend.pinger)
	require.NoError(t, RegisterResource[Client](api, backend, nil, "cliente", ClientsCollection, ClientIDPrefix))
	require.NoError(t, RegisterResource[Author](api, backend, nil, "autor", AuthorsCollection, AuthorIDPrefix))
	require.NoError(t, RegisterResource[Book](api, backend, nil, "livro", BooksCollection, BookIDPrefix))
	require.NoError(t, RegisterResource[Loan](api, backend, nil, "emprestimo", LoansCollection, LoanIDPrefix))
	require.NoError(t, RegisterResource[Fine](api, backend, nil, "multa", FinesCollection, FineIDPrefix))

	public, ops := api.MiddlewaresStacks()
	router := api.SetupRoutes(httprouter.New(), &MiddlewareMap{public: public.Chain, ops: ops.Chain})
	return router, api
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

// TestSetupRoutes ensures all expected endpoints are implemented.
func TestSetupRoutes(t *testing.T) {
	router, _ := newTestRouter(t, DefaultConfig())
	type routeCase struct {
		name        string
		method      string
		path        string
		implemented bool
	}
	testCases := []routeCase{
		{"index endpoint", http.MethodGet, "/", true},
		{"status endpoint", http.MethodGet, "/status", true},
		{"docs endpoint", http.MethodGet, "/api-docs/doc.json", true},
		{"invalid endpoint", http.MethodGet, "/v1", false},
		{"invalid resource endpoint", http.MethodGet, "/livros", false},
		{"ops endpoints disabled", http.MethodGet, "/ops/stats", false},
	}
	docPath := "/x:cb8f2136-fae4-4200-85d9-3533c7f8c70d"
	for _, resource := range []string{"cliente", "autor", "livro", "emprestimo", "multa"} {
		testCases = append(testCases,
			routeCase{"create " + resource, http.MethodPost, "/" + resource, true},
			routeCase{"fetch all " + resource, http.MethodGet, "/" + resource, true},
			routeCase{"fetch one " + resource, http.MethodGet, "/" + resource + docPath, true},
			routeCase{"update " + resource, http.MethodPut, "/" + resource + docPath, true},
			routeCase{"delete " + resource, http.MethodDelete, "/" + resource + docPath, true},
		)
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(router, tc.method, tc.path, "")
			m := make(map[string]interface{})
			_ = json.Unmarshal(w.Body.Bytes(), &m)
			_, routeMissing := m["path"]
			assert.Equal(t, tc.implemented, !routeMissing, "status %d body %s", w.Code, w.Body.String())
		})
	}
}

// TestClientLifecycle runs a create, list, update, delete sequence over the whole stack.
func TestClientLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, DefaultConfig())

	w := serve(router, http.MethodPost, "/cliente", `{"nome":"Ana"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, strings.HasPrefix(created.ID, ClientIDPrefix+":"))
	assert.JSONEq(t, `{"_id":"`+created.ID+`","nome":"Ana"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(router, http.MethodGet, "/cliente", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"_id":"`+created.ID+`","nome":"Ana"}]`, w.Body.String())

	for i := 0; i < 2; i++ {
		w = serve(router, http.MethodPut, "/cliente/"+created.ID, `{"nome":"Ana Silva"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"_id":"`+created.ID+`","nome":"Ana Silva"}`, w.Body.String())
	}

	w = serve(router, http.MethodGet, "/cliente/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"_id":"`+created.ID+`","nome":"Ana Silva"}`, w.Body.String())

	w = serve(router, http.MethodDelete, "/cliente/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"_id":"`+created.ID+`","nome":"Ana Silva"}`, w.Body.String())

	w = serve(router, http.MethodGet, "/cliente", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = serve(router, http.MethodDelete, "/cliente/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPartialUpdate ensures fields omitted from the update payload are kept.
func TestPartialUpdate(t *testing.T) {
	router, _ := newTestRouter(t, DefaultConfig())

	w := serve(router, http.MethodPost, "/emprestimo", `{"cliente":"cl:1","livro":"bk:1","dataEmprestimo":"2024-03-01"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var loan Loan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))

	w = serve(router, http.MethodPut, "/emprestimo/"+loan.ID, `{"dataDevolucao":"2024-03-15T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"_id":"`+loan.ID+`","cliente":"cl:1","livro":"bk:1","dataEmprestimo":"2024-03-01","dataDevolucao":"2024-03-15T10:00:00Z"}`, w.Body.String())

	w = serve(router, http.MethodPut, "/emprestimo/"+loan.ID, `{"dataDevolucao":"15/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestNotFoundAsEmpty ensures updates and deletions of absent documents
// answer with a null body once configured so, or with legacy errors.
func TestNotFoundAsEmpty(t *testing.T) {
	testCases := []struct {
		name      string
		setup     func(c *Config)
		getStatus int
	}{
		{"not found as empty", func(c *Config) { c.API.NotFoundAsEmpty = true }, http.StatusNotFound},
		{"legacy errors", func(c *Config) { c.API.LegacyErrors = true }, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.setup(config)
			router, _ := newTestRouter(t, config)
			absent := "/multa/fn:cb8f2136-fae4-4200-85d9-3533c7f8c70d"

			w := serve(router, http.MethodPut, absent, `{"pago":true}`)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "null\n", w.Body.String())

			w = serve(router, http.MethodDelete, absent, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "null\n", w.Body.String())

			w = serve(router, http.MethodGet, absent, "")
			assert.Equal(t, tc.getStatus, w.Code)
		})
	}
}

// TestInvalidPayloads ensures malformed payloads never produce a 5xx.
func TestInvalidPayloads(t *testing.T) {
	router, _ := newTestRouter(t, DefaultConfig())
	testCases := []struct {
		path    string
		payload string
	}{
		{"/multa", `{"emprestimo":"ln:1","valor":-1}`},
		{"/multa", `{"emprestimo":"ln:1"}`},
		{"/multa", `{"emprestimo":"ln:1","valor":"dez"}`},
		{"/autor", `{"nome":"Machado","dataNascimento":"21 de junho"}`},
		{"/livro", `{"titulo":"x","anoPublicacao":1.5}`},
		{"/cliente", `not json`},
		{"/cliente", ``},
		{"/cliente", `{"nome":"Ana"} garbage`},
	}
	for _, tc := range testCases {
		w := serve(router, http.MethodPost, tc.path, tc.payload)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.path+" "+tc.payload)
		var apiErr APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
		assert.NotEmpty(t, apiErr.Message)
		assert.NotEmpty(t, apiErr.RequestID)
	}

	w := serve(router, http.MethodGet, "/cliente", "")
	assert.Equal(t, "[]\n", w.Body.String())

	w = serve(router, http.MethodGet, "/livro/au:cb8f2136-fae4-4200-85d9-3533c7f8c70d", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCoreRoutes ensures the index, docs and routing errors responses.
func TestCoreRoutes(t *testing.T) {
	router, _ := newTestRouter(t, DefaultConfig())

	t.Run("index", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, IndexMessage, w.Body.String())
	})

	t.Run("docs redirect", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/api-docs", "")
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "/api-docs/", w.Header().Get("Location"))
	})

	t.Run("swagger document", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/api-docs/doc.json", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "API Biblioteca")
		assert.Contains(t, w.Body.String(), "/emprestimo/{id}")
	})

	t.Run("unknown route", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/unknown", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		m := make(map[string]string)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.Equal(t, "route does not exist", m["message"])
		assert.Equal(t, "GET /unknown", m["path"])
		assert.NotEmpty(t, m["requestid"])
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := serve(router, http.MethodPatch, "/cliente", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		m := make(map[string]string)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.Equal(t, "PATCH /cliente", m["path"])
	})
}

// TestOpsRoutes ensures ops endpoints are served when enabled and stay
// reachable during maintenance.
func TestOpsRoutes(t *testing.T) {
	config := DefaultConfig()
	config.OpsEndpointsEnable = true
	router, _ := newTestRouter(t, config)

	for _, path := range []string{"/ops/configs", "/ops/stats", "/ops/health", "/ops/metrics", "/ops/debug/vars"} {
		w := serve(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := serve(router, http.MethodGet, "/ops/debug/pprof/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodGet, "/ops/maintenance?status=enable&msg=backup", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/cliente", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "backup")

	w = serve(router, http.MethodGet, "/ops/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, true, stats["maintenance"].(map[string]interface{})["enabled"])
	assert.Equal(t, BoltDriver, stats["storage.driver"])

	w = serve(router, http.MethodGet, "/ops/maintenance?status=disable", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, "/cliente", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
