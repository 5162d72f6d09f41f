// api_test.go: HTTP-level tests for the facade using an in-memory store.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/observability"
)

// setupTestAPI wires an echo instance, a SQLite store in a temp
// directory and the controller under test.
func setupTestAPI(t *testing.T) (*echo.Echo, *Controller) {
	t.Helper()

	settings := &conf.Settings{
		Output: conf.OutputSettings{
			SQLite: conf.SQLiteSettings{
				Enabled: true,
				Path:    filepath.Join(t.TempDir(), "test.db"),
			},
		},
		Engine: conf.EngineSettings{
			CacheTTL:        1,
			DefaultPageSize: 20,
			MaxPageSize:     200,
			Timezone:        "UTC",
		},
	}

	store := datastore.New(settings)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	e := echo.New()
	controller := New(e, store, settings, metrics)
	return e, controller
}

// doJSON issues a JSON request against the echo instance
func doJSON(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// createTestSession posts a session and returns its identifier
func createTestSession(t *testing.T, e *echo.Echo, sample string) string {
	t.Helper()

	rec := doJSON(t, e, http.MethodPost, "/api/v2/sessions", CreateSessionRequest{
		SampleFile:          sample,
		BackgroundFile:      "background.spe",
		ConfidenceThreshold: 0.95,
		AnalyzedAt:          time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC),
		PeaksFound:          10,
		BackgroundPeaks:     3,
		Detections: []DetectionRecord{
			{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 10000, CountsUncertainty: 100},
		},
		MassEstimates: []MassEstimateBody{
			{ParentIsotope: "Cs-137", MassGrams: 0.002, MassUncertainty: 0.0001},
			{ParentIsotope: "Co-60", MassGrams: 0.001, MassUncertainty: 0.00005},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])
	return resp["session_id"]
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	sessionID := createTestSession(t, e, "sample-001.spe")

	rec := doJSON(t, e, http.MethodGet, "/api/v2/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, sessionID, session.SessionID)
	assert.Equal(t, "sample-001.spe", session.SampleFile)
	assert.Equal(t, 0.95, session.ConfidenceThreshold)

	require.NotNil(t, session.Summary)
	assert.InDelta(t, 0.003, session.Summary.TotalMassGrams, 1e-12)
	assert.Equal(t, 1, session.Summary.TotalDetections)
	assert.Equal(t, 2, session.Summary.UniqueIsotopes)
	assert.Equal(t, "Cs-137", session.Summary.DominantIsotope)
}

func TestCreateSessionValidation(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	rec := doJSON(t, e, http.MethodPost, "/api/v2/sessions", CreateSessionRequest{
		SampleFile:          "bad.spe",
		ConfidenceThreshold: 1.5, // out of (0, 1]
		AnalyzedAt:          time.Now().UTC(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.NotEmpty(t, errResp.CorrelationID)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	rec := doJSON(t, e, http.MethodGet, "/api/v2/sessions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppendDuplicateEstimateConflicts(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	sessionID := createTestSession(t, e, "dup.spe")

	rec := doJSON(t, e, http.MethodPost, "/api/v2/sessions/"+sessionID+"/estimates",
		[]MassEstimateBody{{ParentIsotope: "Cs-137", MassGrams: 0.5, MassUncertainty: 0.01}})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestLatestSessionsPagination(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	for i := 0; i < 3; i++ {
		createTestSession(t, e, "page.spe")
	}

	rec := doJSON(t, e, http.MethodGet, "/api/v2/sessions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.Limit)
	require.NotNil(t, resp.NextOffset)
	assert.Equal(t, 2, *resp.NextOffset)
}

func TestDetectionResultsView(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	sessionID := createTestSession(t, e, "results.spe")

	rec := doJSON(t, e, http.MethodGet, "/api/v2/sessions/"+sessionID+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []datastore.DetectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Cs-137", results[0].ParentIsotope)
	require.NotNil(t, results[0].MassGrams)
	assert.Equal(t, 0.002, *results[0].MassGrams)
}

func TestPlotLifecycle(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	sessionID := createTestSession(t, e, "plots.spe")

	// ROI plot without metadata is rejected.
	rec := doJSON(t, e, http.MethodPost, "/api/v2/sessions/"+sessionID+"/plots",
		PlotUploadRequest{PlotType: "roi", Title: "missing metadata"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	isotope := "Cs-137"
	energy := 661.7
	rec = doJSON(t, e, http.MethodPost, "/api/v2/sessions/"+sessionID+"/plots",
		PlotUploadRequest{
			PlotType:  "roi",
			Title:     "Cs-137 661.7 keV",
			Payload:   []byte{0x89, 0x50, 0x4e, 0x47},
			Isotope:   &isotope,
			EnergyKeV: &energy,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]uint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, e, http.MethodGet, "/api/v2/sessions/"+sessionID+"/plots", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog []datastore.PlotCatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	require.Len(t, catalog, 1)
	assert.Equal(t, "roi", catalog[0].PlotType)
	assert.Equal(t, 4, catalog[0].SizeBytes)

	// Payload is served raw, not through the catalog.
	req := httptest.NewRequest(http.MethodGet,
		"/api/v2/sessions/"+sessionID+"/plots/"+strconv.Itoa(int(created["plot_id"])), nil)
	payloadRec := httptest.NewRecorder()
	e.ServeHTTP(payloadRec, req)
	require.Equal(t, http.StatusOK, payloadRec.Code)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, payloadRec.Body.Bytes())
}

func TestDeleteSessionRemovesAggregates(t *testing.T) {
	t.Parallel()
	e, _ := setupTestAPI(t)

	sessionID := createTestSession(t, e, "delete.spe")

	rec := doJSON(t, e, http.MethodDelete, "/api/v2/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/api/v2/analytics/isotopes/frequency", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var frequencies []datastore.IsotopeFrequency
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frequencies))
	assert.Empty(t, frequencies)
}
