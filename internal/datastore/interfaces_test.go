// interfaces_test.go: tests for write paths, derivation and ownership.
package datastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/isotrace/isotrace-go/internal/errors"
	"github.com/isotrace/isotrace-go/internal/summary"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DataStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&AnalysisSession{},
		&IsotopeDetection{},
		&MassEstimate{},
		&AnalysisSummary{},
		&AnalysisPlot{},
	)
	require.NoError(t, err)

	return &DataStore{DB: db}
}

// newTestSession builds a valid session record for tests
func newTestSession(sample string) *AnalysisSession {
	return &AnalysisSession{
		SessionID:           uuid.NewString(),
		SampleFile:          sample,
		BackgroundFile:      "background.spe",
		ConfidenceThreshold: 0.95,
		AnalyzedAt:          time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC),
		PeaksFound:          12,
		BackgroundPeaks:     4,
	}
}

func TestSaveAnalysisDerivesAndSummarizes(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("sample-001.spe")
	detections := []IsotopeDetection{
		{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 10000, CountsUncertainty: 100},
		{ParentIsotope: "Co-60", DaughterIsotope: "Ni-60", EnergyKeV: 1173.2, Counts: 0, CountsUncertainty: 0},
	}
	estimates := []MassEstimate{
		{ParentIsotope: "Cs-137", MassGrams: 0.002, MassUncertainty: 0.0001},
		{ParentIsotope: "Co-60", MassGrams: 0.001, MassUncertainty: 0.00005},
	}

	require.NoError(t, ds.SaveAnalysis(session, detections, estimates, nil))

	stored, err := ds.GetDetections(session.SessionID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Co-60 peak has zero counts: relative uncertainty is undefined.
	for i := range stored {
		switch stored[i].ParentIsotope {
		case "Cs-137":
			require.NotNil(t, stored[i].RelativeUncertainty)
			assert.InDelta(t, 0.01, *stored[i].RelativeUncertainty, 1e-12)
		case "Co-60":
			assert.Nil(t, stored[i].RelativeUncertainty)
		}
	}

	storedEstimates, err := ds.GetMassEstimates(session.SessionID)
	require.NoError(t, err)
	require.Len(t, storedEstimates, 2)
	for i := range storedEstimates {
		if storedEstimates[i].ParentIsotope == "Cs-137" {
			require.NotNil(t, storedEstimates[i].RelativeUncertainty)
			assert.Equal(t, 0.05, *storedEstimates[i].RelativeUncertainty)
		}
	}

	stats, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)
	assert.InDelta(t, 0.003, stats.TotalMassGrams, 1e-12)
	assert.Equal(t, 2, stats.TotalDetections)
	assert.Equal(t, 2, stats.UniqueIsotopes)
	assert.Equal(t, "Cs-137", stats.DominantIsotope)

	distribution, err := summary.UnmarshalDistribution(stats.MassDistribution)
	require.NoError(t, err)
	assert.InDelta(t, 0.667, distribution["Cs-137"], 0.001)
	assert.InDelta(t, 0.333, distribution["Co-60"], 0.001)
}

func TestSaveAnalysisRejectsInvalidSession(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	tests := []struct {
		name   string
		mutate func(*AnalysisSession)
	}{
		{"zero threshold", func(s *AnalysisSession) { s.ConfidenceThreshold = 0 }},
		{"threshold above one", func(s *AnalysisSession) { s.ConfidenceThreshold = 1.01 }},
		{"empty sample", func(s *AnalysisSession) { s.SampleFile = "" }},
		{"empty session id", func(s *AnalysisSession) { s.SessionID = "" }},
		{"zero timestamp", func(s *AnalysisSession) { s.AnalyzedAt = time.Time{} }},
		{"negative peaks", func(s *AnalysisSession) { s.PeaksFound = -1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			session := newTestSession("bad.spe")
			tt.mutate(session)
			err := ds.SaveAnalysis(session, nil, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSaveAnalysisBatchAtomicity(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("atomic.spe")
	detections := []IsotopeDetection{
		{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 100, CountsUncertainty: 10},
		{ParentIsotope: "Co-60", DaughterIsotope: "Ni-60", EnergyKeV: -5, Counts: 100, CountsUncertainty: 10},
	}

	err := ds.SaveAnalysis(session, detections, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	// Nothing partially committed, not even the session row.
	count, err := ds.CountSessions()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDetectionBatchRejectsDuplicatePeak(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("dup-peak.spe")
	duplicate := []IsotopeDetection{
		{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 100, CountsUncertainty: 10},
		{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 200, CountsUncertainty: 20},
	}

	err := ds.SaveAnalysis(session, duplicate, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestAppendMassEstimateDuplicateIsotopeRejected(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("dup-estimate.spe")
	require.NoError(t, ds.SaveAnalysis(session, nil,
		[]MassEstimate{{ParentIsotope: "Cs-137", MassGrams: 0.002, MassUncertainty: 0.0001}}, nil))

	err := ds.AppendMassEstimates(session.SessionID,
		[]MassEstimate{{ParentIsotope: "Cs-137", MassGrams: 0.5, MassUncertainty: 0.01}})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "expected conflict error, got %v", err)

	// The original record remains unchanged.
	estimates, err := ds.GetMassEstimates(session.SessionID)
	require.NoError(t, err)
	require.Len(t, estimates, 1)
	assert.Equal(t, 0.002, estimates[0].MassGrams)
}

func TestAppendDetectionsRecomputesSummary(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("append.spe")
	require.NoError(t, ds.SaveAnalysis(session,
		[]IsotopeDetection{{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 100, CountsUncertainty: 10}},
		nil, nil))

	before, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, before.TotalDetections)

	require.NoError(t, ds.AppendDetections(session.SessionID, []IsotopeDetection{
		{ParentIsotope: "Co-60", DaughterIsotope: "Ni-60", EnergyKeV: 1173.2, Counts: 50, CountsUncertainty: 5},
		{ParentIsotope: "Co-60", DaughterIsotope: "Ni-60", EnergyKeV: 1332.5, Counts: 45, CountsUncertainty: 5},
	}))

	after, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.TotalDetections)
}

func TestAppendToUnknownSession(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	err := ds.AppendDetections("no-such-session", []IsotopeDetection{
		{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 1, CountsUncertainty: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAppendPlotValidation(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("plots.spe")
	require.NoError(t, ds.SaveAnalysis(session, nil, nil, nil))

	err := ds.AppendPlot(session.SessionID, &AnalysisPlot{
		PlotType: "histogram",
		Title:    "not a known type",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	// ROI plots require isotope and energy metadata.
	err = ds.AppendPlot(session.SessionID, &AnalysisPlot{
		PlotType: PlotROI,
		Title:    "missing metadata",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	isotope := "Cs-137"
	energy := 661.7
	require.NoError(t, ds.AppendPlot(session.SessionID, &AnalysisPlot{
		PlotType:  PlotROI,
		Title:     "Cs-137 661.7 keV",
		Payload:   []byte{0x89, 0x50, 0x4e, 0x47},
		Isotope:   &isotope,
		EnergyKeV: &energy,
	}))
}

func TestDeleteSessionCascades(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("cascade.spe")
	isotope := "Cs-137"
	energy := 661.7
	require.NoError(t, ds.SaveAnalysis(session,
		[]IsotopeDetection{{ParentIsotope: "Cs-137", DaughterIsotope: "Ba-137m", EnergyKeV: 661.7, Counts: 100, CountsUncertainty: 10}},
		[]MassEstimate{{ParentIsotope: "Cs-137", MassGrams: 0.002, MassUncertainty: 0.0001}},
		[]AnalysisPlot{{PlotType: PlotROI, Title: "roi", Isotope: &isotope, EnergyKeV: &energy}}))

	require.NoError(t, ds.DeleteSession(session.SessionID))

	_, err := ds.GetSession(session.SessionID)
	assert.True(t, errors.IsNotFound(err))

	// Child tables hold nothing for the deleted session.
	for _, model := range []any{&IsotopeDetection{}, &MassEstimate{}, &AnalysisPlot{}, &AnalysisSummary{}} {
		var count int64
		require.NoError(t, ds.DB.Model(model).Count(&count).Error)
		assert.Zero(t, count, fmt.Sprintf("%T rows survived cascade", model))
	}

	// And the session no longer shows up in cross-session aggregates.
	frequencies, err := ds.GetIsotopeFrequency()
	require.NoError(t, err)
	assert.Empty(t, frequencies)
}

func TestRecomputeSummariesIdempotent(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("recompute.spe")
	require.NoError(t, ds.SaveAnalysis(session, nil,
		[]MassEstimate{
			{ParentIsotope: "Cs-137", MassGrams: 0.002, MassUncertainty: 0.0001},
			{ParentIsotope: "Co-60", MassGrams: 0.001, MassUncertainty: 0.00005},
		}, nil))

	before, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)

	processed, err := ds.RecomputeSummaries()
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	after, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, before.TotalMassGrams, after.TotalMassGrams)
	assert.Equal(t, before.DominantIsotope, after.DominantIsotope)
	assert.Equal(t, before.MassDistribution, after.MassDistribution)
}

func TestGetSummaryTracksEstimateSum(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	session := newTestSession("tracking.spe")
	require.NoError(t, ds.SaveAnalysis(session, nil,
		[]MassEstimate{{ParentIsotope: "U-238", MassGrams: 1.5, MassUncertainty: 0.1}}, nil))

	require.NoError(t, ds.AppendMassEstimates(session.SessionID,
		[]MassEstimate{{ParentIsotope: "U-235", MassGrams: 0.5, MassUncertainty: 0.05}}))

	stats, err := ds.GetSummary(session.SessionID)
	require.NoError(t, err)

	estimates, err := ds.GetMassEstimates(session.SessionID)
	require.NoError(t, err)
	var sum float64
	for i := range estimates {
		sum += estimates[i].MassGrams
	}
	assert.Equal(t, sum, stats.TotalMassGrams)
}
