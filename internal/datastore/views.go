// views.go: read-only view assembly for the dashboard facade. These
// functions compose stored entities at query time and never mutate them.
package datastore

import (
	"time"

	"github.com/isotrace/isotrace-go/internal/summary"
)

// SessionOverview is one row of the latest-sessions view: session core
// fields joined with its summary and plot counts.
type SessionOverview struct {
	SessionID           string             `json:"session_id"`
	SampleFile          string             `json:"sample_file"`
	BackgroundFile      string             `json:"background_file,omitempty"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	AnalyzedAt          time.Time          `json:"analyzed_at"`
	TotalMassGrams      float64            `json:"total_mass_grams"`
	TotalDetections     int                `json:"total_detections"`
	UniqueIsotopes      int                `json:"unique_isotopes"`
	DominantIsotope     string             `json:"dominant_isotope,omitempty"`
	MassDistribution    map[string]float64 `json:"mass_distribution,omitempty"`
	PlotCount           int                `json:"plot_count"`
	ROIPlotCount        int                `json:"roi_plot_count"`
}

// DetectionResult is one row of the detection-results view: a detection
// joined with the matching mass estimate when one exists. The estimate
// columns are nil for detections without a mass estimate.
type DetectionResult struct {
	ParentIsotope           string   `json:"parent_isotope"`
	DaughterIsotope         string   `json:"daughter_isotope"`
	EnergyKeV               float64  `gorm:"column:energy_kev" json:"energy_kev"`
	Counts                  float64  `json:"counts"`
	CountsUncertainty       float64  `json:"counts_uncertainty"`
	RelativeUncertainty     *float64 `json:"relative_uncertainty"`
	MassGrams               *float64 `json:"mass_grams"`
	MassUncertainty         *float64 `json:"mass_uncertainty"`
	RelativeMassUncertainty *float64 `json:"relative_mass_uncertainty"`
}

// PlotCatalogEntry is one row of the plot catalog: artifact metadata and
// payload size, never the payload itself.
type PlotCatalogEntry struct {
	ID        uint      `json:"id"`
	PlotType  string    `json:"plot_type"`
	Title     string    `json:"title"`
	Isotope   *string   `json:"isotope"`
	EnergyKeV *float64  `gorm:"column:energy_kev" json:"energy_kev"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// plotTypeOrder fixes the catalog's primary sort: overview first, then
// mass distribution, uncertainty and region-of-interest plots.
const plotTypeOrder = "CASE plot_type " +
	"WHEN 'overview' THEN 0 " +
	"WHEN 'mass_distribution' THEN 1 " +
	"WHEN 'uncertainty' THEN 2 " +
	"WHEN 'roi' THEN 3 ELSE 4 END"

// GetLatestSessions returns session overviews ordered by analysis
// timestamp descending.
func (ds *DataStore) GetLatestSessions(limit, offset int) ([]SessionOverview, error) {
	var sessions []AnalysisSession
	err := ds.DB.Preload("Summary").
		Order("analyzed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, dbError(err, "latest sessions", "")
	}
	if len(sessions) == 0 {
		return []SessionOverview{}, nil
	}

	sessionRefs := make([]uint, 0, len(sessions))
	for i := range sessions {
		sessionRefs = append(sessionRefs, sessions[i].ID)
	}

	var plotCounts []struct {
		SessionRef uint
		PlotCount  int
		ROICount   int
	}
	err = ds.DB.Model(&AnalysisPlot{}).
		Select("session_ref, COUNT(*) AS plot_count, "+
			"SUM(CASE WHEN plot_type = 'roi' THEN 1 ELSE 0 END) AS roi_count").
		Where("session_ref IN ?", sessionRefs).
		Group("session_ref").
		Scan(&plotCounts).Error
	if err != nil {
		return nil, dbError(err, "latest sessions plot counts", "")
	}
	countsByRef := make(map[uint]struct{ plots, roi int }, len(plotCounts))
	for _, pc := range plotCounts {
		countsByRef[pc.SessionRef] = struct{ plots, roi int }{pc.PlotCount, pc.ROICount}
	}

	overviews := make([]SessionOverview, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		overview := SessionOverview{
			SessionID:           s.SessionID,
			SampleFile:          s.SampleFile,
			BackgroundFile:      s.BackgroundFile,
			ConfidenceThreshold: s.ConfidenceThreshold,
			AnalyzedAt:          s.AnalyzedAt,
			PlotCount:           countsByRef[s.ID].plots,
			ROIPlotCount:        countsByRef[s.ID].roi,
		}
		if s.Summary != nil {
			overview.TotalMassGrams = s.Summary.TotalMassGrams
			overview.TotalDetections = s.Summary.TotalDetections
			overview.UniqueIsotopes = s.Summary.UniqueIsotopes
			overview.DominantIsotope = s.Summary.DominantIsotope
			distribution, err := summary.UnmarshalDistribution(s.Summary.MassDistribution)
			if err != nil {
				return nil, dbError(err, "latest sessions distribution", "", "session_id", s.SessionID)
			}
			overview.MassDistribution = distribution
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// GetDetectionResults returns one row per detection of a session, outer
// joined with the mass estimate for the same parent isotope.
func (ds *DataStore) GetDetectionResults(sessionID string) ([]DetectionResult, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	var results []DetectionResult
	err = ds.DB.Table("isotope_detections").
		Select("isotope_detections.parent_isotope AS parent_isotope, "+
			"isotope_detections.daughter_isotope AS daughter_isotope, "+
			"isotope_detections.energy_kev AS energy_kev, "+
			"isotope_detections.counts AS counts, "+
			"isotope_detections.counts_uncertainty AS counts_uncertainty, "+
			"isotope_detections.relative_uncertainty AS relative_uncertainty, "+
			"mass_estimates.mass_grams AS mass_grams, "+
			"mass_estimates.mass_uncertainty AS mass_uncertainty, "+
			"mass_estimates.relative_uncertainty AS relative_mass_uncertainty").
		Joins("LEFT JOIN mass_estimates ON mass_estimates.session_ref = isotope_detections.session_ref "+
			"AND mass_estimates.parent_isotope = isotope_detections.parent_isotope").
		Where("isotope_detections.session_ref = ?", session.ID).
		Order("isotope_detections.parent_isotope, isotope_detections.energy_kev").
		Scan(&results).Error
	if err != nil {
		return nil, dbError(err, "detection results", "", "session_id", sessionID)
	}
	return results, nil
}

// GetPlotCatalog lists a session's plots in fixed type order, then by
// ROI isotope and energy with nulls last, exposing payload size only.
func (ds *DataStore) GetPlotCatalog(sessionID string) ([]PlotCatalogEntry, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	var entries []PlotCatalogEntry
	err = ds.DB.Model(&AnalysisPlot{}).
		Select("id, plot_type, title, isotope, energy_kev, "+
			"LENGTH(payload) AS size_bytes, created_at").
		Where("session_ref = ?", session.ID).
		Order(plotTypeOrder + ", isotope IS NULL, isotope, energy_kev IS NULL, energy_kev").
		Scan(&entries).Error
	if err != nil {
		return nil, dbError(err, "plot catalog", "", "session_id", sessionID)
	}
	return entries, nil
}

// GetPlot retrieves one plot artifact with its payload for serving.
func (ds *DataStore) GetPlot(sessionID string, plotID uint) (AnalysisPlot, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return AnalysisPlot{}, err
	}

	var plot AnalysisPlot
	err = ds.DB.Where("session_ref = ? AND id = ?", session.ID, plotID).First(&plot).Error
	if err != nil {
		if errorsIsNotFound(err) {
			return AnalysisPlot{}, notFoundError("plot", sessionID)
		}
		return AnalysisPlot{}, dbError(err, "get plot", "", "session_id", sessionID)
	}
	return plot, nil
}
