// model.go defines the data model for gamma-spectroscopy analysis records.
package datastore

import "time"

// AnalysisSession represents one completed analysis run over one sample.
// It is the root entity: detections, mass estimates, plots and the
// summary are owned by exactly one session and removed with it.
type AnalysisSession struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"uniqueIndex;not null;type:varchar(36)"` // external identifier, UUID

	SampleFile     string `gorm:"index:idx_sessions_sample;not null"`
	BackgroundFile string // optional, empty when no background spectrum was used

	// ConfidenceThreshold used by the upstream analyzer, in (0, 1].
	ConfidenceThreshold float64

	AnalyzedAt time.Time `gorm:"index:idx_sessions_analyzed_at"`

	// Peak counts reported by the upstream analyzer, consumed by daily rollups.
	PeaksFound      int
	BackgroundPeaks int

	Metadata string `gorm:"type:text"` // free-form producer metadata

	CreatedAt time.Time
	UpdatedAt time.Time

	Detections []IsotopeDetection `gorm:"foreignKey:SessionRef;constraint:OnDelete:CASCADE"`
	Estimates  []MassEstimate     `gorm:"foreignKey:SessionRef;constraint:OnDelete:CASCADE"`
	Plots      []AnalysisPlot     `gorm:"foreignKey:SessionRef;constraint:OnDelete:CASCADE"`
	Summary    *AnalysisSummary   `gorm:"foreignKey:SessionRef;constraint:OnDelete:CASCADE"`
}

// IsotopeDetection represents one identified gamma peak within a session.
// (session, parent, daughter, energy) is a natural key, one record per
// transition per session.
type IsotopeDetection struct {
	ID         uint `gorm:"primaryKey"`
	SessionRef uint `gorm:"index;not null;uniqueIndex:idx_detections_peak"`

	ParentIsotope   string  `gorm:"index:idx_detections_parent;uniqueIndex:idx_detections_peak;not null"`
	DaughterIsotope string  `gorm:"uniqueIndex:idx_detections_peak;not null"`
	EnergyKeV       float64 `gorm:"column:energy_kev;uniqueIndex:idx_detections_peak"`

	Counts            float64
	CountsUncertainty float64

	// RelativeUncertainty is derived: CountsUncertainty / Counts when
	// Counts > 0, otherwise nil. Written only by the derivation pass.
	RelativeUncertainty *float64
}

// MassEstimate represents one parent-isotope mass estimate within a
// session, at most one per (session, parent isotope).
type MassEstimate struct {
	ID         uint `gorm:"primaryKey"`
	SessionRef uint `gorm:"index;not null;uniqueIndex:idx_estimates_isotope"`

	ParentIsotope string `gorm:"uniqueIndex:idx_estimates_isotope;not null"`

	MassGrams       float64
	MassUncertainty float64

	// RelativeUncertainty is derived: MassUncertainty / MassGrams when
	// MassGrams > 0, otherwise nil. Written only by the derivation pass.
	RelativeUncertainty *float64
}

// AnalysisSummary holds the aggregate figures for one session, exactly
// one per session, replaced atomically whenever the session's detections
// or mass estimates change.
type AnalysisSummary struct {
	ID         uint `gorm:"primaryKey"`
	SessionRef uint `gorm:"uniqueIndex;not null"`

	TotalMassGrams  float64
	TotalDetections int
	UniqueIsotopes  int
	DominantIsotope string

	// MassDistribution is the isotope to mass-fraction mapping as JSON.
	// Empty object when total mass is zero, fractions are undefined then.
	MassDistribution string `gorm:"type:text"`

	UpdatedAt time.Time
}

// Plot types in their fixed catalog order.
const (
	PlotOverview         = "overview"
	PlotMassDistribution = "mass_distribution"
	PlotUncertainty      = "uncertainty"
	PlotROI              = "roi"
)

// PlotTypes lists the valid plot types in catalog order.
var PlotTypes = []string{PlotOverview, PlotMassDistribution, PlotUncertainty, PlotROI}

// AnalysisPlot is an opaque visual artifact tied to a session. For
// region-of-interest plots Isotope and EnergyKeV carry the window the
// plot is scoped to and drive catalog ordering.
type AnalysisPlot struct {
	ID         uint `gorm:"primaryKey"`
	SessionRef uint `gorm:"index;not null"`

	PlotType string `gorm:"index:idx_plots_type;type:varchar(20);not null"`
	Title    string

	Payload []byte `gorm:"type:blob"` // opaque image data, engine never decodes it

	Isotope   *string  // ROI metadata, nil for whole-spectrum plots
	EnergyKeV *float64 `gorm:"column:energy_kev"` // ROI metadata, nil for whole-spectrum plots

	CreatedAt time.Time
}

// IsValidPlotType reports whether plotType is one of the known types.
func IsValidPlotType(plotType string) bool {
	for _, t := range PlotTypes {
		if t == plotType {
			return true
		}
	}
	return false
}
