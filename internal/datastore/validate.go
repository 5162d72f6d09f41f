// validate.go: field invariant checks applied before any write commits.
package datastore

import "fmt"

// validateSession checks the field invariants of a new session.
func validateSession(session *AnalysisSession) error {
	if session == nil {
		return validationError("session is nil", "session", nil)
	}
	if session.SessionID == "" {
		return validationError("session identifier is empty", "session_id", session.SessionID)
	}
	if session.SampleFile == "" {
		return validationError("sample filename is empty", "sample_file", session.SampleFile)
	}
	if session.ConfidenceThreshold <= 0 || session.ConfidenceThreshold > 1 {
		return validationError("confidence threshold must be in (0, 1]",
			"confidence_threshold", session.ConfidenceThreshold)
	}
	if session.AnalyzedAt.IsZero() {
		return validationError("analysis timestamp is zero", "analyzed_at", session.AnalyzedAt)
	}
	if session.PeaksFound < 0 || session.BackgroundPeaks < 0 {
		return validationError("peak counts must not be negative", "peaks_found", session.PeaksFound)
	}
	return nil
}

// peakKey is the natural key of a detection within one session.
type peakKey struct {
	parent   string
	daughter string
	energy   float64
}

// validateDetectionBatch checks every detection's field invariants and
// rejects the whole batch on the first violation or in-batch duplicate.
func validateDetectionBatch(detections []IsotopeDetection) error {
	seen := make(map[peakKey]struct{}, len(detections))
	for i := range detections {
		d := &detections[i]
		if d.ParentIsotope == "" {
			return validationError("parent isotope is empty", "parent_isotope", d.ParentIsotope)
		}
		if d.EnergyKeV <= 0 {
			return validationError("gamma energy must be positive", "energy_kev", d.EnergyKeV)
		}
		if d.Counts < 0 {
			return validationError("detected counts must not be negative", "counts", d.Counts)
		}
		if d.CountsUncertainty < 0 {
			return validationError("count uncertainty must not be negative",
				"counts_uncertainty", d.CountsUncertainty)
		}
		key := peakKey{parent: d.ParentIsotope, daughter: d.DaughterIsotope, energy: d.EnergyKeV}
		if _, dup := seen[key]; dup {
			return validationError(
				fmt.Sprintf("duplicate peak %s->%s at %.1f keV in batch", d.ParentIsotope, d.DaughterIsotope, d.EnergyKeV),
				"peak", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// validateEstimateBatch checks every estimate's field invariants and
// rejects the whole batch when a parent isotope repeats.
func validateEstimateBatch(estimates []MassEstimate) error {
	seen := make(map[string]struct{}, len(estimates))
	for i := range estimates {
		e := &estimates[i]
		if e.ParentIsotope == "" {
			return validationError("parent isotope is empty", "parent_isotope", e.ParentIsotope)
		}
		if e.MassGrams < 0 {
			return validationError("estimated mass must not be negative", "mass_grams", e.MassGrams)
		}
		if e.MassUncertainty < 0 {
			return validationError("mass uncertainty must not be negative",
				"mass_uncertainty", e.MassUncertainty)
		}
		if _, dup := seen[e.ParentIsotope]; dup {
			return validationError(
				fmt.Sprintf("duplicate mass estimate for %s in batch", e.ParentIsotope),
				"parent_isotope", e.ParentIsotope)
		}
		seen[e.ParentIsotope] = struct{}{}
	}
	return nil
}

// validatePlot checks a plot record. Region-of-interest plots must carry
// the isotope and energy window they are scoped to.
func validatePlot(plot *AnalysisPlot) error {
	if plot == nil {
		return validationError("plot is nil", "plot", nil)
	}
	if !IsValidPlotType(plot.PlotType) {
		return validationError(fmt.Sprintf("unknown plot type %q", plot.PlotType),
			"plot_type", plot.PlotType)
	}
	if plot.PlotType == PlotROI {
		if plot.Isotope == nil || *plot.Isotope == "" {
			return validationError("region-of-interest plot requires an isotope", "isotope", plot.Isotope)
		}
		if plot.EnergyKeV == nil || *plot.EnergyKeV <= 0 {
			return validationError("region-of-interest plot requires a positive energy", "energy_kev", plot.EnergyKeV)
		}
	}
	return nil
}
