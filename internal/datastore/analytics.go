// internal/datastore/analytics.go: cross-session aggregate queries.
// All results are pure functions of the current record set, nothing
// here persists state of its own.
package datastore

import (
	"sort"
	"time"

	"github.com/isotrace/isotrace-go/internal/conf"
)

// IsotopeFrequency describes how often an isotope shows up across all
// completed sessions.
type IsotopeFrequency struct {
	Isotope      string  `json:"isotope"`
	SessionCount int     `json:"session_count"`
	SampleCount  int     `json:"sample_count"`
	Percentage   float64 `json:"percentage"`
}

// MassRankingEntry is one session's mass estimate for an isotope, ranked
// across all sessions.
type MassRankingEntry struct {
	SessionID       string    `json:"session_id"`
	SampleFile      string    `json:"sample_file"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
	MassGrams       float64   `json:"mass_grams"`
	MassUncertainty float64   `json:"mass_uncertainty"`
	Rank            int       `json:"rank"`
}

// DailyRollup aggregates analysis volume for one calendar day in the
// canonical rollup timezone.
type DailyRollup struct {
	Date               string   `json:"date"`
	AnalysisCount      int      `json:"analysis_count"`
	AvgPeaks           float64  `json:"avg_peaks"`
	AvgBackgroundPeaks float64  `json:"avg_background_peaks"`
	UniqueSamples      int      `json:"unique_samples"`
	Isotopes           []string `json:"isotopes"`
}

// GetIsotopeFrequency returns per-isotope session counts, distinct sample
// counts and the percentage of all sessions containing the isotope. With
// no sessions stored the result is empty, never a division error.
func (ds *DataStore) GetIsotopeFrequency() ([]IsotopeFrequency, error) {
	totalSessions, err := ds.CountSessions()
	if err != nil {
		return nil, err
	}
	if totalSessions == 0 {
		return []IsotopeFrequency{}, nil
	}

	var frequencies []IsotopeFrequency
	err = ds.DB.Table("isotope_detections").
		Select("isotope_detections.parent_isotope AS isotope, "+
			"COUNT(DISTINCT isotope_detections.session_ref) AS session_count, "+
			"COUNT(DISTINCT analysis_sessions.sample_file) AS sample_count").
		Joins("JOIN analysis_sessions ON analysis_sessions.id = isotope_detections.session_ref").
		Group("isotope_detections.parent_isotope").
		Order("session_count DESC, isotope ASC").
		Scan(&frequencies).Error
	if err != nil {
		return nil, dbError(err, "isotope frequency", "")
	}

	for i := range frequencies {
		frequencies[i].Percentage = 100 * float64(frequencies[i].SessionCount) / float64(totalSessions)
	}
	return frequencies, nil
}

// GetMassRanking ranks every session's mass estimate for the given
// isotope in descending mass order using standard competition ranking:
// equal masses share a rank and the next distinct mass skips accordingly.
func (ds *DataStore) GetMassRanking(isotope string) ([]MassRankingEntry, error) {
	var entries []MassRankingEntry
	err := ds.DB.Table("mass_estimates").
		Select("analysis_sessions.session_id AS session_id, "+
			"analysis_sessions.sample_file AS sample_file, "+
			"analysis_sessions.analyzed_at AS analyzed_at, "+
			"mass_estimates.mass_grams AS mass_grams, "+
			"mass_estimates.mass_uncertainty AS mass_uncertainty").
		Joins("JOIN analysis_sessions ON analysis_sessions.id = mass_estimates.session_ref").
		Where("mass_estimates.parent_isotope = ?", isotope).
		Order("mass_estimates.mass_grams DESC, analysis_sessions.analyzed_at ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, dbError(err, "mass ranking", "", "isotope", isotope)
	}

	for i := range entries {
		if i > 0 && entries[i].MassGrams == entries[i-1].MassGrams {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries, nil
}

// sessionRollupRow is the per-session slice the rollup needs.
type sessionRollupRow struct {
	ID              uint
	SampleFile      string
	AnalyzedAt      time.Time
	PeaksFound      int
	BackgroundPeaks int
}

// GetDailyRollups groups sessions by calendar day in the canonical
// rollup timezone. Zero start or end leaves that bound open.
func (ds *DataStore) GetDailyRollups(start, end time.Time) ([]DailyRollup, error) {
	loc := rollupLocation()

	query := ds.DB.Model(&AnalysisSession{})
	if !start.IsZero() {
		query = query.Where("analyzed_at >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("analyzed_at < ?", end)
	}

	var sessions []sessionRollupRow
	if err := query.Scan(&sessions).Error; err != nil {
		return nil, dbError(err, "daily rollup sessions", "")
	}
	if len(sessions) == 0 {
		return []DailyRollup{}, nil
	}

	sessionIDs := make([]uint, 0, len(sessions))
	for i := range sessions {
		sessionIDs = append(sessionIDs, sessions[i].ID)
	}

	var detectionRows []struct {
		SessionRef    uint
		ParentIsotope string
	}
	err := ds.DB.Model(&IsotopeDetection{}).
		Select("DISTINCT session_ref, parent_isotope").
		Where("session_ref IN ?", sessionIDs).
		Scan(&detectionRows).Error
	if err != nil {
		return nil, dbError(err, "daily rollup detections", "")
	}

	isotopesBySession := make(map[uint][]string, len(sessions))
	for _, row := range detectionRows {
		isotopesBySession[row.SessionRef] = append(isotopesBySession[row.SessionRef], row.ParentIsotope)
	}

	type dayAccumulator struct {
		count           int
		peaks           int
		backgroundPeaks int
		samples         map[string]struct{}
		isotopes        map[string]struct{}
	}
	days := make(map[string]*dayAccumulator)
	for i := range sessions {
		s := &sessions[i]
		day := s.AnalyzedAt.In(loc).Format("2006-01-02")
		acc := days[day]
		if acc == nil {
			acc = &dayAccumulator{
				samples:  make(map[string]struct{}),
				isotopes: make(map[string]struct{}),
			}
			days[day] = acc
		}
		acc.count++
		acc.peaks += s.PeaksFound
		acc.backgroundPeaks += s.BackgroundPeaks
		acc.samples[s.SampleFile] = struct{}{}
		for _, isotope := range isotopesBySession[s.ID] {
			acc.isotopes[isotope] = struct{}{}
		}
	}

	rollups := make([]DailyRollup, 0, len(days))
	for day, acc := range days {
		isotopes := make([]string, 0, len(acc.isotopes))
		for isotope := range acc.isotopes {
			isotopes = append(isotopes, isotope)
		}
		sort.Strings(isotopes)
		rollups = append(rollups, DailyRollup{
			Date:               day,
			AnalysisCount:      acc.count,
			AvgPeaks:           float64(acc.peaks) / float64(acc.count),
			AvgBackgroundPeaks: float64(acc.backgroundPeaks) / float64(acc.count),
			UniqueSamples:      len(acc.samples),
			Isotopes:           isotopes,
		})
	}
	sort.Slice(rollups, func(i, j int) bool { return rollups[i].Date < rollups[j].Date })
	return rollups, nil
}

// CountSessions returns the number of stored sessions.
func (ds *DataStore) CountSessions() (int64, error) {
	var count int64
	if err := ds.DB.Model(&AnalysisSession{}).Count(&count).Error; err != nil {
		return 0, dbError(err, "count sessions", "")
	}
	return count, nil
}

// rollupLocation resolves the canonical rollup timezone from settings,
// falling back to UTC when settings are not loaded (tests).
func rollupLocation() *time.Location {
	if settings := conf.GetSettings(); settings != nil {
		return settings.RollupLocation()
	}
	return time.UTC
}
