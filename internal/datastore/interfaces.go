// interfaces.go: store interface and write paths for analysis records.
package datastore

import (
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/derivation"
	"github.com/isotrace/isotrace-go/internal/observability/metrics"
	"github.com/isotrace/isotrace-go/internal/summary"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface abstracts the underlying database implementation and defines
// the store operations of the aggregation engine.
type Interface interface {
	Open() error
	Close() error

	// Write paths. Each call is one transaction: validation, derivation
	// pass, insert and summary recomputation commit together or not at all.
	SaveAnalysis(session *AnalysisSession, detections []IsotopeDetection, estimates []MassEstimate, plots []AnalysisPlot) error
	AppendDetections(sessionID string, detections []IsotopeDetection) error
	AppendMassEstimates(sessionID string, estimates []MassEstimate) error
	AppendPlot(sessionID string, plot *AnalysisPlot) error
	DeleteSession(sessionID string) error

	// Direct lookups, missing entities are errors here.
	GetSession(sessionID string) (AnalysisSession, error)
	GetSummary(sessionID string) (AnalysisSummary, error)
	GetDetections(sessionID string) ([]IsotopeDetection, error)
	GetMassEstimates(sessionID string) ([]MassEstimate, error)

	// Cross-session aggregates, missing data yields empty results.
	GetIsotopeFrequency() ([]IsotopeFrequency, error)
	GetMassRanking(isotope string) ([]MassRankingEntry, error)
	GetDailyRollups(start, end time.Time) ([]DailyRollup, error)

	// Presentation views.
	GetLatestSessions(limit, offset int) ([]SessionOverview, error)
	CountSessions() (int64, error)
	GetDetectionResults(sessionID string) ([]DetectionResult, error)
	GetPlotCatalog(sessionID string) ([]PlotCatalogEntry, error)
	GetPlot(sessionID string, plotID uint) (AnalysisPlot, error)

	// RecomputeSummaries re-runs the summarizer over every stored
	// session, used after derivation logic changes.
	RecomputeSummaries() (int, error)

	// SetMetrics attaches a metrics collector, nil disables recording.
	SetMetrics(m *metrics.DatastoreMetrics)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	metrics *metrics.DatastoreMetrics
}

// SetMetrics attaches a metrics collector, nil disables recording.
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

// recordOp reports one store operation outcome to the metrics collector.
func (ds *DataStore) recordOp(operation string, start time.Time, err error) {
	if ds.metrics != nil {
		ds.metrics.RecordOperation(operation, time.Since(start), err)
	}
}

// recordSummaries reports recomputed summary counts.
func (ds *DataStore) recordSummaries(count int) {
	if ds.metrics != nil {
		ds.metrics.RecordSummaryRecomputed(count)
	}
}

// New creates a store instance for the backend enabled in settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SaveAnalysis stores a full analysis session with its child records in
// a single transaction. Readers never observe a partial session.
func (ds *DataStore) SaveAnalysis(session *AnalysisSession, detections []IsotopeDetection, estimates []MassEstimate, plots []AnalysisPlot) (err error) {
	defer func(start time.Time) { ds.recordOp("save_analysis", start, err) }(time.Now())

	if err := validateSession(session); err != nil {
		return err
	}
	if err := validateDetectionBatch(detections); err != nil {
		return err
	}
	if err := validateEstimateBatch(estimates); err != nil {
		return err
	}
	for i := range plots {
		if err := validatePlot(&plots[i]); err != nil {
			return err
		}
	}

	applyDerivation(detections, estimates)

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		for i := range detections {
			detections[i].SessionRef = session.ID
		}
		for i := range estimates {
			estimates[i].SessionRef = session.ID
		}
		for i := range plots {
			plots[i].SessionRef = session.ID
		}
		if len(detections) > 0 {
			if err := tx.Create(&detections).Error; err != nil {
				return err
			}
		}
		if len(estimates) > 0 {
			if err := tx.Create(&estimates).Error; err != nil {
				return err
			}
		}
		if len(plots) > 0 {
			if err := tx.Create(&plots).Error; err != nil {
				return err
			}
		}
		return replaceSummary(tx, session.ID)
	})
	if err != nil {
		return translateWriteError(err, "save analysis", session.SessionID)
	}
	ds.recordSummaries(1)
	return nil
}

// AppendDetections adds a batch of detections to an existing session.
// The whole batch is rejected when any record violates a field invariant
// or duplicates an existing peak key.
func (ds *DataStore) AppendDetections(sessionID string, detections []IsotopeDetection) (err error) {
	defer func(start time.Time) { ds.recordOp("append_detections", start, err) }(time.Now())

	if len(detections) == 0 {
		return nil
	}
	if err := validateDetectionBatch(detections); err != nil {
		return err
	}
	applyDerivation(detections, nil)

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		session, err := sessionByExternalID(tx, sessionID)
		if err != nil {
			return err
		}
		for i := range detections {
			detections[i].SessionRef = session.ID
		}
		if err := tx.Create(&detections).Error; err != nil {
			return err
		}
		return replaceSummary(tx, session.ID)
	})
	if err != nil {
		return translateWriteError(err, "append detections", sessionID)
	}
	ds.recordSummaries(1)
	return nil
}

// AppendMassEstimates adds a batch of mass estimates to an existing
// session, rejected whole when a parent isotope repeats.
func (ds *DataStore) AppendMassEstimates(sessionID string, estimates []MassEstimate) (err error) {
	defer func(start time.Time) { ds.recordOp("append_mass_estimates", start, err) }(time.Now())

	if len(estimates) == 0 {
		return nil
	}
	if err := validateEstimateBatch(estimates); err != nil {
		return err
	}
	applyDerivation(nil, estimates)

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		session, err := sessionByExternalID(tx, sessionID)
		if err != nil {
			return err
		}
		for i := range estimates {
			estimates[i].SessionRef = session.ID
		}
		if err := tx.Create(&estimates).Error; err != nil {
			return err
		}
		return replaceSummary(tx, session.ID)
	})
	if err != nil {
		return translateWriteError(err, "append mass estimates", sessionID)
	}
	ds.recordSummaries(1)
	return nil
}

// AppendPlot stores one plot artifact for an existing session.
func (ds *DataStore) AppendPlot(sessionID string, plot *AnalysisPlot) (err error) {
	defer func(start time.Time) { ds.recordOp("append_plot", start, err) }(time.Now())

	if err := validatePlot(plot); err != nil {
		return err
	}

	err = ds.DB.Transaction(func(tx *gorm.DB) error {
		session, err := sessionByExternalID(tx, sessionID)
		if err != nil {
			return err
		}
		plot.SessionRef = session.ID
		return tx.Create(plot).Error
	})
	if err != nil {
		return translateWriteError(err, "append plot", sessionID)
	}
	return nil
}

// DeleteSession removes a session and, through ownership, all its
// detections, mass estimates, plots and summary.
func (ds *DataStore) DeleteSession(sessionID string) (err error) {
	defer func(start time.Time) { ds.recordOp("delete_session", start, err) }(time.Now())

	return ds.DB.Transaction(func(tx *gorm.DB) error {
		session, err := sessionByExternalID(tx, sessionID)
		if err != nil {
			return err
		}
		// Cascade explicitly: SQLite foreign key enforcement is off by
		// default, the store owns the cascade rather than the schema.
		for _, child := range []any{&IsotopeDetection{}, &MassEstimate{}, &AnalysisPlot{}, &AnalysisSummary{}} {
			if err := tx.Where("session_ref = ?", session.ID).Delete(child).Error; err != nil {
				return dbError(err, "delete session children", "", "session_id", sessionID)
			}
		}
		if err := tx.Delete(&AnalysisSession{}, session.ID).Error; err != nil {
			return dbError(err, "delete session", "", "session_id", sessionID)
		}
		return nil
	})
}

// GetSession retrieves a session with its summary by external identifier.
func (ds *DataStore) GetSession(sessionID string) (AnalysisSession, error) {
	var session AnalysisSession
	err := ds.DB.Preload("Summary").Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errorsIsNotFound(err) {
			return AnalysisSession{}, notFoundError("session", sessionID)
		}
		return AnalysisSession{}, dbError(err, "get session", "", "session_id", sessionID)
	}
	return session, nil
}

// GetSummary retrieves the stored summary for a session.
func (ds *DataStore) GetSummary(sessionID string) (AnalysisSummary, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return AnalysisSummary{}, err
	}
	if session.Summary == nil {
		return AnalysisSummary{}, notFoundError("summary", sessionID)
	}
	return *session.Summary, nil
}

// GetDetections returns all detections of a session.
func (ds *DataStore) GetDetections(sessionID string) ([]IsotopeDetection, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	var detections []IsotopeDetection
	err = ds.DB.Where("session_ref = ?", session.ID).
		Order("parent_isotope, daughter_isotope, energy_kev").
		Find(&detections).Error
	if err != nil {
		return nil, dbError(err, "get detections", "", "session_id", sessionID)
	}
	return detections, nil
}

// GetMassEstimates returns all mass estimates of a session.
func (ds *DataStore) GetMassEstimates(sessionID string) ([]MassEstimate, error) {
	session, err := ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	var estimates []MassEstimate
	err = ds.DB.Where("session_ref = ?", session.ID).
		Order("parent_isotope").
		Find(&estimates).Error
	if err != nil {
		return nil, dbError(err, "get mass estimates", "", "session_id", sessionID)
	}
	return estimates, nil
}

// RecomputeSummaries replaces the stored summary of every session with a
// freshly computed one. Returns the number of sessions processed.
func (ds *DataStore) RecomputeSummaries() (int, error) {
	var ids []uint
	if err := ds.DB.Model(&AnalysisSession{}).Pluck("id", &ids).Error; err != nil {
		return 0, dbError(err, "list sessions for recompute", "")
	}
	for _, id := range ids {
		err := ds.DB.Transaction(func(tx *gorm.DB) error {
			return replaceSummary(tx, id)
		})
		if err != nil {
			return 0, dbError(err, "recompute summary", "", "session_ref", id)
		}
	}
	ds.recordSummaries(len(ids))
	return len(ids), nil
}

// sessionByExternalID resolves a session row inside a transaction.
func sessionByExternalID(tx *gorm.DB, sessionID string) (AnalysisSession, error) {
	var session AnalysisSession
	if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		if errorsIsNotFound(err) {
			return AnalysisSession{}, notFoundError("session", sessionID)
		}
		return AnalysisSession{}, dbError(err, "lookup session", "", "session_id", sessionID)
	}
	return session, nil
}

// applyDerivation runs the shared derivation pass over every record that
// carries a magnitude/uncertainty pair. Idempotent.
func applyDerivation(detections []IsotopeDetection, estimates []MassEstimate) {
	for i := range detections {
		detections[i].RelativeUncertainty = derivation.Relative(detections[i].Counts, detections[i].CountsUncertainty)
	}
	for i := range estimates {
		estimates[i].RelativeUncertainty = derivation.Relative(estimates[i].MassGrams, estimates[i].MassUncertainty)
	}
}

// replaceSummary recomputes the summary for one session from the records
// visible inside tx and replaces the stored row. All-or-nothing as part
// of the surrounding transaction.
func replaceSummary(tx *gorm.DB, sessionRef uint) error {
	var detectionCount int64
	if err := tx.Model(&IsotopeDetection{}).Where("session_ref = ?", sessionRef).Count(&detectionCount).Error; err != nil {
		return err
	}

	var estimates []MassEstimate
	if err := tx.Where("session_ref = ?", sessionRef).Find(&estimates).Error; err != nil {
		return err
	}

	input := make([]summary.Estimate, 0, len(estimates))
	for i := range estimates {
		input = append(input, summary.Estimate{
			ParentIsotope: estimates[i].ParentIsotope,
			MassGrams:     estimates[i].MassGrams,
		})
	}

	computed := summary.Compute(int(detectionCount), input)
	distribution, err := summary.MarshalDistribution(computed.MassDistribution)
	if err != nil {
		return err
	}

	if err := tx.Where("session_ref = ?", sessionRef).Delete(&AnalysisSummary{}).Error; err != nil {
		return err
	}
	return tx.Create(&AnalysisSummary{
		SessionRef:       sessionRef,
		TotalMassGrams:   computed.TotalMassGrams,
		TotalDetections:  computed.TotalDetections,
		UniqueIsotopes:   computed.UniqueIsotopes,
		DominantIsotope:  computed.DominantIsotope,
		MassDistribution: distribution,
	}).Error
}

// errorsIsNotFound reports whether err is GORM's record-not-found.
func errorsIsNotFound(err error) bool {
	return stderrors.Is(err, gorm.ErrRecordNotFound)
}

// isConstraintViolation reports whether err is a unique constraint error
// from either supported backend.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate entry") ||
		strings.Contains(errStr, "constraint failed")
}

// translateWriteError maps raw database errors from a write transaction
// to the engine's error taxonomy.
func translateWriteError(err error, operation, sessionID string) error {
	if err == nil {
		return nil
	}
	if isEngineError(err) {
		return err
	}
	if isConstraintViolation(err) {
		return conflictError(err, operation, "natural-key", "session_id", sessionID)
	}
	return dbError(err, operation, "", "session_id", sessionID)
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&AnalysisSession{},
		&IsotopeDetection{},
		&MassEstimate{},
		&AnalysisSummary{},
		&AnalysisPlot{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}
	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}
	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
