package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-atlas/models"
	"paper-atlas/providers/openalex"
)

// FailedRecord hält fest, warum ein einzelner Record übersprungen wurde.
type FailedRecord struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// Report ist das Ergebnis eines Import-Laufs.
type Report struct {
	RunID         uint           `json:"run_id"`
	Status        string         `json:"status"`
	Processed     int            `json:"processed"`
	Failed        int            `json:"failed"`
	Result        UpsertResult   `json:"result"`
	FailedRecords []FailedRecord `json:"failed_records,omitempty"`
	Elapsed       time.Duration  `json:"elapsed"`
}

// Summary rendert den Report als mehrzeiligen Text für CLI und Logs.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Import-Lauf #%d: %s (%s)\n", r.RunID, r.Status, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Records:     %d verarbeitet, %d fehlgeschlagen\n", r.Processed, r.Failed)
	fmt.Fprintf(&b, "  Papers:      %d neu, %d aktualisiert\n", r.Result.Papers.Inserted, r.Result.Papers.Updated)
	fmt.Fprintf(&b, "  Autoren:     %d neu, %d aktualisiert\n", r.Result.Authors.Inserted, r.Result.Authors.Updated)
	fmt.Fprintf(&b, "  Authorships: %d neu, %d aktualisiert, %d gelöscht\n",
		r.Result.Authorships.Inserted, r.Result.Authorships.Updated, r.Result.Authorships.Deleted)
	for _, f := range r.FailedRecords {
		fmt.Fprintf(&b, "  übersprungen: %s (%s)\n", f.RecordID, f.Reason)
	}
	return b.String()
}

// Importer koordiniert einen Batch-Import: Normalisierung, Upsert pro Record
// und die Fortschreibung des ImportRun-Datensatzes.
type Importer struct {
	DB         *gorm.DB
	Engine     *UpsertEngine
	Normalizer *Normalizer
	Logger     *zap.Logger
}

// NewImporter erstellt einen neuen Importer.
func NewImporter(db *gorm.DB, engine *UpsertEngine, norm *Normalizer, logger *zap.Logger) *Importer {
	return &Importer{DB: db, Engine: engine, Normalizer: norm, Logger: logger}
}

// Run importiert einen Batch von Works. Fehlerhafte Records werden
// übersprungen und gezählt; bei einem Infrastrukturfehler oder abgebrochenem
// Context wird der Lauf als ABORTED beendet.
func (imp *Importer) Run(ctx context.Context, works []openalex.Work, trigger string) (*Report, error) {
	start := time.Now()

	// Die Lauf-Buchführung hängt bewusst nicht am Context: auch ein
	// abgebrochener Lauf soll als ABORTED in der Datenbank stehen.
	run := models.ImportRun{TriggerSource: trigger, Status: models.RunStatusPending, StartedAt: start.UTC()}
	if err := imp.DB.Create(&run).Error; err != nil {
		return nil, &StoreUnavailableError{Op: "import run anlegen", Err: err}
	}
	imp.setStatus(&run, models.RunStatusRunning, nil)

	log := imp.Logger.With(zap.Uint("run_id", run.ID), zap.String("trigger", trigger))
	log.Info("Starte Import", zap.Int("records", len(works)))

	report := &Report{RunID: run.ID}
	var abortErr error

	for i := range works {
		if err := ctx.Err(); err != nil {
			abortErr = err
			break
		}

		w := &works[i]
		rec, err := imp.Normalizer.NormalizeWork(w)
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				report.Failed++
				report.FailedRecords = append(report.FailedRecords,
					FailedRecord{RecordID: malformed.RecordID, Reason: malformed.Reason})
				log.Warn("Record übersprungen", zap.String("record_id", malformed.RecordID), zap.String("reason", malformed.Reason))
				continue
			}
			abortErr = err
			break
		}

		res, err := imp.Engine.UpsertRecord(ctx, rec)
		if err != nil {
			var unavailable *StoreUnavailableError
			if errors.As(err, &unavailable) {
				abortErr = err
				break
			}
			report.Failed++
			report.FailedRecords = append(report.FailedRecords,
				FailedRecord{RecordID: rec.Paper.PaperID, Reason: err.Error()})
			log.Warn("Upsert fehlgeschlagen", zap.String("paper_id", rec.Paper.PaperID), zap.Error(err))
			continue
		}

		report.Processed++
		report.Result.Add(res)
	}

	report.Elapsed = time.Since(start)

	switch {
	case abortErr != nil:
		report.Status = models.RunStatusAborted
		msg := abortErr.Error()
		imp.finalize(&run, report, &msg)
		log.Error("Import abgebrochen", zap.Error(abortErr))
		return report, abortErr
	case report.Failed > 0:
		report.Status = models.RunStatusPartial
	default:
		report.Status = models.RunStatusCompleted
	}

	imp.finalize(&run, report, nil)
	log.Info("Import beendet",
		zap.String("status", report.Status),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (imp *Importer) setStatus(run *models.ImportRun, status string, errMsg *string) {
	run.Status = status
	run.ErrorMessage = errMsg
	if err := imp.DB.Model(run).Updates(map[string]any{
		"status":        status,
		"error_message": errMsg,
	}).Error; err != nil {
		imp.Logger.Warn("Status des Import-Laufs konnte nicht gespeichert werden",
			zap.Uint("run_id", run.ID), zap.Error(err))
	}
}

func (imp *Importer) finalize(run *models.ImportRun, report *Report, errMsg *string) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":               report.Status,
		"error_message":        errMsg,
		"finished_at":          now,
		"records_processed":    report.Processed,
		"records_failed":       report.Failed,
		"papers_inserted":      report.Result.Papers.Inserted,
		"papers_updated":       report.Result.Papers.Updated,
		"authors_inserted":     report.Result.Authors.Inserted,
		"authors_updated":      report.Result.Authors.Updated,
		"authorships_inserted": report.Result.Authorships.Inserted,
		"authorships_updated":  report.Result.Authorships.Updated,
		"authorships_deleted":  report.Result.Authorships.Deleted,
	}
	if err := imp.DB.Model(run).Updates(updates).Error; err != nil {
		imp.Logger.Warn("Import-Lauf konnte nicht abgeschlossen werden",
			zap.Uint("run_id", run.ID), zap.Error(err))
	}
}
