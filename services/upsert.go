package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-atlas/models"
)

// seqRenumberOffset liegt weit über jeder realen Autorenzahl.
const seqRenumberOffset = 1 << 20

// EntityCounts zählt Schreiboperationen pro Entitätstyp.
type EntityCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// Add addiert die Zähler eines anderen EntityCounts.
func (c *EntityCounts) Add(o EntityCounts) {
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Deleted += o.Deleted
}

// UpsertResult fasst die Schreiboperationen eines Records zusammen.
type UpsertResult struct {
	Papers      EntityCounts `json:"papers"`
	Authors     EntityCounts `json:"authors"`
	Authorships EntityCounts `json:"authorships"`
}

// Add addiert die Zähler eines anderen UpsertResult.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Papers.Add(o.Papers)
	r.Authors.Add(o.Authors)
	r.Authorships.Add(o.Authorships)
}

// UpsertEngine schreibt NormalizedRecords idempotent in die Datenbank.
// Jeder Record läuft in genau einer Transaktion: entweder landen Paper,
// Autoren und Authorships vollständig in der Datenbank oder gar nichts.
type UpsertEngine struct {
	DB      *gorm.DB
	Logger  *zap.Logger
	Metrics *MetricRecalculator
}

// NewUpsertEngine erstellt eine neue UpsertEngine.
func NewUpsertEngine(db *gorm.DB, logger *zap.Logger) *UpsertEngine {
	return &UpsertEngine{DB: db, Logger: logger, Metrics: &MetricRecalculator{}}
}

// UpsertRecord schreibt einen Record in einer Transaktion. Der Rückgabewert
// sagt pro Entität, ob eingefügt oder aktualisiert wurde.
func (e *UpsertEngine) UpsertRecord(ctx context.Context, rec *NormalizedRecord) (UpsertResult, error) {
	var result UpsertResult

	if err := validateRecord(rec); err != nil {
		return result, err
	}

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.upsertPaper(tx, rec, &result); err != nil {
			return err
		}
		touched, err := e.upsertAuthors(tx, rec, &result)
		if err != nil {
			return err
		}
		deleted, err := e.upsertAuthorships(tx, rec, &result)
		if err != nil {
			return err
		}
		for id := range deleted {
			touched[id] = true
		}
		for id := range touched {
			if err := e.Metrics.Recalculate(tx, id); err != nil {
				return &UpsertError{Entity: "author", Key: id, Reason: "Aggregat-Neuberechnung fehlgeschlagen", Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, e.classify(err, rec.Paper.PaperID)
	}
	return result, nil
}

// validateRecord prüft vor dem Schreiben die strukturellen Invarianten der
// Autorenliste.
func validateRecord(rec *NormalizedRecord) error {
	firstCount := 0
	for i, na := range rec.Authorships {
		if na.Join.AuthorSequence != i+1 {
			return &UpsertError{
				Entity: "authorship",
				Key:    fmt.Sprintf("%s/%s", rec.Paper.PaperID, na.Join.AuthorID),
				Reason: fmt.Sprintf("Sequenz nicht lückenlos: erwartet %d, erhalten %d", i+1, na.Join.AuthorSequence),
			}
		}
		if na.Join.AuthorPosition == models.PositionFirst {
			firstCount++
		}
	}
	if len(rec.Authorships) > 0 && firstCount != 1 {
		return &UpsertError{
			Entity: "paper",
			Key:    rec.Paper.PaperID,
			Reason: fmt.Sprintf("genau ein Erstautor erwartet, %d gefunden", firstCount),
		}
	}
	return nil
}

func (e *UpsertEngine) upsertPaper(tx *gorm.DB, rec *NormalizedRecord, result *UpsertResult) error {
	var existing models.Paper
	err := tx.Select("paper_id").Where("paper_id = ?", rec.Paper.PaperID).First(&existing).Error

	paper := rec.Paper
	paper.IngestedAt = time.Now().UTC()

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&paper).Error; err != nil {
			return &UpsertError{Entity: "paper", Key: paper.PaperID, Reason: "Insert fehlgeschlagen", Err: err}
		}
		result.Papers.Inserted++
	case err != nil:
		return err
	default:
		// Vollständige Aktualisierung inklusive Nullwerten, damit ein
		// Re-Import auch zurückgesetzte Felder überschreibt. created_date
		// und ingested_at werden nur beim Insert gesetzt.
		if err := tx.Model(&models.Paper{}).
			Where("paper_id = ?", paper.PaperID).
			Select("*").
			Omit("created_date", "ingested_at").
			Updates(&paper).Error; err != nil {
			return &UpsertError{Entity: "paper", Key: paper.PaperID, Reason: "Update fehlgeschlagen", Err: err}
		}
		result.Papers.Updated++
	}
	return nil
}

func (e *UpsertEngine) upsertAuthors(tx *gorm.DB, rec *NormalizedRecord, result *UpsertResult) (map[string]bool, error) {
	touched := make(map[string]bool, len(rec.Authorships))
	if len(rec.Authorships) == 0 {
		return touched, nil
	}

	ids := make([]string, 0, len(rec.Authorships))
	for _, na := range rec.Authorships {
		ids = append(ids, na.Author.AuthorID)
	}

	var existing []models.Author
	if err := tx.Where("author_id IN ?", ids).Find(&existing).Error; err != nil {
		return nil, err
	}
	known := make(map[string]models.Author, len(existing))
	for _, a := range existing {
		known[a.AuthorID] = a
	}

	for _, na := range rec.Authorships {
		id := na.Author.AuthorID
		if touched[id] {
			continue
		}
		touched[id] = true

		_, ok := known[id]
		if !ok {
			author := na.Author
			if err := tx.Create(&author).Error; err != nil {
				return nil, &UpsertError{Entity: "author", Key: id, Reason: "Insert fehlgeschlagen", Err: err}
			}
			result.Authors.Inserted++
			continue
		}

		updates := map[string]any{
			"display_name": na.Author.DisplayName,
			"updated_at":   time.Now().UTC(),
		}
		// ORCID wird nie gelöscht, nur gesetzt oder bestätigt.
		if na.Author.ORCID != nil {
			updates["orcid"] = *na.Author.ORCID
		}
		if err := tx.Model(&models.Author{}).Where("author_id = ?", id).Updates(updates).Error; err != nil {
			return nil, &UpsertError{Entity: "author", Key: id, Reason: "Update fehlgeschlagen", Err: err}
		}
		result.Authors.Updated++
	}
	return touched, nil
}

func (e *UpsertEngine) upsertAuthorships(tx *gorm.DB, rec *NormalizedRecord, result *UpsertResult) (map[string]bool, error) {
	var existing []models.PaperAuthor
	if err := tx.Where("paper_id = ?", rec.Paper.PaperID).Find(&existing).Error; err != nil {
		return nil, err
	}
	current := make(map[string]bool, len(existing))
	for _, pa := range existing {
		current[pa.AuthorID] = true
	}

	wanted := make(map[string]bool, len(rec.Authorships))
	for _, na := range rec.Authorships {
		wanted[na.Join.AuthorID] = true
	}

	// Veraltete Paare zuerst entfernen, damit die Sequenz-Eindeutigkeit beim
	// Umnummerieren nicht kollidiert.
	deleted := map[string]bool{}
	for _, pa := range existing {
		if !wanted[pa.AuthorID] {
			if err := tx.Where("paper_id = ? AND author_id = ?", pa.PaperID, pa.AuthorID).
				Delete(&models.PaperAuthor{}).Error; err != nil {
				return nil, &UpsertError{
					Entity: "authorship",
					Key:    fmt.Sprintf("%s/%s", pa.PaperID, pa.AuthorID),
					Reason: "Löschen fehlgeschlagen", Err: err,
				}
			}
			deleted[pa.AuthorID] = true
			result.Authorships.Deleted++
		}
	}

	// Verbleibende Zeilen vor dem Umnummerieren aus dem Sequenzbereich
	// schieben, sonst kollidiert der Unique-Index bei vertauschten Positionen.
	var keptIDs []string
	for _, na := range rec.Authorships {
		if current[na.Join.AuthorID] {
			keptIDs = append(keptIDs, na.Join.AuthorID)
		}
	}
	if len(keptIDs) > 0 {
		if err := tx.Model(&models.PaperAuthor{}).
			Where("paper_id = ? AND author_id IN ?", rec.Paper.PaperID, keptIDs).
			Update("author_sequence", gorm.Expr("author_sequence + ?", seqRenumberOffset)).Error; err != nil {
			return nil, &UpsertError{Entity: "authorship", Key: rec.Paper.PaperID, Reason: "Umnummerieren fehlgeschlagen", Err: err}
		}
	}

	for _, na := range rec.Authorships {
		join := na.Join
		key := fmt.Sprintf("%s/%s", join.PaperID, join.AuthorID)

		if current[join.AuthorID] {
			updates := map[string]any{
				"author_position":         join.AuthorPosition,
				"author_sequence":         join.AuthorSequence,
				"is_corresponding":        join.IsCorresponding,
				"institution_names":       join.InstitutionNames,
				"institution_ids":         join.InstitutionIDs,
				"countries":               join.Countries,
				"raw_affiliation_strings": join.RawAffiliationStrings,
				"updated_at":              time.Now().UTC(),
			}
			if err := tx.Model(&models.PaperAuthor{}).
				Where("paper_id = ? AND author_id = ?", join.PaperID, join.AuthorID).
				Updates(updates).Error; err != nil {
				return nil, &UpsertError{Entity: "authorship", Key: key, Reason: "Update fehlgeschlagen", Err: err}
			}
			result.Authorships.Updated++
		} else {
			if err := tx.Omit(clause.Associations).Create(&join).Error; err != nil {
				return nil, &UpsertError{Entity: "authorship", Key: key, Reason: "Insert fehlgeschlagen", Err: err}
			}
			result.Authorships.Inserted++
		}
	}
	return deleted, nil
}

// classify ordnet einen Transaktionsfehler der Fehlertaxonomie zu.
func (e *UpsertEngine) classify(err error, paperID string) error {
	if isConnectionError(err) {
		return &StoreUnavailableError{Op: "upsert " + paperID, Err: err}
	}
	switch err.(type) {
	case *UpsertError, *StoreUnavailableError, *MalformedRecordError:
		return err
	}
	return &UpsertError{Entity: "paper", Key: paperID, Reason: "Transaktion fehlgeschlagen", Err: err}
}
