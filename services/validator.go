package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"paper-atlas/models"
)

// RuleResult ist das Ergebnis einer einzelnen Integritätsregel.
type RuleResult struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Advisory    bool             `json:"advisory"`
	Violations  int64            `json:"violations"`
	Samples     []map[string]any `json:"samples,omitempty"`
	Err         string           `json:"error,omitempty"`
}

// Passed meldet, ob die Regel ohne Verstöße durchlief.
func (r *RuleResult) Passed() bool {
	return r.Violations == 0 && r.Err == ""
}

// ValidationReport fasst einen kompletten Validierungslauf zusammen.
type ValidationReport struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Rules     []RuleResult  `json:"rules"`
}

// Passed meldet, ob alle harten Regeln bestanden wurden. Advisory-Regeln
// (z.B. doppelte DOIs) zählen nicht als Fehlschlag.
func (v *ValidationReport) Passed() bool {
	for _, r := range v.Rules {
		if !r.Advisory && !r.Passed() {
			return false
		}
	}
	return true
}

// Summary rendert den Report als mehrzeiligen Text.
func (v *ValidationReport) Summary() string {
	var b strings.Builder
	status := "BESTANDEN"
	if !v.Passed() {
		status = "FEHLGESCHLAGEN"
	}
	fmt.Fprintf(&b, "Integritäts-Validierung: %s (%s)\n", status, v.Elapsed.Round(time.Millisecond))
	for _, r := range v.Rules {
		mark := "ok"
		if !r.Passed() {
			mark = fmt.Sprintf("%d Verstöße", r.Violations)
			if r.Advisory {
				mark += " (Hinweis)"
			}
		}
		if r.Err != "" {
			mark = "Fehler: " + r.Err
		}
		fmt.Fprintf(&b, "  %-28s %s\n", r.Name, mark)
	}
	return b.String()
}

// Validator prüft die relationalen Invarianten der Datenbank, rein lesend.
// Harte Regeln melden Konsistenzfehler zwischen den drei Tabellen,
// Advisory-Regeln auffällige, aber zulässige Daten.
type Validator struct {
	DB                          *gorm.DB
	Logger                      *zap.Logger
	SampleSize                  int
	SuspiciousCitationThreshold int
}

// NewValidator erstellt einen neuen Validator mit den konfigurierten
// Schwellwerten.
func NewValidator(db *gorm.DB, logger *zap.Logger, sampleSize, citationThreshold int) *Validator {
	return &Validator{
		DB:                          db,
		Logger:                      logger,
		SampleSize:                  sampleSize,
		SuspiciousCitationThreshold: citationThreshold,
	}
}

type sqlRule struct {
	name        string
	description string
	advisory    bool
	countSQL    string
	sampleSQL   string
	args        []any
}

// Run führt alle Integritätsregeln aus und sammelt die Ergebnisse.
func (v *Validator) Run(ctx context.Context) *ValidationReport {
	start := time.Now()
	report := &ValidationReport{StartedAt: start.UTC()}

	for _, rule := range v.rules() {
		report.Rules = append(report.Rules, v.runSQLRule(ctx, rule))
	}
	report.Rules = append(report.Rules, v.checkAffiliationAlignment(ctx))

	report.Elapsed = time.Since(start)
	v.Logger.Info("Validierung abgeschlossen",
		zap.Bool("passed", report.Passed()),
		zap.Int("rules", len(report.Rules)),
		zap.Duration("elapsed", report.Elapsed))
	return report
}

func (v *Validator) rules() []sqlRule {
	return []sqlRule{
		{
			name:        "orphan_authorships",
			description: "Jede Authorship referenziert ein existierendes Paper und einen existierenden Autor",
			countSQL: `SELECT COUNT(*) FROM paper_authors pa
				LEFT JOIN papers p ON p.paper_id = pa.paper_id
				LEFT JOIN authors a ON a.author_id = pa.author_id
				WHERE p.paper_id IS NULL OR a.author_id IS NULL`,
			sampleSQL: `SELECT pa.paper_id, pa.author_id FROM paper_authors pa
				LEFT JOIN papers p ON p.paper_id = pa.paper_id
				LEFT JOIN authors a ON a.author_id = pa.author_id
				WHERE p.paper_id IS NULL OR a.author_id IS NULL`,
		},
		{
			name:        "exactly_one_first_author",
			description: "Jedes Paper mit Autoren hat genau einen Erstautor",
			countSQL: `SELECT COUNT(*) FROM (
				SELECT paper_id FROM paper_authors
				GROUP BY paper_id
				HAVING SUM(CASE WHEN author_position = 'first' THEN 1 ELSE 0 END) <> 1
			) t`,
			sampleSQL: `SELECT paper_id,
				SUM(CASE WHEN author_position = 'first' THEN 1 ELSE 0 END) AS first_count
				FROM paper_authors
				GROUP BY paper_id
				HAVING SUM(CASE WHEN author_position = 'first' THEN 1 ELSE 0 END) <> 1`,
		},
		{
			name:        "sequence_contiguous",
			description: "Die Autorensequenz jedes Papers ist lückenlos ab 1",
			countSQL: `SELECT COUNT(*) FROM (
				SELECT paper_id FROM paper_authors
				GROUP BY paper_id
				HAVING MIN(author_sequence) <> 1
					OR MAX(author_sequence) <> COUNT(*)
					OR COUNT(DISTINCT author_sequence) <> COUNT(*)
			) t`,
			sampleSQL: `SELECT paper_id, MIN(author_sequence) AS min_seq,
				MAX(author_sequence) AS max_seq, COUNT(*) AS rows_count
				FROM paper_authors
				GROUP BY paper_id
				HAVING MIN(author_sequence) <> 1
					OR MAX(author_sequence) <> COUNT(*)
					OR COUNT(DISTINCT author_sequence) <> COUNT(*)`,
		},
		{
			name:        "author_count_matches",
			description: "papers.author_count stimmt mit den paper_authors-Zeilen überein",
			countSQL: `SELECT COUNT(*) FROM papers p
				WHERE p.author_count <> (
					SELECT COUNT(*) FROM paper_authors pa WHERE pa.paper_id = p.paper_id
				)`,
			sampleSQL: `SELECT p.paper_id, p.author_count,
				(SELECT COUNT(*) FROM paper_authors pa WHERE pa.paper_id = p.paper_id) AS actual_count
				FROM papers p
				WHERE p.author_count <> (
					SELECT COUNT(*) FROM paper_authors pa WHERE pa.paper_id = p.paper_id
				)`,
		},
		{
			name:        "author_totals_match",
			description: "authors.total_papers und total_citations passen zu den Authorships",
			countSQL: `SELECT COUNT(*) FROM authors a
				WHERE a.total_papers <> (
					SELECT COUNT(*) FROM paper_authors pa WHERE pa.author_id = a.author_id
				) OR a.total_citations <> COALESCE((
					SELECT SUM(p.cited_by_count) FROM paper_authors pa
					JOIN papers p ON p.paper_id = pa.paper_id
					WHERE pa.author_id = a.author_id
				), 0)`,
			sampleSQL: `SELECT a.author_id, a.total_papers, a.total_citations,
				(SELECT COUNT(*) FROM paper_authors pa WHERE pa.author_id = a.author_id) AS actual_papers
				FROM authors a
				WHERE a.total_papers <> (
					SELECT COUNT(*) FROM paper_authors pa WHERE pa.author_id = a.author_id
				) OR a.total_citations <> COALESCE((
					SELECT SUM(p.cited_by_count) FROM paper_authors pa
					JOIN papers p ON p.paper_id = pa.paper_id
					WHERE pa.author_id = a.author_id
				), 0)`,
		},
		{
			name:        "seen_dates_consistent",
			description: "first_seen_date und last_seen_date passen zu den Publikationsdaten",
			countSQL: `SELECT COUNT(*) FROM authors a
				WHERE EXISTS (
					SELECT 1 FROM paper_authors pa
					JOIN papers p ON p.paper_id = pa.paper_id
					WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
				) AND (
					a.first_seen_date IS NULL OR a.last_seen_date IS NULL
					OR a.first_seen_date <> (
						SELECT MIN(p.publication_date) FROM paper_authors pa
						JOIN papers p ON p.paper_id = pa.paper_id
						WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
					)
					OR a.last_seen_date <> (
						SELECT MAX(p.publication_date) FROM paper_authors pa
						JOIN papers p ON p.paper_id = pa.paper_id
						WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
					)
				)`,
			sampleSQL: `SELECT a.author_id, a.first_seen_date, a.last_seen_date
				FROM authors a
				WHERE EXISTS (
					SELECT 1 FROM paper_authors pa
					JOIN papers p ON p.paper_id = pa.paper_id
					WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
				) AND (
					a.first_seen_date IS NULL OR a.last_seen_date IS NULL
					OR a.first_seen_date <> (
						SELECT MIN(p.publication_date) FROM paper_authors pa
						JOIN papers p ON p.paper_id = pa.paper_id
						WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
					)
					OR a.last_seen_date <> (
						SELECT MAX(p.publication_date) FROM paper_authors pa
						JOIN papers p ON p.paper_id = pa.paper_id
						WHERE pa.author_id = a.author_id AND p.publication_date IS NOT NULL
					)
				)`,
		},
		{
			name:        "oa_status_consistent",
			description: "is_open_access widerspricht nicht dem oa_status",
			countSQL: `SELECT COUNT(*) FROM papers
				WHERE (is_open_access = ? AND (oa_status IS NULL
						OR oa_status NOT IN ('gold','hybrid','green','bronze')))
					OR (is_open_access = ? AND oa_status IN ('gold','hybrid','green','bronze'))`,
			sampleSQL: `SELECT paper_id, oa_status, is_open_access FROM papers
				WHERE (is_open_access = ? AND (oa_status IS NULL
						OR oa_status NOT IN ('gold','hybrid','green','bronze')))
					OR (is_open_access = ? AND oa_status IN ('gold','hybrid','green','bronze'))`,
			args: []any{true, false},
		},
		{
			name:        "duplicate_dois",
			description: "Mehrere Papers mit derselben DOI (beratender Hinweis)",
			advisory:    true,
			countSQL: `SELECT COUNT(*) FROM (
				SELECT doi FROM papers WHERE doi IS NOT NULL
				GROUP BY doi HAVING COUNT(*) > 1
			) t`,
			sampleSQL: `SELECT doi, COUNT(*) AS papers_count FROM papers
				WHERE doi IS NOT NULL
				GROUP BY doi HAVING COUNT(*) > 1`,
		},
		{
			name:        "suspicious_citations",
			description: "Ungewöhnlich hohe Zitationszahlen (beratender Hinweis)",
			advisory:    true,
			countSQL:    `SELECT COUNT(*) FROM papers WHERE cited_by_count > ?`,
			sampleSQL:   `SELECT paper_id, title, cited_by_count FROM papers WHERE cited_by_count > ? ORDER BY cited_by_count DESC`,
			args:        []any{0}, // wird unten durch den Schwellwert ersetzt
		},
		{
			name:        "future_publication_dates",
			description: "Publikationsdatum in der Zukunft (beratender Hinweis)",
			advisory:    true,
			countSQL:    `SELECT COUNT(*) FROM papers WHERE publication_date > ?`,
			sampleSQL:   `SELECT paper_id, title, publication_date FROM papers WHERE publication_date > ?`,
			args:        []any{time.Now().UTC()},
		},
	}
}

func (v *Validator) runSQLRule(ctx context.Context, rule sqlRule) RuleResult {
	result := RuleResult{Name: rule.name, Description: rule.description, Advisory: rule.advisory}

	args := rule.args
	if rule.name == "suspicious_citations" {
		args = []any{v.SuspiciousCitationThreshold}
	}

	db := v.DB.WithContext(ctx)
	if err := db.Raw(rule.countSQL, args...).Scan(&result.Violations).Error; err != nil {
		result.Err = err.Error()
		return result
	}
	if result.Violations == 0 {
		return result
	}

	var samples []map[string]any
	limited := rule.sampleSQL + fmt.Sprintf(" LIMIT %d", v.SampleSize)
	if err := db.Raw(limited, args...).Scan(&samples).Error; err != nil {
		result.Err = err.Error()
		return result
	}
	result.Samples = samples

	v.Logger.Warn("Integritätsregel verletzt",
		zap.String("rule", rule.name),
		zap.Bool("advisory", rule.advisory),
		zap.Int64("violations", result.Violations))
	return result
}

// checkAffiliationAlignment prüft in Go, dass die vier Affiliations-Arrays
// jeder Authorship gleich lang sind. JSON-Längenfunktionen sind zwischen den
// Datenbanken nicht portabel, deshalb läuft diese Regel clientseitig.
func (v *Validator) checkAffiliationAlignment(ctx context.Context) RuleResult {
	result := RuleResult{
		Name:        "affiliation_arrays_aligned",
		Description: "Die parallelen Affiliations-Arrays jeder Authorship sind gleich lang",
	}

	var rows []models.PaperAuthor
	err := v.DB.WithContext(ctx).
		Select("paper_id, author_id, institution_names, institution_ids, countries, raw_affiliation_strings").
		FindInBatches(&rows, 500, func(tx *gorm.DB, _ int) error {
			for _, pa := range rows {
				lens := []int{
					jsonArrayLen(pa.InstitutionNames),
					jsonArrayLen(pa.InstitutionIDs),
					jsonArrayLen(pa.Countries),
					jsonArrayLen(pa.RawAffiliationStrings),
				}
				for _, l := range lens[1:] {
					if l != lens[0] {
						result.Violations++
						if len(result.Samples) < v.SampleSize {
							result.Samples = append(result.Samples, map[string]any{
								"paper_id":  pa.PaperID,
								"author_id": pa.AuthorID,
								"lengths":   fmt.Sprint(lens),
							})
						}
						break
					}
				}
			}
			return nil
		}).Error
	if err != nil {
		result.Err = err.Error()
	}
	return result
}

// jsonArrayLen gibt die Länge eines JSON-Arrays zurück, 0 bei NULL.
func jsonArrayLen(raw datatypes.JSON) int {
	if len(raw) == 0 {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return -1
	}
	return len(items)
}
