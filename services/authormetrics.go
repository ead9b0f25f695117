package services

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"paper-atlas/models"
)

// MetricRecalculator berechnet die abgeleiteten Autoren-Aggregate neu.
// Ground Truth sind ausschließlich die paper_authors-Zeilen; die Felder werden
// bei jedem Aufruf komplett neu hergeleitet statt inkrementell fortgeschrieben.
type MetricRecalculator struct{}

type authorPaperRow struct {
	CitedByCount     int
	PublicationDate  *time.Time
	InstitutionNames datatypes.JSON
	Countries        datatypes.JSON
}

// Recalculate berechnet alle Aggregatfelder eines Autors neu und schreibt sie.
// Hat der Autor keine Authorships mehr, werden die Aggregate genullt.
func (r *MetricRecalculator) Recalculate(tx *gorm.DB, authorID string) error {
	var rows []authorPaperRow
	err := tx.Table("paper_authors").
		Select("papers.cited_by_count, papers.publication_date, paper_authors.institution_names, paper_authors.countries").
		Joins("JOIN papers ON papers.paper_id = paper_authors.paper_id").
		Where("paper_authors.author_id = ?", authorID).
		Order("papers.publication_date ASC").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	updates := map[string]any{
		"total_papers":        len(rows),
		"total_citations":     0,
		"h_index":             0,
		"primary_institution": nil,
		"primary_country":     nil,
		"first_seen_date":     nil,
		"last_seen_date":      nil,
		"updated_at":          time.Now().UTC(),
	}

	if len(rows) > 0 {
		citations := make([]int, 0, len(rows))
		total := 0
		instCounts := map[string]int{}
		countryCounts := map[string]int{}
		var primaryInst, primaryCountry string
		var firstSeen, lastSeen *time.Time

		for _, row := range rows {
			total += row.CitedByCount
			citations = append(citations, row.CitedByCount)

			if row.PublicationDate != nil {
				if firstSeen == nil || row.PublicationDate.Before(*firstSeen) {
					firstSeen = row.PublicationDate
				}
				if lastSeen == nil || row.PublicationDate.After(*lastSeen) {
					lastSeen = row.PublicationDate
				}
			}

			// Häufigste Institution gewinnt; bei Gleichstand die aus der
			// jüngsten Publikation (die Zeilen sind nach Datum sortiert).
			if inst := firstJSONElement(row.InstitutionNames); inst != "" {
				instCounts[inst]++
				if instCounts[inst] >= instCounts[primaryInst] {
					primaryInst = inst
				}
			}
			if country := firstJSONElement(row.Countries); country != "" {
				countryCounts[country]++
				if countryCounts[country] >= countryCounts[primaryCountry] {
					primaryCountry = country
				}
			}
		}

		updates["total_citations"] = total
		updates["h_index"] = hIndex(citations)
		if primaryInst != "" {
			updates["primary_institution"] = primaryInst
		}
		if primaryCountry != "" {
			updates["primary_country"] = primaryCountry
		}
		if firstSeen != nil {
			updates["first_seen_date"] = *firstSeen
		}
		if lastSeen != nil {
			updates["last_seen_date"] = *lastSeen
		}
	}

	return tx.Model(&models.Author{}).
		Where("author_id = ?", authorID).
		Updates(updates).Error
}

// hIndex berechnet den h-Index: das größte h, für das mindestens h Papers
// jeweils mindestens h Zitationen haben.
func hIndex(citations []int) int {
	sort.Sort(sort.Reverse(sort.IntSlice(citations)))
	h := 0
	for i, c := range citations {
		if c >= i+1 {
			h = i + 1
		} else {
			break
		}
	}
	return h
}

// firstJSONElement liest das erste Element eines JSON-String-Arrays.
func firstJSONElement(raw datatypes.JSON) string {
	if len(raw) == 0 {
		return ""
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return ""
	}
	return items[0]
}
