package services

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"

	"paper-atlas/models"
	"paper-atlas/providers/openalex"
)

// NormalizedAuthorship ist eine importfertige Autorenschaft: die Autor-Entität
// und die zugehörige Join-Zeile.
type NormalizedAuthorship struct {
	Author models.Author
	Join   models.PaperAuthor
}

// NormalizedRecord ist das importfertige Abbild eines Works.
type NormalizedRecord struct {
	Paper       models.Paper
	Authorships []NormalizedAuthorship
}

// Normalizer wandelt Roh-Works in importfertige Records um.
type Normalizer struct {
	// MinScore ist der Relevanz-Schwellwert, der im Paper vermerkt wird.
	MinScore float64
}

// NormalizeWork transformiert ein Roh-Work in einen NormalizedRecord.
// Fehlt die ID oder der Titel, kommt ein MalformedRecordError zurück.
func (n *Normalizer) NormalizeWork(w *openalex.Work) (*NormalizedRecord, error) {
	paperID := stripIDPrefix(w.ID)
	if paperID == "" {
		return nil, &MalformedRecordError{RecordID: w.Title, Reason: "fehlende Paper-ID"}
	}

	title := nfc(w.Title)
	if title == "" {
		title = nfc(w.DisplayName)
	}
	if title == "" {
		return nil, &MalformedRecordError{RecordID: paperID, Reason: "fehlender Titel"}
	}

	paper := models.Paper{
		PaperID:              paperID,
		DOI:                  optional(strings.TrimPrefix(w.DOI, "https://doi.org/")),
		Title:                title,
		PublicationYear:      w.PublicationYear,
		PublicationDate:      parseDate(w.PublicationDate),
		PaperType:            optional(w.Type),
		Language:             optional(w.Language),
		CitedByCount:         w.CitedByCount,
		ReferencedWorksCount: w.ReferencedWorksCount,
		FWCI:                 w.FWCI,
		IsRetracted:          w.IsRetracted,
		IsParatext:           w.IsParatext,
		HasAbstract:          len(w.AbstractIndex) > 0,
		CreatedDate:          parseDate(w.CreatedDate),
		UpdatedDate:          parseDate(w.UpdatedDate),
	}
	if w.CitationPercentile != nil {
		v := w.CitationPercentile.Value
		paper.CitationPercentile = &v
	}

	if loc := w.PrimaryLocation; loc != nil {
		paper.PDFURL = optional(loc.PDFURL)
		paper.LandingPageURL = optional(loc.LandingPageURL)
		paper.License = optional(loc.License)
		if src := loc.Source; src != nil {
			paper.JournalName = optional(nfc(src.DisplayName))
			paper.Publisher = optional(nfc(src.HostOrganizationName))
			paper.JournalISSN = optional(src.ISSNL)
			core := src.IsCore
			paper.IsCoreJournal = &core
		}
	}

	// is_open_access leitet sich ausschließlich aus dem oa_status ab, damit
	// beide Felder nie widersprechen. Ohne Status (auch wenn die Quelle
	// is_oa=true meldet) bleibt das Paper geschlossen.
	paper.OAStatus = optional(w.OpenAccess.OAStatus)
	paper.IsOpenAccess = false
	for _, s := range models.OpenOAStatuses {
		if w.OpenAccess.OAStatus == s {
			paper.IsOpenAccess = true
			break
		}
	}
	if paper.PDFURL == nil {
		paper.PDFURL = optional(w.OpenAccess.OAURL)
	}

	if w.PrimaryTopic != nil {
		paper.PrimaryTopic = optional(nfc(w.PrimaryTopic.DisplayName))
	} else if len(w.Topics) > 0 {
		paper.PrimaryTopic = optional(nfc(w.Topics[0].DisplayName))
	}
	setTopConcepts(&paper, w.Concepts)

	if len(w.Keywords) > 0 {
		names := make([]string, 0, len(w.Keywords))
		for _, kw := range w.Keywords {
			if kw.DisplayName != "" {
				names = append(names, nfc(kw.DisplayName))
			}
		}
		if raw, err := json.Marshal(names); err == nil {
			paper.Keywords = datatypes.JSON(raw)
		}
	}

	paper.AIRelevanceScore = RelevanceScore(w)
	paper.HasAIField = HasAIField(w)

	// Zuerst unbrauchbare Authorships verwerfen, dann Sequenz und Position
	// über die verbleibende Liste vergeben. So bleibt die Sequenz lückenlos.
	var kept []openalex.Authorship
	for _, a := range w.Authorships {
		if stripIDPrefix(a.Author.ID) != "" && a.Author.DisplayName != "" {
			kept = append(kept, a)
		}
	}

	authorships := make([]NormalizedAuthorship, 0, len(kept))
	for i, a := range kept {
		authorID := stripIDPrefix(a.Author.ID)

		position := models.PositionMiddle
		if i == 0 {
			position = models.PositionFirst
		} else if i == len(kept)-1 {
			position = models.PositionLast
		}

		author := models.Author{
			AuthorID:    authorID,
			DisplayName: nfc(a.Author.DisplayName),
			ORCID:       optional(stripORCID(a.Author.ORCID)),
		}

		join := models.PaperAuthor{
			PaperID:         paperID,
			AuthorID:        authorID,
			AuthorPosition:  position,
			AuthorSequence:  i + 1,
			IsCorresponding: a.IsCorresponding,
		}
		fillAffiliations(&join, &a)

		authorships = append(authorships, NormalizedAuthorship{Author: author, Join: join})
	}

	fillPaperAggregates(&paper, authorships, kept)

	return &NormalizedRecord{Paper: paper, Authorships: authorships}, nil
}

// fillAffiliations baut die vier parallelen Affiliations-Arrays gleicher
// Länge. Spine ist die Institutionsliste; fehlen Einträge, wird mit leeren
// Strings aufgefüllt, Länder fallen auf die Länderliste des Authorships
// zurück.
func fillAffiliations(join *models.PaperAuthor, a *openalex.Authorship) {
	n := len(a.Institutions)
	if len(a.RawAffiliationStrings) > n {
		n = len(a.RawAffiliationStrings)
	}
	if n == 0 {
		return
	}

	names := make([]string, n)
	ids := make([]string, n)
	countries := make([]string, n)
	raw := make([]string, n)

	for i := 0; i < n; i++ {
		if i < len(a.Institutions) {
			names[i] = nfc(a.Institutions[i].DisplayName)
			ids[i] = stripIDPrefix(a.Institutions[i].ID)
			countries[i] = a.Institutions[i].CountryCode
		}
		if countries[i] == "" && i < len(a.Countries) {
			countries[i] = a.Countries[i]
		}
		if i < len(a.RawAffiliationStrings) {
			raw[i] = nfc(a.RawAffiliationStrings[i])
		}
	}

	join.InstitutionNames = mustJSON(names)
	join.InstitutionIDs = mustJSON(ids)
	join.Countries = mustJSON(countries)
	join.RawAffiliationStrings = mustJSON(raw)
}

// fillPaperAggregates setzt die denormalisierten Autoren-Aggregatfelder aus
// den bereits gefilterten Authorships.
func fillPaperAggregates(paper *models.Paper, authorships []NormalizedAuthorship, kept []openalex.Authorship) {
	paper.AuthorCount = len(authorships)
	if len(authorships) > 0 {
		paper.FirstAuthorName = optional(authorships[0].Author.DisplayName)
	}
	for _, na := range authorships {
		if na.Join.IsCorresponding {
			paper.CorrespondingAuthorName = optional(na.Author.DisplayName)
			break
		}
	}

	instSeen := map[string]bool{}
	countrySeen := map[string]bool{}
	for _, a := range kept {
		for _, inst := range a.Institutions {
			if inst.DisplayName != "" {
				name := nfc(inst.DisplayName)
				instSeen[name] = true
				if paper.FirstInstitution == nil {
					paper.FirstInstitution = optional(name)
				}
			}
		}
		for _, c := range a.Countries {
			if c != "" {
				countrySeen[c] = true
				if paper.FirstCountry == nil {
					paper.FirstCountry = optional(c)
				}
			}
		}
	}
	paper.InstitutionCount = len(instSeen)
	paper.CountryCount = len(countrySeen)
}

// setTopConcepts wählt die drei Konzepte mit den höchsten Scores.
func setTopConcepts(paper *models.Paper, concepts []openalex.Concept) {
	sorted := make([]openalex.Concept, len(concepts))
	copy(sorted, concepts)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Score > sorted[j-1].Score; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	if len(sorted) > 0 {
		paper.TopConcept1 = optional(nfc(sorted[0].DisplayName))
	}
	if len(sorted) > 1 {
		paper.TopConcept2 = optional(nfc(sorted[1].DisplayName))
	}
	if len(sorted) > 2 {
		paper.TopConcept3 = optional(nfc(sorted[2].DisplayName))
	}
}

// stripIDPrefix entfernt das URL-Präfix einer OpenAlex-ID
// (z.B. "https://openalex.org/W123" -> "W123").
func stripIDPrefix(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// stripORCID entfernt das URL-Präfix einer ORCID.
func stripORCID(orcid string) string {
	if idx := strings.Index(orcid, "orcid.org/"); idx >= 0 {
		return orcid[idx+len("orcid.org/"):]
	}
	return orcid
}

// nfc führt Unicode-NFC-Normalisierung durch und trimmt Whitespace.
func nfc(s string) string {
	normalized, _, err := transform.String(norm.NFC, s)
	if err != nil {
		normalized = s
	}
	return strings.TrimSpace(normalized)
}

// optional gibt nil für leere Strings zurück, sonst einen Pointer.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
