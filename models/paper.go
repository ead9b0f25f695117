package models

import (
	"time"

	"gorm.io/datatypes"
)

// OA-Status-Werte laut OpenAlex. "closed" bzw. NULL bedeutet kein Open Access.
const (
	OAStatusGold   = "gold"
	OAStatusHybrid = "hybrid"
	OAStatusGreen  = "green"
	OAStatusBronze = "bronze"
	OAStatusClosed = "closed"
)

// OpenOAStatuses sind die Status, die Open Access implizieren.
var OpenOAStatuses = []string{OAStatusGold, OAStatusHybrid, OAStatusGreen, OAStatusBronze}

// Paper repräsentiert eine wissenschaftliche Publikation samt Metadaten.
// Primärschlüssel ist die unveränderliche OpenAlex-ID (z.B. "W2741809807").
// Die denormalisierten Autoren-Aggregatfelder (AuthorCount etc.) müssen zu den
// paper_authors-Zeilen passen; der Validator prüft das nachgelagert.
type Paper struct {
	PaperID string  `json:"paper_id" gorm:"primaryKey;size:32"`
	DOI     *string `json:"doi,omitempty" gorm:"index;size:512"`
	Title   string  `json:"title" gorm:"type:text;not null"`

	PublicationYear *int       `json:"publication_year,omitempty" gorm:"check:chk_papers_year,publication_year >= 1900 AND publication_year <= 2100"`
	PublicationDate *time.Time `json:"publication_date,omitempty" gorm:"index"`
	PaperType       *string    `json:"paper_type,omitempty"`
	Language        *string    `json:"language,omitempty" gorm:"size:16"`

	JournalName   *string `json:"journal_name,omitempty" gorm:"index"`
	Publisher     *string `json:"publisher,omitempty"`
	JournalISSN   *string `json:"journal_issn,omitempty" gorm:"size:32"`
	IsCoreJournal *bool   `json:"is_core_journal,omitempty"`

	IsOpenAccess   bool    `json:"is_open_access"`
	OAStatus       *string `json:"oa_status,omitempty" gorm:"size:16"`
	PDFURL         *string `json:"pdf_url,omitempty" gorm:"type:text"`
	LandingPageURL *string `json:"landing_page_url,omitempty" gorm:"type:text"`
	License        *string `json:"license,omitempty" gorm:"size:64"`

	// Denormalisierte Autoren-Aggregate (Cache, Ground Truth ist paper_authors)
	AuthorCount             int     `json:"author_count" gorm:"not null;default:0"`
	FirstAuthorName         *string `json:"first_author_name,omitempty"`
	CorrespondingAuthorName *string `json:"corresponding_author_name,omitempty"`
	InstitutionCount        int     `json:"institution_count" gorm:"not null;default:0"`
	CountryCount            int     `json:"country_count" gorm:"not null;default:0"`
	FirstInstitution        *string `json:"first_institution,omitempty"`
	FirstCountry            *string `json:"first_country,omitempty" gorm:"size:8;index"`

	CitedByCount         int      `json:"cited_by_count" gorm:"not null;default:0;check:chk_papers_cited,cited_by_count >= 0"`
	ReferencedWorksCount int      `json:"referenced_works_count" gorm:"not null;default:0;check:chk_papers_refs,referenced_works_count >= 0"`
	FWCI                 *float64 `json:"fwci,omitempty"`
	CitationPercentile   *float64 `json:"citation_percentile,omitempty" gorm:"check:chk_papers_percentile,citation_percentile >= 0 AND citation_percentile <= 100"`

	PrimaryTopic *string        `json:"primary_topic,omitempty" gorm:"index"`
	TopConcept1  *string        `json:"top_concept_1,omitempty"`
	TopConcept2  *string        `json:"top_concept_2,omitempty"`
	TopConcept3  *string        `json:"top_concept_3,omitempty"`
	Keywords     datatypes.JSON `json:"keywords,omitempty" gorm:"type:jsonb"`

	IsRetracted bool `json:"is_retracted" gorm:"not null;default:false"`
	IsParatext  bool `json:"is_paratext" gorm:"not null;default:false"`
	HasAbstract bool `json:"has_abstract" gorm:"not null;default:false"`

	AIRelevanceScore float64 `json:"ai_relevance_score" gorm:"not null;default:0"`
	HasAIField       bool    `json:"has_ai_field" gorm:"not null;default:false"`

	// CreatedDate/UpdatedDate kommen aus der Quelle, IngestedAt setzen wir selbst.
	CreatedDate *time.Time `json:"created_date,omitempty"`
	UpdatedDate *time.Time `json:"updated_date,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Paper) TableName() string {
	return "papers"
}
