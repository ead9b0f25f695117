package models

import (
	"time"
)

// Author repräsentiert eine Autorin bzw. einen Autor über alle Papers hinweg.
// Alle Aggregatfelder (TotalPapers bis LastSeenDate) werden ausschließlich aus
// den paper_authors-Zeilen abgeleitet und nie direkt vom Aufrufer gesetzt.
type Author struct {
	AuthorID    string  `json:"author_id" gorm:"primaryKey;size:32"`
	DisplayName string  `json:"display_name" gorm:"not null"`
	ORCID       *string `json:"orcid,omitempty" gorm:"column:orcid;size:32"`

	TotalPapers    int `json:"total_papers" gorm:"not null;default:0;check:chk_authors_papers,total_papers >= 0"`
	TotalCitations int `json:"total_citations" gorm:"not null;default:0;check:chk_authors_citations,total_citations >= 0"`
	HIndex         int `json:"h_index" gorm:"not null;default:0"`

	PrimaryInstitution *string `json:"primary_institution,omitempty"`
	PrimaryCountry     *string `json:"primary_country,omitempty" gorm:"size:8"`

	FirstSeenDate *time.Time `json:"first_seen_date,omitempty"`
	LastSeenDate  *time.Time `json:"last_seen_date,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Author) TableName() string {
	return "authors"
}
