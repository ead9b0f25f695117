package models

import (
	"time"

	"gorm.io/datatypes"
)

// Autoren-Positionen innerhalb eines Papers.
const (
	PositionFirst  = "first"
	PositionMiddle = "middle"
	PositionLast   = "last"
)

// PaperAuthor ist die Join-Entität zwischen Paper und Author. Pro Paar
// (paper_id, author_id) existiert genau eine Zeile; bei Re-Import wird sie
// aktualisiert, nicht dupliziert. Die Affiliations-Arrays sind parallel:
// gleicher Index = gleiche Anstellung (Institution/Land/Rohstring).
type PaperAuthor struct {
	PaperID  string `json:"paper_id" gorm:"primaryKey;size:32;uniqueIndex:idx_paper_authors_seq"`
	AuthorID string `json:"author_id" gorm:"primaryKey;size:32;index"`

	Paper  Paper  `json:"-" gorm:"foreignKey:PaperID;references:PaperID;constraint:OnDelete:CASCADE"`
	Author Author `json:"-" gorm:"foreignKey:AuthorID;references:AuthorID;constraint:OnDelete:CASCADE"`

	AuthorPosition  string `json:"author_position" gorm:"size:16;not null;index"`
	AuthorSequence  int    `json:"author_sequence" gorm:"not null;uniqueIndex:idx_paper_authors_seq;check:chk_paper_authors_seq,author_sequence > 0"`
	IsCorresponding bool   `json:"is_corresponding" gorm:"not null;default:false"`

	InstitutionNames      datatypes.JSON `json:"institution_names,omitempty" gorm:"type:jsonb"`
	InstitutionIDs        datatypes.JSON `json:"institution_ids,omitempty" gorm:"type:jsonb"`
	Countries             datatypes.JSON `json:"countries,omitempty" gorm:"type:jsonb"`
	RawAffiliationStrings datatypes.JSON `json:"raw_affiliation_strings,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (PaperAuthor) TableName() string {
	return "paper_authors"
}
