package models

import (
	"time"
)

// Status-Werte eines Import-Laufs.
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusPartial   = "PARTIAL"
	RunStatusAborted   = "ABORTED"
)

// ImportRun persistiert das Ergebnis eines Batch-Imports, damit das Dashboard
// die Lade-Historie anzeigen kann. COMPLETED = alle Records geladen, PARTIAL =
// einzelne Records übersprungen, ABORTED = Infrastrukturfehler.
type ImportRun struct {
	ID uint `json:"id" gorm:"primaryKey;autoIncrement"`

	TriggerSource string     `json:"trigger_source" gorm:"size:64;not null"`
	Status        string     `json:"status" gorm:"size:16;not null;default:'PENDING';index"`
	ErrorMessage  *string    `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`

	RecordsProcessed int `json:"records_processed" gorm:"not null;default:0"`
	RecordsFailed    int `json:"records_failed" gorm:"not null;default:0"`

	PapersInserted      int `json:"papers_inserted" gorm:"not null;default:0"`
	PapersUpdated       int `json:"papers_updated" gorm:"not null;default:0"`
	AuthorsInserted     int `json:"authors_inserted" gorm:"not null;default:0"`
	AuthorsUpdated      int `json:"authors_updated" gorm:"not null;default:0"`
	AuthorshipsInserted int `json:"authorships_inserted" gorm:"not null;default:0"`
	AuthorshipsUpdated  int `json:"authorships_updated" gorm:"not null;default:0"`
	AuthorshipsDeleted  int `json:"authorships_deleted" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (ImportRun) TableName() string {
	return "import_runs"
}
