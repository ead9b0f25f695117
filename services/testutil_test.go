package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-atlas/models"
	"paper-atlas/providers/openalex"
)

// newTestDB öffnet eine In-Memory-Datenbank mit migriertem Schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// In-Memory-SQLite verliert die Daten bei mehr als einer Verbindung.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Paper{}, &models.Author{}, &models.PaperAuthor{}, &models.ImportRun{}))
	return db
}

func yearPtr(y int) *int { return &y }

// sampleWork baut ein vollständiges Work mit zwei Autoren: Alice (Erstautorin,
// corresponding, MIT/US) und Bob (Letztautor, Oxford/GB).
func sampleWork(id string) openalex.Work {
	return openalex.Work{
		ID:              "https://openalex.org/" + id,
		DOI:             "https://doi.org/10.1234/" + id,
		Title:           "Transformer Scaling Laws Revisited",
		PublicationYear: yearPtr(2024),
		PublicationDate: "2024-03-15",
		Type:            "article",
		Language:        "en",
		PrimaryLocation: &openalex.Location{
			Source: &openalex.Source{
				DisplayName:          "Journal of Machine Learning",
				HostOrganizationName: "JML Press",
				ISSNL:                "1234-5678",
				IsCore:               true,
			},
			PDFURL:         "https://example.org/" + id + ".pdf",
			LandingPageURL: "https://example.org/" + id,
			License:        "cc-by",
		},
		OpenAccess: openalex.OpenAccess{IsOA: true, OAStatus: "gold"},
		Authorships: []openalex.Authorship{
			{
				AuthorPosition:  "first",
				Author:          openalex.AuthorRef{ID: "https://openalex.org/A1", DisplayName: "Alice Ahrens", ORCID: "https://orcid.org/0000-0001-0000-0001"},
				IsCorresponding: true,
				Institutions: []openalex.Institution{
					{ID: "https://openalex.org/I1", DisplayName: "MIT", CountryCode: "US"},
				},
				Countries:             []string{"US"},
				RawAffiliationStrings: []string{"MIT, Cambridge, MA"},
			},
			{
				AuthorPosition: "last",
				Author:         openalex.AuthorRef{ID: "https://openalex.org/A2", DisplayName: "Bob Berger"},
				Institutions: []openalex.Institution{
					{ID: "https://openalex.org/I2", DisplayName: "Oxford", CountryCode: "GB"},
				},
				Countries:             []string{"GB"},
				RawAffiliationStrings: []string{"University of Oxford"},
			},
		},
		CitedByCount:         42,
		ReferencedWorksCount: 30,
		PrimaryTopic: &openalex.Topic{
			DisplayName: "Deep Learning",
			Score:       0.95,
			Field:       openalex.Named{DisplayName: "Computer Science"},
			Subfield:    openalex.Named{DisplayName: "Artificial Intelligence"},
		},
		Concepts: []openalex.Concept{
			{DisplayName: "Machine learning", Score: 0.8},
			{DisplayName: "Neural network", Score: 0.6},
		},
		Keywords: []openalex.Keyword{
			{DisplayName: "deep learning", Score: 0.7},
		},
		AbstractIndex: map[string][]int{"scaling": {0}},
		CreatedDate:   "2024-03-16",
		UpdatedDate:   "2024-03-20",
	}
}

func normalizeT(t *testing.T, w openalex.Work) *NormalizedRecord {
	t.Helper()
	rec, err := (&Normalizer{MinScore: 0.7}).NormalizeWork(&w)
	require.NoError(t, err)
	return rec
}

func nopLogger() *zap.Logger { return zap.NewNop() }
