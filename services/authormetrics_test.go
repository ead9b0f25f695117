package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-atlas/models"
)

func TestHIndex(t *testing.T) {
	tests := []struct {
		name      string
		citations []int
		expected  int
	}{
		{"empty", nil, 0},
		{"all zero", []int{0, 0, 0}, 0},
		{"classic", []int{5, 3, 1}, 2},
		{"uniform", []int{10, 10, 10}, 3},
		{"single highly cited", []int{100}, 1},
		{"long tail", []int{9, 7, 6, 2, 1, 1, 0}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, hIndex(append([]int(nil), tt.citations...)))
		})
	}
}

func seedAuthorship(t *testing.T, db *gorm.DB, paperID, authorID string, cited int, pubDate string, institution, country string) {
	t.Helper()

	date, err := time.Parse("2006-01-02", pubDate)
	require.NoError(t, err)

	require.NoError(t, db.FirstOrCreate(&models.Paper{
		PaperID:         paperID,
		Title:           "Paper " + paperID,
		CitedByCount:    cited,
		PublicationDate: &date,
		AuthorCount:     1,
	}, models.Paper{PaperID: paperID}).Error)
	require.NoError(t, db.FirstOrCreate(&models.Author{
		AuthorID:    authorID,
		DisplayName: "Author " + authorID,
	}, models.Author{AuthorID: authorID}).Error)
	require.NoError(t, db.Omit(clause.Associations).Create(&models.PaperAuthor{
		PaperID:          paperID,
		AuthorID:         authorID,
		AuthorPosition:   models.PositionFirst,
		AuthorSequence:   1,
		InstitutionNames: mustJSON([]string{institution}),
		Countries:        mustJSON([]string{country}),
	}).Error)
}

func TestRecalculateAggregates(t *testing.T) {
	db := newTestDB(t)
	recalc := &MetricRecalculator{}

	seedAuthorship(t, db, "W1", "A1", 30, "2022-05-01", "MIT", "US")
	seedAuthorship(t, db, "W2", "A1", 5, "2023-06-01", "Oxford", "GB")
	seedAuthorship(t, db, "W3", "A1", 12, "2024-07-01", "MIT", "US")

	require.NoError(t, recalc.Recalculate(db, "A1"))

	var author models.Author
	require.NoError(t, db.Where("author_id = ?", "A1").First(&author).Error)

	require.Equal(t, 3, author.TotalPapers)
	require.Equal(t, 47, author.TotalCitations)
	require.Equal(t, 3, author.HIndex)
	require.Equal(t, "MIT", *author.PrimaryInstitution)
	require.Equal(t, "US", *author.PrimaryCountry)
	require.Equal(t, "2022-05-01", author.FirstSeenDate.Format("2006-01-02"))
	require.Equal(t, "2024-07-01", author.LastSeenDate.Format("2006-01-02"))
}

func TestRecalculateTieBreaksOnLatestPublication(t *testing.T) {
	db := newTestDB(t)
	recalc := &MetricRecalculator{}

	// Je eine Publikation pro Institution: die jüngere gewinnt.
	seedAuthorship(t, db, "W1", "A1", 1, "2020-01-01", "MIT", "US")
	seedAuthorship(t, db, "W2", "A1", 1, "2024-01-01", "Oxford", "GB")

	require.NoError(t, recalc.Recalculate(db, "A1"))

	var author models.Author
	require.NoError(t, db.Where("author_id = ?", "A1").First(&author).Error)
	require.Equal(t, "Oxford", *author.PrimaryInstitution)
	require.Equal(t, "GB", *author.PrimaryCountry)
}

func TestRecalculateZeroesWithoutAuthorships(t *testing.T) {
	db := newTestDB(t)
	recalc := &MetricRecalculator{}

	seedAuthorship(t, db, "W1", "A1", 10, "2023-01-01", "MIT", "US")
	require.NoError(t, recalc.Recalculate(db, "A1"))

	require.NoError(t, db.Where("paper_id = ?", "W1").Delete(&models.PaperAuthor{}).Error)
	require.NoError(t, recalc.Recalculate(db, "A1"))

	var author models.Author
	require.NoError(t, db.Where("author_id = ?", "A1").First(&author).Error)
	require.Zero(t, author.TotalPapers)
	require.Zero(t, author.TotalCitations)
	require.Zero(t, author.HIndex)
	require.Nil(t, author.PrimaryInstitution)
	require.Nil(t, author.FirstSeenDate)
	require.Nil(t, author.LastSeenDate)
}
