package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"paper-atlas/models"
	"paper-atlas/providers/openalex"
)

func TestUpsertInsertThenUpdate(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	rec := normalizeT(t, sampleWork("W1"))
	result, err := engine.UpsertRecord(ctx, rec)
	require.NoError(t, err)

	require.Equal(t, EntityCounts{Inserted: 1}, result.Papers)
	require.Equal(t, EntityCounts{Inserted: 2}, result.Authors)
	require.Equal(t, EntityCounts{Inserted: 2}, result.Authorships)

	// Zweiter Lauf mit demselben Record: alles Updates, keine Duplikate.
	rec = normalizeT(t, sampleWork("W1"))
	result, err = engine.UpsertRecord(ctx, rec)
	require.NoError(t, err)

	require.Equal(t, EntityCounts{Updated: 1}, result.Papers)
	require.Equal(t, EntityCounts{Updated: 2}, result.Authors)
	require.Equal(t, EntityCounts{Updated: 2}, result.Authorships)

	var paperCount, authorCount, joinCount int64
	db.Model(&models.Paper{}).Count(&paperCount)
	db.Model(&models.Author{}).Count(&authorCount)
	db.Model(&models.PaperAuthor{}).Count(&joinCount)
	require.Equal(t, int64(1), paperCount)
	require.Equal(t, int64(2), authorCount)
	require.Equal(t, int64(2), joinCount)
}

func TestUpsertUpdateKeepsIngestionTimestamps(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	_, err := engine.UpsertRecord(ctx, normalizeT(t, sampleWork("W1")))
	require.NoError(t, err)

	var before models.Paper
	require.NoError(t, db.Where("paper_id = ?", "W1").First(&before).Error)

	// Re-Import mit abweichendem Quell-created_date: created_date und
	// ingested_at bleiben stehen, updated_date zieht nach.
	w := sampleWork("W1")
	w.CreatedDate = "2025-01-01"
	w.UpdatedDate = "2025-02-02"
	_, err = engine.UpsertRecord(ctx, normalizeT(t, w))
	require.NoError(t, err)

	var after models.Paper
	require.NoError(t, db.Where("paper_id = ?", "W1").First(&after).Error)

	require.Equal(t, before.CreatedDate.Format("2006-01-02"), after.CreatedDate.Format("2006-01-02"))
	require.True(t, before.IngestedAt.Equal(after.IngestedAt))
	require.Equal(t, "2025-02-02", after.UpdatedDate.Format("2006-01-02"))
}

func TestUpsertRecomputesAuthorMetrics(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	_, err := engine.UpsertRecord(ctx, normalizeT(t, sampleWork("W1")))
	require.NoError(t, err)

	var alice models.Author
	require.NoError(t, db.Where("author_id = ?", "A1").First(&alice).Error)
	require.Equal(t, 1, alice.TotalPapers)
	require.Equal(t, 42, alice.TotalCitations)
	require.Equal(t, 1, alice.HIndex)
	require.Equal(t, "MIT", *alice.PrimaryInstitution)
	require.Equal(t, "US", *alice.PrimaryCountry)
	require.NotNil(t, alice.FirstSeenDate)

	// Zweites Paper derselben Autorin erhöht die Aggregate.
	w2 := sampleWork("W2")
	w2.CitedByCount = 10
	w2.PublicationDate = "2025-01-01"
	_, err = engine.UpsertRecord(ctx, normalizeT(t, w2))
	require.NoError(t, err)

	require.NoError(t, db.Where("author_id = ?", "A1").First(&alice).Error)
	require.Equal(t, 2, alice.TotalPapers)
	require.Equal(t, 52, alice.TotalCitations)
	require.Equal(t, 2, alice.HIndex)
	require.Equal(t, "2025-01-01", alice.LastSeenDate.Format("2006-01-02"))
}

func TestUpsertRemovedAuthorship(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	_, err := engine.UpsertRecord(ctx, normalizeT(t, sampleWork("W1")))
	require.NoError(t, err)

	// Re-Import ohne Bob, dafür mit Carol: Bobs Zeile verschwindet, die
	// Sequenz wird neu vergeben.
	w := sampleWork("W1")
	w.Authorships[1] = openalex.Authorship{
		AuthorPosition: "last",
		Author:         openalex.AuthorRef{ID: "https://openalex.org/A3", DisplayName: "Carol Clasen"},
	}
	result, err := engine.UpsertRecord(ctx, normalizeT(t, w))
	require.NoError(t, err)

	require.Equal(t, EntityCounts{Inserted: 1, Deleted: 1, Updated: 1}, result.Authorships)

	var joins []models.PaperAuthor
	require.NoError(t, db.Where("paper_id = ?", "W1").Order("author_sequence ASC").Find(&joins).Error)
	require.Len(t, joins, 2)
	require.Equal(t, "A1", joins[0].AuthorID)
	require.Equal(t, "A3", joins[1].AuthorID)
	require.Equal(t, 2, joins[1].AuthorSequence)

	// Bob bleibt als Autor bestehen, seine Aggregate sind genullt.
	var bob models.Author
	require.NoError(t, db.Where("author_id = ?", "A2").First(&bob).Error)
	require.Equal(t, 0, bob.TotalPapers)
	require.Equal(t, 0, bob.TotalCitations)
	require.Nil(t, bob.FirstSeenDate)
}

func TestUpsertReorderedAuthors(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	_, err := engine.UpsertRecord(ctx, normalizeT(t, sampleWork("W1")))
	require.NoError(t, err)

	// Alice und Bob tauschen die Plätze. Der Unique-Index auf der Sequenz
	// darf dabei nicht kollidieren.
	w := sampleWork("W1")
	w.Authorships[0], w.Authorships[1] = w.Authorships[1], w.Authorships[0]
	_, err = engine.UpsertRecord(ctx, normalizeT(t, w))
	require.NoError(t, err)

	var joins []models.PaperAuthor
	require.NoError(t, db.Where("paper_id = ?", "W1").Order("author_sequence ASC").Find(&joins).Error)
	require.Len(t, joins, 2)
	require.Equal(t, "A2", joins[0].AuthorID)
	require.Equal(t, models.PositionFirst, joins[0].AuthorPosition)
	require.Equal(t, "A1", joins[1].AuthorID)
	require.Equal(t, models.PositionLast, joins[1].AuthorPosition)
}

func TestUpsertRollbackOnDuplicatePair(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())
	ctx := context.Background()

	// Handgebauter Record mit doppeltem (paper_id, author_id)-Paar: der
	// zweite Insert verletzt den Primärschlüssel, die gesamte Transaktion
	// muss zurückrollen.
	rec := normalizeT(t, sampleWork("W1"))
	dup := rec.Authorships[0]
	dup.Join.AuthorSequence = 2
	dup.Join.AuthorPosition = models.PositionLast
	rec.Authorships[1] = dup

	_, err := engine.UpsertRecord(ctx, rec)
	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.Equal(t, "authorship", upsertErr.Entity)

	var paperCount, authorCount, joinCount int64
	db.Model(&models.Paper{}).Count(&paperCount)
	db.Model(&models.Author{}).Count(&authorCount)
	db.Model(&models.PaperAuthor{}).Count(&joinCount)
	require.Zero(t, paperCount)
	require.Zero(t, authorCount)
	require.Zero(t, joinCount)
}

func TestUpsertRejectsBrokenSequence(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())

	rec := normalizeT(t, sampleWork("W1"))
	rec.Authorships[1].Join.AuthorSequence = 5

	_, err := engine.UpsertRecord(context.Background(), rec)
	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)

	var paperCount int64
	db.Model(&models.Paper{}).Count(&paperCount)
	require.Zero(t, paperCount)
}

func TestUpsertRejectsMissingFirstAuthor(t *testing.T) {
	db := newTestDB(t)
	engine := NewUpsertEngine(db, nopLogger())

	rec := normalizeT(t, sampleWork("W1"))
	rec.Authorships[0].Join.AuthorPosition = models.PositionMiddle

	_, err := engine.UpsertRecord(context.Background(), rec)
	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	require.Contains(t, upsertErr.Reason, "Erstautor")
}
