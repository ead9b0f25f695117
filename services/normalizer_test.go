package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"paper-atlas/models"
	"paper-atlas/providers/openalex"
)

func TestNormalizeWorkBasic(t *testing.T) {
	rec := normalizeT(t, sampleWork("W1"))

	// Präfixe der IDs sind entfernt.
	require.Equal(t, "W1", rec.Paper.PaperID)
	require.NotNil(t, rec.Paper.DOI)
	require.Equal(t, "10.1234/W1", *rec.Paper.DOI)

	require.Equal(t, "Transformer Scaling Laws Revisited", rec.Paper.Title)
	require.NotNil(t, rec.Paper.PublicationDate)
	require.Equal(t, "Journal of Machine Learning", *rec.Paper.JournalName)
	require.True(t, rec.Paper.HasAbstract)
	require.True(t, rec.Paper.IsOpenAccess)

	require.Len(t, rec.Authorships, 2)

	alice := rec.Authorships[0]
	require.Equal(t, "A1", alice.Author.AuthorID)
	require.Equal(t, "0000-0001-0000-0001", *alice.Author.ORCID)
	require.Equal(t, models.PositionFirst, alice.Join.AuthorPosition)
	require.Equal(t, 1, alice.Join.AuthorSequence)
	require.True(t, alice.Join.IsCorresponding)

	bob := rec.Authorships[1]
	require.Equal(t, "A2", bob.Author.AuthorID)
	require.Nil(t, bob.Author.ORCID)
	require.Equal(t, models.PositionLast, bob.Join.AuthorPosition)
	require.Equal(t, 2, bob.Join.AuthorSequence)

	// Aggregatfelder
	require.Equal(t, 2, rec.Paper.AuthorCount)
	require.Equal(t, "Alice Ahrens", *rec.Paper.FirstAuthorName)
	require.Equal(t, "Alice Ahrens", *rec.Paper.CorrespondingAuthorName)
	require.Equal(t, 2, rec.Paper.InstitutionCount)
	require.Equal(t, 2, rec.Paper.CountryCount)
	require.Equal(t, "MIT", *rec.Paper.FirstInstitution)
	require.Equal(t, "US", *rec.Paper.FirstCountry)
}

func TestNormalizeWorkMissingID(t *testing.T) {
	w := sampleWork("W1")
	w.ID = ""

	_, err := (&Normalizer{}).NormalizeWork(&w)
	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "fehlende Paper-ID", malformed.Reason)
}

func TestNormalizeWorkMissingTitle(t *testing.T) {
	w := sampleWork("W1")
	w.Title = ""
	w.DisplayName = ""

	_, err := (&Normalizer{}).NormalizeWork(&w)
	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "W1", malformed.RecordID)
}

func TestNormalizeWorkTitleFallsBackToDisplayName(t *testing.T) {
	w := sampleWork("W1")
	w.Title = ""
	w.DisplayName = "Fallback Title"

	rec := normalizeT(t, w)
	require.Equal(t, "Fallback Title", rec.Paper.Title)
}

func TestNormalizeSingleAuthorIsFirst(t *testing.T) {
	w := sampleWork("W1")
	w.Authorships = w.Authorships[:1]

	rec := normalizeT(t, w)
	require.Len(t, rec.Authorships, 1)
	require.Equal(t, models.PositionFirst, rec.Authorships[0].Join.AuthorPosition)
	require.Equal(t, 1, rec.Authorships[0].Join.AuthorSequence)
}

func TestNormalizeFiltersInvalidAuthorships(t *testing.T) {
	w := sampleWork("W1")
	// Defektes Authorship in der Mitte: keine Autor-ID.
	w.Authorships = []openalex.Authorship{
		w.Authorships[0],
		{AuthorPosition: "middle", Author: openalex.AuthorRef{DisplayName: "Ghost"}},
		w.Authorships[1],
	}

	rec := normalizeT(t, w)

	// Die Sequenz bleibt lückenlos, die Positionen werden neu vergeben.
	require.Len(t, rec.Authorships, 2)
	require.Equal(t, 1, rec.Authorships[0].Join.AuthorSequence)
	require.Equal(t, 2, rec.Authorships[1].Join.AuthorSequence)
	require.Equal(t, models.PositionFirst, rec.Authorships[0].Join.AuthorPosition)
	require.Equal(t, models.PositionLast, rec.Authorships[1].Join.AuthorPosition)
	require.Equal(t, 2, rec.Paper.AuthorCount)
}

func TestNormalizeOAStatusDrivesOpenAccess(t *testing.T) {
	w := sampleWork("W1")
	w.OpenAccess = openalex.OpenAccess{IsOA: false, OAStatus: "gold"}
	rec := normalizeT(t, w)
	require.True(t, rec.Paper.IsOpenAccess)
	require.Equal(t, "gold", *rec.Paper.OAStatus)

	w = sampleWork("W2")
	w.OpenAccess = openalex.OpenAccess{IsOA: true, OAStatus: "closed"}
	rec = normalizeT(t, w)
	require.False(t, rec.Paper.IsOpenAccess)

	// Ohne Status bleibt das Paper geschlossen, auch wenn die Quelle
	// is_oa=true meldet.
	w = sampleWork("W3")
	w.OpenAccess = openalex.OpenAccess{IsOA: true}
	rec = normalizeT(t, w)
	require.False(t, rec.Paper.IsOpenAccess)
	require.Nil(t, rec.Paper.OAStatus)
}

func TestNormalizeAffiliationArraysAligned(t *testing.T) {
	w := sampleWork("W1")
	// Eine Institution, aber zwei Rohstrings: die Arrays müssen auf die
	// längere Liste aufgefüllt werden.
	w.Authorships = []openalex.Authorship{{
		AuthorPosition: "first",
		Author:         openalex.AuthorRef{ID: "https://openalex.org/A1", DisplayName: "Alice Ahrens"},
		Institutions: []openalex.Institution{
			{ID: "https://openalex.org/I1", DisplayName: "MIT"},
		},
		Countries:             []string{"US", "DE"},
		RawAffiliationStrings: []string{"MIT, Cambridge", "Independent Researcher, Berlin"},
	}}

	rec := normalizeT(t, w)
	join := rec.Authorships[0].Join

	var names, ids, countries, raw []string
	require.NoError(t, json.Unmarshal(join.InstitutionNames, &names))
	require.NoError(t, json.Unmarshal(join.InstitutionIDs, &ids))
	require.NoError(t, json.Unmarshal(join.Countries, &countries))
	require.NoError(t, json.Unmarshal(join.RawAffiliationStrings, &raw))

	require.Equal(t, []string{"MIT", ""}, names)
	require.Equal(t, []string{"I1", ""}, ids)
	// Das zweite Land kommt aus der Länderliste des Authorships.
	require.Equal(t, []string{"US", "DE"}, countries)
	require.Equal(t, []string{"MIT, Cambridge", "Independent Researcher, Berlin"}, raw)
}

func TestNormalizeTopConcepts(t *testing.T) {
	w := sampleWork("W1")
	w.Concepts = []openalex.Concept{
		{DisplayName: "C-low", Score: 0.1},
		{DisplayName: "C-high", Score: 0.9},
		{DisplayName: "C-mid", Score: 0.5},
		{DisplayName: "C-tiny", Score: 0.05},
	}

	rec := normalizeT(t, w)
	require.Equal(t, "C-high", *rec.Paper.TopConcept1)
	require.Equal(t, "C-mid", *rec.Paper.TopConcept2)
	require.Equal(t, "C-low", *rec.Paper.TopConcept3)
}

func TestNormalizeUnicodeNFC(t *testing.T) {
	w := sampleWork("W1")
	// "é" als e + Combining Acute Accent.
	w.Title = "Résumé Parsing"

	rec := normalizeT(t, w)
	require.Equal(t, "Résumé Parsing", rec.Paper.Title)
}
