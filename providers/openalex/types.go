package openalex

// Work ist ein Roh-Record der OpenAlex Works-API. Wir parsen nur die Felder,
// die der Import tatsächlich verwendet; alles andere wird verworfen.
type Work struct {
	ID                   string              `json:"id"`
	DOI                  string              `json:"doi"`
	Title                string              `json:"title"`
	DisplayName          string              `json:"display_name"`
	PublicationYear      *int                `json:"publication_year"`
	PublicationDate      string              `json:"publication_date"`
	Type                 string              `json:"type"`
	Language             string              `json:"language"`
	PrimaryLocation      *Location           `json:"primary_location"`
	OpenAccess           OpenAccess          `json:"open_access"`
	Authorships          []Authorship        `json:"authorships"`
	CitedByCount         int                 `json:"cited_by_count"`
	ReferencedWorksCount int                 `json:"referenced_works_count"`
	FWCI                 *float64            `json:"fwci"`
	CitationPercentile   *PercentileYear     `json:"citation_normalized_percentile"`
	PrimaryTopic         *Topic              `json:"primary_topic"`
	Topics               []Topic             `json:"topics"`
	Concepts             []Concept           `json:"concepts"`
	Keywords             []Keyword           `json:"keywords"`
	IsRetracted          bool                `json:"is_retracted"`
	IsParatext           bool                `json:"is_paratext"`
	AbstractIndex        map[string][]int    `json:"abstract_inverted_index"`
	CreatedDate          string              `json:"created_date"`
	UpdatedDate          string              `json:"updated_date"`
}

// Authorship ist ein Eintrag der geordneten Autorenliste eines Works.
type Authorship struct {
	AuthorPosition        string        `json:"author_position"`
	Author                AuthorRef     `json:"author"`
	IsCorresponding       bool          `json:"is_corresponding"`
	Institutions          []Institution `json:"institutions"`
	Countries             []string      `json:"countries"`
	RawAffiliationStrings []string      `json:"raw_affiliation_strings"`
}

// AuthorRef identifiziert die Autorin bzw. den Autor eines Authorships.
type AuthorRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ORCID       string `json:"orcid"`
}

// Institution ist eine Affiliation innerhalb eines Authorships.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code"`
}

// Location beschreibt den primären Veröffentlichungsort eines Works.
type Location struct {
	Source         *Source `json:"source"`
	PDFURL         string  `json:"pdf_url"`
	LandingPageURL string  `json:"landing_page_url"`
	License        string  `json:"license"`
}

// Source ist das Journal bzw. Repository hinter einer Location.
type Source struct {
	DisplayName          string `json:"display_name"`
	HostOrganizationName string `json:"host_organization_name"`
	ISSNL                string `json:"issn_l"`
	IsCore               bool   `json:"is_core"`
}

// OpenAccess bündelt die OA-Angaben eines Works.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status"`
	OAURL    string `json:"oa_url"`
}

// PercentileYear ist die zitationsnormalisierte Perzentil-Angabe.
type PercentileYear struct {
	Value float64 `json:"value"`
}

// Topic ist ein Thema samt Feld/Unterfeld-Zuordnung.
type Topic struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	Field       Named   `json:"field"`
	Subfield    Named   `json:"subfield"`
}

// Named ist ein benanntes Unterobjekt (Feld, Unterfeld, Domain).
type Named struct {
	DisplayName string `json:"display_name"`
}

// Concept ist ein (veraltetes, aber weiterhin geliefertes) OpenAlex-Konzept.
type Concept struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	Score        float64 `json:"score"`
	CitedByCount int     `json:"cited_by_count"`
}

// Keyword ist ein Schlagwort mit Relevanz-Score.
type Keyword struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}
