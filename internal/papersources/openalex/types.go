// Package openalex provides a client for the OpenAlex API.
//
// OpenAlex is a free, open catalog of scholarly works, authors, venues,
// institutions, and concepts. The catalog ingests works per level-1 concept
// through the cursor Paginator and looks up single works and authors.
//
// API Documentation: https://docs.openalex.org/
package openalex

// Page is one page of a list endpoint. Meta and Results are pointers so a body
// that lacks either field can be told apart from an empty page.
type Page[T any] struct {
	Meta    *Meta `json:"meta"`
	Results *[]T  `json:"results"`
}

// Meta contains metadata about a list response including the cursor.
type Meta struct {
	Count      int    `json:"count"`
	DBTime     int    `json:"db_response_time_ms"`
	Page       *int   `json:"page"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// Work represents an academic work in OpenAlex. ID is kept untyped because
// malformed records carry null or non-string ids.
type Work struct {
	ID              any           `json:"id"`
	DOI             string        `json:"doi"`
	Title           string        `json:"title"`
	DisplayName     string        `json:"display_name"`
	PublicationYear int           `json:"publication_year"`
	PublicationDate string        `json:"publication_date"`
	Type            string        `json:"type"`
	CitedByCount    int           `json:"cited_by_count"`
	OpenAccess      *OpenAccess   `json:"open_access"`
	Authorships     []Authorship  `json:"authorships"`
	Concepts        []Concept     `json:"concepts"`
	Locations       []Location    `json:"locations"`
	PrimaryLocation *Location     `json:"primary_location"`
	HostVenue       *HostVenue    `json:"host_venue"`
	CountsByYear    []CountByYear `json:"counts_by_year"`

	// AbstractInvertedIndex maps each word to the positions it occurs at.
	AbstractInvertedIndex InvertedIndex `json:"abstract_inverted_index"`
}

// IDString returns the work id when it is a string, or "".
func (w *Work) IDString() string {
	s, _ := w.ID.(string)
	return s
}

// OpenAccess contains open access information for a work.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAURL    string `json:"oa_url"`
	OAStatus string `json:"oa_status"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	AuthorPosition string        `json:"author_position"`
	Author         *AuthorInfo   `json:"author"`
	Institutions   []Institution `json:"institutions"`
}

// AuthorInfo contains the dehydrated author embedded in a work.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Orcid       string `json:"orcid"`
}

// Institution represents an academic institution embedded in an authorship.
type Institution struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name"`
	CountryCode *string `json:"country_code"`
	Type        string  `json:"type"`
}

// Concept is a tagged concept on a work, or an entry of the concepts listing.
type Concept struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Level       int     `json:"level"`
	Score       float64 `json:"score"`
	WorksCount  int     `json:"works_count"`
}

// Location represents where a work is available.
type Location struct {
	IsOA           bool    `json:"is_oa"`
	LandingPageURL string  `json:"landing_page_url"`
	PDFURL         string  `json:"pdf_url"`
	Source         *Source `json:"source"`
}

// Source represents a publication venue (journal, repository, etc.).
type Source struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// HostVenue is the legacy venue object still returned for older works.
type HostVenue struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// CountByYear is one year of a work's citation history.
type CountByYear struct {
	Year         int `json:"year"`
	CitedByCount int `json:"cited_by_count"`
}

// AuthorProfile is the full author entity from /authors.
type AuthorProfile struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	CitedByCount int    `json:"cited_by_count"`
	WorksCount   int    `json:"works_count"`
}
