package domain

import "time"

// Catalog table names. They double as snapshot file stems and metric labels.
const (
	TableCategory           = "category"
	TableInstitution        = "institution"
	TableAuthor             = "author"
	TablePaper              = "paper"
	TableAbstract           = "abstract"
	TableYearCitation       = "yearcitation"
	TableAuthorPaper        = "authorpaper"
	TableGuest              = "guest"
	TableGuestFavorite      = "guestfavorite"
	TableGuestCategoryCount = "guestcategorycount"
)

// Category is a level-1 OpenAlex concept. AlexID is the bare concept id ("41008148").
type Category struct {
	ID     int64
	Name   string
	AlexID string
}

// Institution is an affiliation. AlexID is nil when the source carried no usable
// id; such rows never merge.
type Institution struct {
	ID          int64
	Name        *string
	CountryCode *string
	AlexID      *string
}

// Author is a person that appears on at least one ingested paper.
type Author struct {
	ID            int64
	Name          string
	AlexID        string
	InstitutionID *int64
	CitationTotal *int
	Topics        [3]*string
}

// Paper is an ingested work.
type Paper struct {
	ID               int64
	Title            string
	CategoryID       *int64
	InstitutionID    *int64
	Citation         int
	OpenAccess       bool
	Locations        *string
	AnnouncementDate *time.Time
	Submit           *string
	AlexID           string
	WeeklyCount      int
}

// Abstract holds the reconstructed abstract text of a paper.
type Abstract struct {
	PaperID int64
	Context *string
}

// YearCitation holds the three most recent yearly citation counts of a paper,
// most recent first.
type YearCitation struct {
	PaperID int64
	Counts  [3]int
}

// AuthorPaper links an author to a paper.
type AuthorPaper struct {
	PaperID  int64
	AuthorID int64
}

// Guest is a reader account owned by the serving layer.
type Guest struct {
	ID        int64
	Name      string
	Pwd       string
	Interests [3]*string
}

// GuestFavorite is a paper bookmarked by a guest.
type GuestFavorite struct {
	GuestID int64
	PaperID int64
}

// GuestCategoryCount counts how often a guest viewed a category.
type GuestCategoryCount struct {
	GuestID    int64
	CategoryID int64
	Count      int
}

// UpsertResult is the surrogate id of an upserted row and whether the row was new.
type UpsertResult struct {
	ID       int64
	Inserted bool
}
