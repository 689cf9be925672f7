// Package snapshot moves the catalog between databases as JSON files.
//
// The Exporter writes one flat JSON array per table, naming every foreign key
// by its external id so the files carry no surrogate ids. The Importer reads
// those files (and sharded variants) into another database, resolving the
// external ids on the target. The Shipper copies a snapshot directory to and
// from S3.
package snapshot

import (
	"encoding/json"
	"time"
)

// FormatVersion is written to the manifest. The importer refuses newer versions.
const FormatVersion = 1

// ManifestFile is the manifest written next to the table files.
const ManifestFile = "manifest.yaml"

// dateLayout is the announcement_date format.
const dateLayout = time.DateOnly

// exportedTables lists the files an export writes, in write order. Abstracts
// and year citations are embedded in paper.json.
var exportedTables = []string{
	"category",
	"institution",
	"author",
	"paper",
	"authorpaper",
	"guest",
	"guestfavorite",
	"guestcategorycount",
}

// shardPrefixes are the extra file prefixes the importer accepts per table.
var shardPrefixes = map[string][]string{
	"category":    {"categories"},
	"institution": {"institutions"},
	"author":      {"authors"},
	"paper":       {"papers"},
}

// CategoryRecord is one entry of category.json.
type CategoryRecord struct {
	AlexCategoryID string `json:"alex_category_id"`
	CategoryName   string `json:"category_name"`
}

// InstitutionRecord is one entry of institution.json.
type InstitutionRecord struct {
	AlexInstitutionID *string `json:"alex_institution_id"`
	InstitutionName   *string `json:"institution_name"`
	CountryCode       *string `json:"country_code"`
}

// AuthorRecord is one entry of author.json.
type AuthorRecord struct {
	AlexAuthorID      string  `json:"alex_author_id"`
	AuthorName        string  `json:"author_name"`
	InstitutionAlexID *string `json:"institution_alex_id"`
	CitationTotal     *int    `json:"citation_total"`
	MainTopic1        *string `json:"main_topic_1"`
	MainTopic2        *string `json:"main_topic_2"`
	MainTopic3        *string `json:"main_topic_3"`
}

// YearCount is one year of a paper's recent citation history.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// PaperRecord is one entry of paper.json, including its abstract and recent
// citation counts.
type PaperRecord struct {
	AlexPaperID       string         `json:"alex_paper_id"`
	Title             string         `json:"title"`
	CategoryAlexID    *string        `json:"category_alex_id"`
	InstitutionAlexID *string        `json:"institution_alex_id"`
	Citation          int            `json:"citation"`
	OpenAccess        bool           `json:"open_access"`
	Locations         *string        `json:"locations"`
	AnnouncementDate  *string        `json:"announcement_date"`
	Submit            *string        `json:"submit"`
	Abstract          OptionalString `json:"abstract"`
	CitedByYear       []YearCount    `json:"cited_by_year"`
}

// AuthorPaperRecord is one entry of authorpaper.json.
type AuthorPaperRecord struct {
	AlexPaperID  string `json:"alex_paper_id"`
	AlexAuthorID string `json:"alex_author_id"`
}

// GuestRecord is one entry of guest.json.
type GuestRecord struct {
	GuestName string  `json:"guestname"`
	Pwd       string  `json:"pwd"`
	Interest1 *string `json:"interest_1"`
	Interest2 *string `json:"interest_2"`
	Interest3 *string `json:"interest_3"`
}

// GuestFavoriteRecord is one entry of guestfavorite.json.
type GuestFavoriteRecord struct {
	GuestName   string `json:"guestname"`
	AlexPaperID string `json:"alex_paper_id"`
}

// GuestCategoryCountRecord is one entry of guestcategorycount.json.
type GuestCategoryCountRecord struct {
	GuestName      string `json:"guestname"`
	AlexCategoryID string `json:"alex_category_id"`
	Count          int    `json:"count"`
}

// Manifest describes an exported snapshot.
type Manifest struct {
	FormatVersion int            `yaml:"format_version"`
	ExportedAt    time.Time      `yaml:"exported_at"`
	Tables        map[string]int `yaml:"tables"`
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Value *string
	Set   bool
}

// Some returns a set OptionalString holding v.
func Some(v *string) OptionalString {
	return OptionalString{Value: v, Set: true}
}

// MarshalJSON implements json.Marshaler.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	o.Value = nil
	if string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}
