package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
)

// OpenAlex id markers.
const (
	MarkerWork        = "W"
	MarkerAuthor      = "A"
	MarkerInstitution = "I"
	MarkerConcept     = "C"
)

// MaxAbstractPosition bounds the word array an inverted index may ask for.
const MaxAbstractPosition = 100_000

// ExtractID reduces an OpenAlex id or URL to its bare form. It keeps the last
// path segment, requires marker to occur in it and removes every occurrence
// of marker: "https://openalex.org/W123" with marker "W" yields "123".
func ExtractID(raw any, marker string) (string, error) {
	seg, err := lastSegment(raw)
	if err != nil {
		return "", err
	}
	if marker == "" || !strings.Contains(seg, marker) {
		return "", fmt.Errorf("%w: %q has no %q marker", domain.ErrInvalidExternalID, seg, marker)
	}
	id := strings.ReplaceAll(seg, marker, "")
	if id == "" {
		return "", fmt.Errorf("%w: %q is only a marker", domain.ErrInvalidExternalID, seg)
	}
	return id, nil
}

// ExtractIDStrict is ExtractID that only accepts the marker as a prefix and
// strips just that prefix.
func ExtractIDStrict(raw any, marker string) (string, error) {
	seg, err := lastSegment(raw)
	if err != nil {
		return "", err
	}
	if marker == "" || !strings.HasPrefix(seg, marker) || len(seg) == len(marker) {
		return "", fmt.Errorf("%w: %q does not start with %q", domain.ErrInvalidExternalID, seg, marker)
	}
	return strings.TrimPrefix(seg, marker), nil
}

func lastSegment(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %T is not a string", domain.ErrInvalidExternalID, raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidExternalID)
	}
	seg := s[strings.LastIndex(s, "/")+1:]
	if seg == "" {
		return "", fmt.Errorf("%w: %q ends with a slash", domain.ErrInvalidExternalID, s)
	}
	return seg, nil
}

// ReconstructAbstract rebuilds text from an inverted index. Every word is
// placed at each of its positions in index order, so a later word takes over
// a shared position. Unfilled positions stay empty and the words are joined
// with single spaces: {"a":[0],"b":[1,3]} gives "a b  b".
// It returns nil for an empty index, an index with no usable position, or one
// whose largest position exceeds MaxAbstractPosition.
func ReconstructAbstract(index openalex.InvertedIndex) *string {
	if len(index) == 0 {
		return nil
	}

	maxPos := -1
	for _, term := range index {
		for _, pos := range term.Positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	if maxPos < 0 || maxPos > MaxAbstractPosition {
		return nil
	}

	words := make([]string, maxPos+1)
	for _, term := range index {
		for _, pos := range term.Positions {
			if pos >= 0 {
				words[pos] = term.Word
			}
		}
	}

	text := strings.Join(words, " ")
	return &text
}

// LandingPage returns the first non-empty landing page URL in list order.
func LandingPage(locations []openalex.Location) *string {
	for _, loc := range locations {
		if loc.LandingPageURL != "" {
			url := loc.LandingPageURL
			return &url
		}
	}
	return nil
}

// YearCitations returns the citation counts of the three most recent years on
// record, most recent first, zero padded.
func YearCitations(counts []openalex.CountByYear) [3]int {
	sorted := make([]openalex.CountByYear, len(counts))
	copy(sorted, counts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Year > sorted[j].Year
	})

	var out [3]int
	for i := 0; i < len(out) && i < len(sorted); i++ {
		out[i] = sorted[i].CitedByCount
	}
	return out
}

// SelectCategory returns the first level-1 concept. When target is non-empty
// only a concept whose bare id equals target qualifies.
func SelectCategory(concepts []openalex.Concept, target string) *openalex.Concept {
	for i := range concepts {
		c := &concepts[i]
		if c.Level != 1 {
			continue
		}
		if target == "" {
			return c
		}
		if id, err := ExtractID(c.ID, MarkerConcept); err == nil && id == target {
			return c
		}
	}
	return nil
}

// FirstInstitution returns the first institution of the first authorship.
// Later authorships are not consulted.
func FirstInstitution(authorships []openalex.Authorship) *openalex.Institution {
	if len(authorships) == 0 || len(authorships[0].Institutions) == 0 {
		return nil
	}
	inst := authorships[0].Institutions[0]
	return &inst
}

// NormalizedCategory is the category row of a normalized work.
type NormalizedCategory struct {
	AlexID string `validate:"required,alphanum"`
	Name   string
}

// NormalizedInstitution is the institution row of a normalized work. AlexID is
// nil when the source id was unusable.
type NormalizedInstitution struct {
	AlexID      *string
	Name        *string
	CountryCode *string
}

// NormalizedAuthor is one author of a normalized work.
type NormalizedAuthor struct {
	AlexID string `validate:"required,alphanum"`
	Name   string
}

// NormalizedWork is a work flattened into the rows the writer stores.
type NormalizedWork struct {
	AlexPaperID      string `validate:"required,alphanum"`
	Title            string `validate:"required"`
	Citation         int    `validate:"gte=0"`
	OpenAccess       bool
	Locations        *string
	AnnouncementDate *time.Time
	Year             int
	Submit           *string
	Abstract         *string
	YearCitations    [3]int
	Category         *NormalizedCategory
	Institution      *NormalizedInstitution
	Authors          []NormalizedAuthor `validate:"dive"`
	// DroppedAuthors counts authorships left out for a missing or invalid id.
	DroppedAuthors int `validate:"-"`
}

// Normalizer turns raw OpenAlex works into NormalizedWork values.
type Normalizer struct {
	extract  func(raw any, marker string) (string, error)
	validate *validator.Validate
}

// NewNormalizer creates a normalizer. strictIDs selects ExtractIDStrict.
func NewNormalizer(strictIDs bool) *Normalizer {
	extract := ExtractID
	if strictIDs {
		extract = ExtractIDStrict
	}
	return &Normalizer{
		extract:  extract,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Normalize flattens work. target is the bare id of the category being
// processed, or "" for single-work ingestion. It returns a
// *domain.MalformedRecordError when the work id is unusable, the work lacks a
// title, the target category is absent, or validation fails.
func (n *Normalizer) Normalize(work openalex.Work, target string) (*NormalizedWork, error) {
	rawID := work.IDString()
	alexID, err := n.extract(work.ID, MarkerWork)
	if err != nil {
		return nil, domain.NewMalformedRecordError("work", rawID, domain.SkipInvalidID, err.Error())
	}

	title := work.Title
	if title == "" {
		title = work.DisplayName
	}
	if title == "" {
		return nil, domain.NewMalformedRecordError("work", alexID, domain.SkipMissingTitle, "no title or display_name")
	}

	concept := SelectCategory(work.Concepts, target)
	if target != "" && concept == nil {
		return nil, domain.NewMalformedRecordError("work", alexID, domain.SkipCategoryMismatch,
			fmt.Sprintf("no level-1 concept %s", target))
	}

	nw := &NormalizedWork{
		AlexPaperID:   alexID,
		Title:         title,
		Citation:      work.CitedByCount,
		OpenAccess:    work.OpenAccess != nil && work.OpenAccess.IsOA,
		Locations:     LandingPage(work.Locations),
		Submit:        venue(work),
		Abstract:      ReconstructAbstract(work.AbstractInvertedIndex),
		YearCitations: YearCitations(work.CountsByYear),
	}

	if year, ok := PublicationYear(work.PublicationDate); ok {
		nw.Year = year
	}
	if d, err := time.Parse(time.DateOnly, work.PublicationDate); err == nil {
		nw.AnnouncementDate = &d
	}

	if concept != nil {
		if cid, err := n.extract(concept.ID, MarkerConcept); err == nil {
			nw.Category = &NormalizedCategory{AlexID: cid, Name: concept.DisplayName}
		}
	}

	if inst := FirstInstitution(work.Authorships); inst != nil {
		ni := &NormalizedInstitution{Name: inst.DisplayName, CountryCode: inst.CountryCode}
		if iid, err := n.externalID(inst.ID, MarkerInstitution); err == nil {
			ni.AlexID = &iid
		}
		nw.Institution = ni
	}

	seen := make(map[string]bool, len(work.Authorships))
	for _, as := range work.Authorships {
		if as.Author == nil {
			nw.DroppedAuthors++
			continue
		}
		aid, err := n.externalID(as.Author.ID, MarkerAuthor)
		if err != nil {
			nw.DroppedAuthors++
			continue
		}
		if seen[aid] {
			continue
		}
		seen[aid] = true
		nw.Authors = append(nw.Authors, NormalizedAuthor{AlexID: aid, Name: as.Author.DisplayName})
	}

	if err := n.validate.Struct(nw); err != nil {
		return nil, domain.NewMalformedRecordError("work", alexID, domain.SkipValidation, describeValidation(err))
	}

	return nw, nil
}

// externalID extracts an id and checks it is alphanumeric, so a bad nested id
// can be dropped without rejecting the work.
func (n *Normalizer) externalID(raw any, marker string) (string, error) {
	id, err := n.extract(raw, marker)
	if err != nil {
		return "", err
	}
	if err := n.validate.Var(id, "alphanum"); err != nil {
		return "", fmt.Errorf("%w: %q is not alphanumeric", domain.ErrInvalidExternalID, id)
	}
	return id, nil
}

func venue(work openalex.Work) *string {
	if work.HostVenue != nil && work.HostVenue.DisplayName != "" {
		name := work.HostVenue.DisplayName
		return &name
	}
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil && work.PrimaryLocation.Source.DisplayName != "" {
		name := work.PrimaryLocation.Source.DisplayName
		return &name
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
