package ingest

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
)

func strPtr(s string) *string { return &s }

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		marker  string
		want    string
		wantErr bool
	}{
		{"url", "https://openalex.org/W123", "W", "123", false},
		{"bare with marker", "W123", "W", "123", false},
		{"concept url", "https://openalex.org/C41008148", "C", "41008148", false},
		{"marker anywhere", "12W34", "W", "1234", false},
		{"every occurrence removed", "WW5", "W", "5", false},
		{"missing marker", "https://openalex.org/123", "W", "", true},
		{"wrong marker", "https://openalex.org/A123", "W", "", true},
		{"only marker", "W", "W", "", true},
		{"nil", nil, "W", "", true},
		{"number", 123, "W", "", true},
		{"empty", "", "W", "", true},
		{"trailing slash", "https://openalex.org/W1/", "W", "", true},
		{"empty marker", "W1", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractID(tt.raw, tt.marker)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidExternalID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractID_StableOnReapply(t *testing.T) {
	cases := []struct{ raw, marker string }{
		{"https://openalex.org/W123", "W"},
		{"W9", "W"},
		{"https://openalex.org/A5023888391", "A"},
		{"https://openalex.org/I136199984", "I"},
	}
	for _, c := range cases {
		first, err := ExtractID(c.raw, c.marker)
		require.NoError(t, err)
		second, err := ExtractID(c.marker+first, c.marker)
		require.NoError(t, err)
		assert.Equal(t, first, second, c.raw)
	}
}

func TestExtractIDStrict(t *testing.T) {
	got, err := ExtractIDStrict("https://openalex.org/W123", "W")
	require.NoError(t, err)
	assert.Equal(t, "123", got)

	_, err = ExtractIDStrict("12W34", "W")
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)

	_, err = ExtractIDStrict("W", "W")
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)

	_, err = ExtractIDStrict(nil, "W")
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)
}

// inverted builds an index from word, positions pairs in argument order.
func inverted(pairs ...any) openalex.InvertedIndex {
	var x openalex.InvertedIndex
	for i := 0; i+1 < len(pairs); i += 2 {
		x = append(x, openalex.IndexTerm{Word: pairs[i].(string), Positions: pairs[i+1].([]int)})
	}
	return x
}

// invert tokenizes text on single spaces and indexes the words in order of
// first appearance.
func invert(text string) openalex.InvertedIndex {
	var x openalex.InvertedIndex
	slot := map[string]int{}
	for pos, word := range strings.Split(text, " ") {
		i, ok := slot[word]
		if !ok {
			i = len(x)
			slot[word] = i
			x = append(x, openalex.IndexTerm{Word: word})
		}
		x[i].Positions = append(x[i].Positions, pos)
	}
	return x
}

func TestReconstructAbstract(t *testing.T) {
	t.Run("fills gaps with empty words", func(t *testing.T) {
		got := ReconstructAbstract(inverted("a", []int{0}, "b", []int{1, 3}))
		require.NotNil(t, got)
		assert.Equal(t, "a b  b", *got)
	})

	t.Run("single word", func(t *testing.T) {
		got := ReconstructAbstract(inverted("hello", []int{0}))
		require.NotNil(t, got)
		assert.Equal(t, "hello", *got)
	})

	t.Run("empty index", func(t *testing.T) {
		assert.Nil(t, ReconstructAbstract(nil))
		assert.Nil(t, ReconstructAbstract(openalex.InvertedIndex{}))
	})

	t.Run("negative positions ignored", func(t *testing.T) {
		got := ReconstructAbstract(inverted("x", []int{-1}, "y", []int{0}))
		require.NotNil(t, got)
		assert.Equal(t, "y", *got)

		assert.Nil(t, ReconstructAbstract(inverted("x", []int{-4})))
	})

	t.Run("oversized position", func(t *testing.T) {
		assert.Nil(t, ReconstructAbstract(inverted("a", []int{0}, "z", []int{MaxAbstractPosition + 1})))

		got := ReconstructAbstract(inverted("z", []int{MaxAbstractPosition}))
		require.NotNil(t, got)
		assert.Len(t, *got, MaxAbstractPosition+1)
	})

	t.Run("shared position goes to the last word", func(t *testing.T) {
		index := inverted(
			"alpha", []int{0},
			"beta", []int{0},
			"gamma", []int{0},
			"delta", []int{1},
		)
		for range 200 {
			got := ReconstructAbstract(index)
			require.NotNil(t, got)
			require.Equal(t, "gamma delta", *got)
		}
	})
}

func TestReconstructAbstract_InvertsTokenization(t *testing.T) {
	texts := []string{
		"a",
		"deep learning allows computational models",
		"the cat and the hat and the bat",
		"gap  between  words",
		"x x x x",
	}

	rng := rand.New(rand.NewPCG(7, 11))
	vocab := strings.Fields("we propose a new method for the analysis of sparse graphs and show it works")
	for range 50 {
		words := make([]string, 1+rng.IntN(40))
		for i := range words {
			words[i] = vocab[rng.IntN(len(vocab))]
		}
		texts = append(texts, strings.Join(words, " "))
	}

	for _, text := range texts {
		got := ReconstructAbstract(invert(text))
		require.NotNil(t, got, text)
		assert.Equal(t, text, *got)
	}
}

func TestLandingPage(t *testing.T) {
	assert.Nil(t, LandingPage(nil))
	assert.Nil(t, LandingPage([]openalex.Location{{PDFURL: "x"}}))

	got := LandingPage([]openalex.Location{
		{LandingPageURL: ""},
		{LandingPageURL: "https://doi.org/10.1/abc"},
		{LandingPageURL: "https://example.org"},
	})
	require.NotNil(t, got)
	assert.Equal(t, "https://doi.org/10.1/abc", *got)
}

func TestYearCitations(t *testing.T) {
	assert.Equal(t, [3]int{5, 2, 0}, YearCitations([]openalex.CountByYear{
		{Year: 2023, CitedByCount: 5},
		{Year: 2021, CitedByCount: 2},
	}))
	assert.Equal(t, [3]int{9, 8, 7}, YearCitations([]openalex.CountByYear{
		{Year: 2020, CitedByCount: 6},
		{Year: 2022, CitedByCount: 8},
		{Year: 2023, CitedByCount: 9},
		{Year: 2021, CitedByCount: 7},
	}))
	assert.Equal(t, [3]int{}, YearCitations(nil))
}

func TestSelectCategory(t *testing.T) {
	concepts := []openalex.Concept{
		{ID: "https://openalex.org/C1", Level: 0},
		{ID: "https://openalex.org/C50", DisplayName: "Biology", Level: 1},
		{ID: "https://openalex.org/C60", DisplayName: "Chemistry", Level: 1},
	}

	got := SelectCategory(concepts, "")
	require.NotNil(t, got)
	assert.Equal(t, "Biology", got.DisplayName)

	got = SelectCategory(concepts, "60")
	require.NotNil(t, got)
	assert.Equal(t, "Chemistry", got.DisplayName)

	assert.Nil(t, SelectCategory(concepts, "1"))
	assert.Nil(t, SelectCategory(nil, ""))
}

func TestFirstInstitution(t *testing.T) {
	assert.Nil(t, FirstInstitution(nil))
	assert.Nil(t, FirstInstitution([]openalex.Authorship{
		{},
		{Institutions: []openalex.Institution{{ID: "https://openalex.org/I2"}}},
	}))

	got := FirstInstitution([]openalex.Authorship{
		{Institutions: []openalex.Institution{{ID: "https://openalex.org/I1"}, {ID: "https://openalex.org/I9"}}},
	})
	require.NotNil(t, got)
	assert.Equal(t, "https://openalex.org/I1", got.ID)
}

func sampleWork() openalex.Work {
	return openalex.Work{
		ID:              "https://openalex.org/W123",
		Title:           "Deep Learning",
		PublicationDate: "2015-05-28",
		CitedByCount:    4200,
		OpenAccess:      &openalex.OpenAccess{IsOA: true},
		Concepts: []openalex.Concept{
			{ID: "https://openalex.org/C50", DisplayName: "Computer science", Level: 1},
		},
		Locations:       []openalex.Location{{LandingPageURL: "https://doi.org/10.1038/nature14539"}},
		HostVenue:       &openalex.HostVenue{DisplayName: "Nature"},
		CountsByYear:    []openalex.CountByYear{{Year: 2023, CitedByCount: 5}, {Year: 2021, CitedByCount: 2}},
		Authorships: []openalex.Authorship{
			{
				Author: &openalex.AuthorInfo{ID: "https://openalex.org/A1", DisplayName: "Yann LeCun"},
				Institutions: []openalex.Institution{{
					ID:          "https://openalex.org/I7",
					DisplayName: strPtr("New York University"),
					CountryCode: strPtr("US"),
				}},
			},
			{Author: &openalex.AuthorInfo{ID: "https://openalex.org/A2", DisplayName: "Yoshua Bengio"}},
		},
		AbstractInvertedIndex: inverted("a", []int{0}, "b", []int{1, 3}),
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(false)

	t.Run("full work", func(t *testing.T) {
		nw, err := n.Normalize(sampleWork(), "50")
		require.NoError(t, err)

		assert.Equal(t, "123", nw.AlexPaperID)
		assert.Equal(t, "Deep Learning", nw.Title)
		assert.Equal(t, 4200, nw.Citation)
		assert.True(t, nw.OpenAccess)
		require.NotNil(t, nw.Locations)
		assert.Equal(t, "https://doi.org/10.1038/nature14539", *nw.Locations)
		require.NotNil(t, nw.Submit)
		assert.Equal(t, "Nature", *nw.Submit)
		require.NotNil(t, nw.Abstract)
		assert.Equal(t, "a b  b", *nw.Abstract)
		assert.Equal(t, [3]int{5, 2, 0}, nw.YearCitations)
		assert.Equal(t, 2015, nw.Year)
		require.NotNil(t, nw.AnnouncementDate)
		assert.Equal(t, time.Date(2015, 5, 28, 0, 0, 0, 0, time.UTC), *nw.AnnouncementDate)

		require.NotNil(t, nw.Category)
		assert.Equal(t, "50", nw.Category.AlexID)
		assert.Equal(t, "Computer science", nw.Category.Name)

		require.NotNil(t, nw.Institution)
		require.NotNil(t, nw.Institution.AlexID)
		assert.Equal(t, "7", *nw.Institution.AlexID)
		assert.Equal(t, "New York University", *nw.Institution.Name)
		assert.Equal(t, "US", *nw.Institution.CountryCode)

		assert.Equal(t, []NormalizedAuthor{{AlexID: "1", Name: "Yann LeCun"}, {AlexID: "2", Name: "Yoshua Bengio"}}, nw.Authors)
		assert.Zero(t, nw.DroppedAuthors)
	})

	t.Run("null id is skipped", func(t *testing.T) {
		w := sampleWork()
		w.ID = nil
		_, err := n.Normalize(w, "50")

		var mre *domain.MalformedRecordError
		require.ErrorAs(t, err, &mre)
		assert.Equal(t, domain.SkipInvalidID, mre.Reason)
		assert.ErrorIs(t, err, domain.ErrMalformedRecord)
	})

	t.Run("id without marker is skipped", func(t *testing.T) {
		w := sampleWork()
		w.ID = "https://openalex.org/123"
		_, err := n.Normalize(w, "50")
		assert.Equal(t, domain.SkipInvalidID, domain.SkipReason(err))
	})

	t.Run("title falls back to display name", func(t *testing.T) {
		w := sampleWork()
		w.Title = ""
		w.DisplayName = "Shown Name"
		nw, err := n.Normalize(w, "50")
		require.NoError(t, err)
		assert.Equal(t, "Shown Name", nw.Title)
	})

	t.Run("missing title is skipped", func(t *testing.T) {
		w := sampleWork()
		w.Title = ""
		_, err := n.Normalize(w, "50")
		assert.Equal(t, domain.SkipMissingTitle, domain.SkipReason(err))
	})

	t.Run("category mismatch is skipped", func(t *testing.T) {
		_, err := n.Normalize(sampleWork(), "999")
		assert.Equal(t, domain.SkipCategoryMismatch, domain.SkipReason(err))
	})

	t.Run("no target takes first level one concept", func(t *testing.T) {
		nw, err := n.Normalize(sampleWork(), "")
		require.NoError(t, err)
		require.NotNil(t, nw.Category)
		assert.Equal(t, "50", nw.Category.AlexID)
	})

	t.Run("no target and no concept", func(t *testing.T) {
		w := sampleWork()
		w.Concepts = nil
		nw, err := n.Normalize(w, "")
		require.NoError(t, err)
		assert.Nil(t, nw.Category)
	})

	t.Run("negative citations fail validation", func(t *testing.T) {
		w := sampleWork()
		w.CitedByCount = -1
		_, err := n.Normalize(w, "50")
		assert.Equal(t, domain.SkipValidation, domain.SkipReason(err))
	})

	t.Run("bad author ids are dropped", func(t *testing.T) {
		w := sampleWork()
		w.Authorships = append(w.Authorships,
			openalex.Authorship{Author: nil},
			openalex.Authorship{Author: &openalex.AuthorInfo{ID: "https://openalex.org/X9"}},
			openalex.Authorship{Author: &openalex.AuthorInfo{ID: "https://openalex.org/A-9"}},
			openalex.Authorship{Author: &openalex.AuthorInfo{ID: "https://openalex.org/A1", DisplayName: "dup"}},
		)
		nw, err := n.Normalize(w, "50")
		require.NoError(t, err)
		assert.Len(t, nw.Authors, 2)
		assert.Equal(t, 3, nw.DroppedAuthors)
	})

	t.Run("institution with unusable id keeps its name", func(t *testing.T) {
		w := sampleWork()
		w.Authorships[0].Institutions[0].ID = ""
		nw, err := n.Normalize(w, "50")
		require.NoError(t, err)
		require.NotNil(t, nw.Institution)
		assert.Nil(t, nw.Institution.AlexID)
		assert.Equal(t, "New York University", *nw.Institution.Name)
	})

	t.Run("venue falls back to primary location source", func(t *testing.T) {
		w := sampleWork()
		w.HostVenue = nil
		w.PrimaryLocation = &openalex.Location{Source: &openalex.Source{DisplayName: "arXiv"}}
		nw, err := n.Normalize(w, "50")
		require.NoError(t, err)
		require.NotNil(t, nw.Submit)
		assert.Equal(t, "arXiv", *nw.Submit)
	})

	t.Run("year only date", func(t *testing.T) {
		w := sampleWork()
		w.PublicationDate = "2015"
		nw, err := n.Normalize(w, "50")
		require.NoError(t, err)
		assert.Equal(t, 2015, nw.Year)
		assert.Nil(t, nw.AnnouncementDate)
	})
}

func TestNormalizer_Strict(t *testing.T) {
	n := NewNormalizer(true)

	w := sampleWork()
	w.ID = "https://openalex.org/1W23"
	_, err := n.Normalize(w, "50")
	assert.Equal(t, domain.SkipInvalidID, domain.SkipReason(err))

	nw, err := n.Normalize(sampleWork(), "50")
	require.NoError(t, err)
	assert.Equal(t, "123", nw.AlexPaperID)
}
