package ingest

import (
	"sort"
	"strconv"

	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
)

// DefaultPerBucket is how many works are kept per publication-year bucket.
const DefaultPerBucket = 20

// Bucket is an inclusive publication-year range. A zero From means no lower bound.
type Bucket struct {
	Label string
	From  int
	To    int
}

// Contains reports whether year falls in the bucket.
func (b Bucket) Contains(year int) bool {
	return (b.From == 0 || year >= b.From) && year <= b.To
}

// YearBuckets are the strata works are sampled from. Years after the last
// bucket are not sampled.
var YearBuckets = []Bucket{
	{Label: "<=2010", To: 2010},
	{Label: "2011-2015", From: 2011, To: 2015},
	{Label: "2016-2020", From: 2016, To: 2020},
	{Label: "2021-2025", From: 2021, To: 2025},
}

// PublicationYear parses the year from the first four characters of a
// publication date. It reports false for missing, short or non-numeric dates.
func PublicationYear(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	prefix := date[:4]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return year, true
}

// BucketOf returns the index of the bucket year belongs to, or -1.
func BucketOf(year int) int {
	for i, b := range YearBuckets {
		if b.Contains(year) {
			return i
		}
	}
	return -1
}

// Sample is the outcome of SampleByYear.
type Sample struct {
	// Works holds the selection in bucket order, then citation rank order.
	Works []openalex.Work
	// Candidates counts the works that fell in each bucket before trimming.
	Candidates [4]int
	// Selected counts the works kept per bucket.
	Selected [4]int
	// Undated counts works dropped for an unusable date or a year outside every bucket.
	Undated int
}

// SampleByYear groups works into YearBuckets, orders each bucket by citation
// count descending (ties keep input order) and keeps the top perBucket.
func SampleByYear(works []openalex.Work, perBucket int) Sample {
	if perBucket <= 0 {
		perBucket = DefaultPerBucket
	}

	var s Sample
	grouped := make([][]openalex.Work, len(YearBuckets))
	for _, w := range works {
		year, ok := PublicationYear(w.PublicationDate)
		if !ok {
			s.Undated++
			continue
		}
		idx := BucketOf(year)
		if idx < 0 {
			s.Undated++
			continue
		}
		grouped[idx] = append(grouped[idx], w)
	}

	for i, group := range grouped {
		s.Candidates[i] = len(group)
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].CitedByCount > group[b].CitedByCount
		})
		if len(group) > perBucket {
			group = group[:perBucket]
		}
		s.Selected[i] = len(group)
		s.Works = append(s.Works, group...)
	}

	return s
}
