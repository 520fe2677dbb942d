// Package stats summarizes a replica for display.
package stats

import (
	"sort"

	"github.com/aheige321/true-mastery/internal/domain"
)

// MasteredInterval is the interval, in minutes, above which a review card
// counts as mastered.
const MasteredInterval = 30000

// Breakdown counts live cards by study state. Mastered cards are review
// cards with an interval above MasteredInterval and are not counted in
// Review.
type Breakdown struct {
	New       int `json:"new"`
	Learning  int `json:"learning"`
	Review    int `json:"review"`
	Mastered  int `json:"mastered"`
	Graduated int `json:"graduated"`
}

// Summary is the statistics view of a replica.
type Summary struct {
	Breakdown
	Decks    int        `json:"totalDecks"`
	Cards    int        `json:"totalCards"`
	Activity []DayCount `json:"activity"`
}

// DayCount is the number of ratings given on one day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Share returns n as a percentage of the live cards, 0 when there are none.
func (s Summary) Share(n int) float64 {
	if s.Cards == 0 {
		return 0
	}
	return float64(n) * 100 / float64(s.Cards)
}

// Summarize computes the summary over the live records of snap.
func Summarize(snap domain.Snapshot) Summary {
	var sum Summary
	for _, d := range snap.Decks {
		if !d.Deleted {
			sum.Decks++
		}
	}
	for _, c := range snap.Cards {
		if c.Deleted {
			continue
		}
		sum.Cards++
		switch c.EffectiveStatus() {
		case domain.StatusNew:
			sum.New++
		case domain.StatusLearning:
			sum.Learning++
		case domain.StatusReview:
			if c.Interval > MasteredInterval {
				sum.Mastered++
			} else {
				sum.Review++
			}
		case domain.StatusGraduated:
			sum.Graduated++
		}
	}

	activity := snap.Stats.Activity()
	sum.Activity = make([]DayCount, 0, len(activity))
	for day, n := range activity {
		sum.Activity = append(sum.Activity, DayCount{Day: day, Count: n})
	}
	sort.Slice(sum.Activity, func(i, j int) bool { return sum.Activity[i].Day < sum.Activity[j].Day })
	return sum
}
