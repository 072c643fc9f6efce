package track

import (
	"strings"

	"github.com/tunecraft/api/internal/model"
)

// MatchStrategy names the predicate that accepted an event
type MatchStrategy string

const (
	MatchPrimary     MatchStrategy = "primary"
	MatchSecondary   MatchStrategy = "secondary"
	MatchProvisional MatchStrategy = "provisional"
	MatchContent     MatchStrategy = "content"
)

// MatchOutcome is the correlation decision for one inbound event
type MatchOutcome struct {
	Accepted bool
	Strategy MatchStrategy
	// Key is the correlation identity the event carried, used to key the
	// terminal-notification dedup set.
	Key string
}

type matchPredicate func(job *model.Job, ev *model.ChannelEvent, sole bool) (MatchOutcome, bool)

// Ordered strategy list; first match wins. The backend's identifier naming is
// inconsistent across job kinds and across intermediate vs terminal events,
// so a single exact-match strategy drops legitimate completions.
var matchers = []matchPredicate{
	matchPrimaryID,
	matchSecondaryIDs,
	matchProvisionalFailure,
	matchContentFallback,
}

// Correlate decides whether an inbound event belongs to the tracked job.
// sole reports whether this job is the only active one without tracked
// identifiers, which gates the provisional rule.
func Correlate(job *model.Job, ev *model.ChannelEvent, sole bool) MatchOutcome {
	for _, m := range matchers {
		if outcome, ok := m(job, ev, sole); ok {
			return outcome
		}
	}
	return MatchOutcome{}
}

func matchPrimaryID(job *model.Job, ev *model.ChannelEvent, _ bool) (MatchOutcome, bool) {
	if job.PrimaryID == "" {
		return MatchOutcome{}, false
	}
	for _, id := range ev.Identifiers() {
		if id == job.PrimaryID {
			return MatchOutcome{Accepted: true, Strategy: MatchPrimary, Key: id}, true
		}
	}
	return MatchOutcome{}, false
}

func matchSecondaryIDs(job *model.Job, ev *model.ChannelEvent, _ bool) (MatchOutcome, bool) {
	for _, id := range ev.Identifiers() {
		for _, sec := range job.SecondaryIDs {
			if id == sec {
				return MatchOutcome{Accepted: true, Strategy: MatchSecondary, Key: id}, true
			}
		}
	}
	return MatchOutcome{}, false
}

// matchProvisionalFailure accepts an identifier-less failure event that
// arrives before the submission response has populated any identifiers.
// Only valid while exactly one identifier-less job is active.
func matchProvisionalFailure(job *model.Job, ev *model.ChannelEvent, sole bool) (MatchOutcome, bool) {
	if !sole || ev.Category != model.EventFailure {
		return MatchOutcome{}, false
	}
	if len(ev.Identifiers()) > 0 || len(job.CorrelationIDs()) > 0 {
		return MatchOutcome{}, false
	}
	return MatchOutcome{Accepted: true, Strategy: MatchProvisional, Key: "provisional:" + string(job.Kind)}, true
}

// matchContentFallback compares the job's input fingerprint against any
// output references the event carries. Heuristic; ordered last on purpose.
func matchContentFallback(job *model.Job, ev *model.ChannelEvent, _ bool) (MatchOutcome, bool) {
	if job.InputFingerprint == "" {
		return MatchOutcome{}, false
	}
	for _, candidate := range candidateURLs(ev) {
		if candidate == job.InputFingerprint || strings.Contains(candidate, job.InputFingerprint) {
			return MatchOutcome{Accepted: true, Strategy: MatchContent, Key: candidate}, true
		}
	}
	return MatchOutcome{}, false
}

// candidateURLs collects URL-shaped string values from the event payload,
// including audio references inside variant arrays.
func candidateURLs(ev *model.ChannelEvent) []string {
	var urls []string
	for _, v := range ev.Fields {
		switch val := v.(type) {
		case string:
			if isURL(val) {
				urls = append(urls, val)
			}
		case []interface{}:
			for _, item := range val {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				for _, field := range obj {
					if s, ok := field.(string); ok && isURL(s) {
						urls = append(urls, s)
					}
				}
			}
		}
	}
	return urls
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
