// Package errclass classifies raw errors into a fixed taxonomy (network,
// timeout, rate-limit, auth, model, resource, validation, filesystem,
// unknown) via an ordered pattern table, and derives correlation and
// recurrence patterns over its bounded history, grounded on the teacher's
// ordered-candidate-filtering style in pkg/scheduler/scheduler.go.
package errclass

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

// MaxHistory bounds the classifier's FIFO error history.
const MaxHistory = 100

// rule is one entry of the ordered classification table; the first rule
// whose Keywords all find a match in the lowercased "name message" text
// wins.
type rule struct {
	keywords []string
	class    types.ErrorClass
	severity types.ErrorSeverity
	retryable bool
	action   string
}

// table is evaluated in order; keep more specific rules above more
// general ones (e.g. rate-limit before network).
var table = []rule{
	{keywords: []string{"unauthorized"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},
	{keywords: []string{"forbidden"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},
	{keywords: []string{"401"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},
	{keywords: []string{"403"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},
	{keywords: []string{"invalid api key"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},
	{keywords: []string{"invalid token"}, class: types.ClassAuth, severity: types.ErrSeverityHigh, retryable: false, action: "refresh credentials and retry"},

	{keywords: []string{"rate limit"}, class: types.ClassRateLimit, severity: types.ErrSeverityMedium, retryable: true, action: "backoff and retry"},
	{keywords: []string{"429"}, class: types.ClassRateLimit, severity: types.ErrSeverityMedium, retryable: true, action: "backoff and retry"},
	{keywords: []string{"too many requests"}, class: types.ClassRateLimit, severity: types.ErrSeverityMedium, retryable: true, action: "backoff and retry"},

	{keywords: []string{"timed out"}, class: types.ClassTimeout, severity: types.ErrSeverityMedium, retryable: true, action: "retry with an extended timeout"},
	{keywords: []string{"timeout"}, class: types.ClassTimeout, severity: types.ErrSeverityMedium, retryable: true, action: "retry with an extended timeout"},
	{keywords: []string{"deadline exceeded"}, class: types.ClassTimeout, severity: types.ErrSeverityMedium, retryable: true, action: "retry with an extended timeout"},

	{keywords: []string{"connection refused"}, class: types.ClassNetwork, severity: types.ErrSeverityMedium, retryable: true, action: "retry the network call"},
	{keywords: []string{"econnreset"}, class: types.ClassNetwork, severity: types.ErrSeverityMedium, retryable: true, action: "retry the network call"},
	{keywords: []string{"socket hang up"}, class: types.ClassNetwork, severity: types.ErrSeverityMedium, retryable: true, action: "retry the network call"},
	{keywords: []string{"no such host"}, class: types.ClassNetwork, severity: types.ErrSeverityMedium, retryable: true, action: "retry the network call"},
	{keywords: []string{"network"}, class: types.ClassNetwork, severity: types.ErrSeverityMedium, retryable: true, action: "retry the network call"},

	{keywords: []string{"context length"}, class: types.ClassModel, severity: types.ErrSeverityMedium, retryable: true, action: "retry or fall back to an alternate model"},
	{keywords: []string{"model overloaded"}, class: types.ClassModel, severity: types.ErrSeverityMedium, retryable: true, action: "retry or fall back to an alternate model"},
	{keywords: []string{"content policy"}, class: types.ClassModel, severity: types.ErrSeverityMedium, retryable: false, action: "revise the prompt and resubmit"},

	{keywords: []string{"out of memory"}, class: types.ClassResource, severity: types.ErrSeverityHigh, retryable: false, action: "free resources or scale the sandbox"},
	{keywords: []string{"oom"}, class: types.ClassResource, severity: types.ErrSeverityHigh, retryable: false, action: "free resources or scale the sandbox"},
	{keywords: []string{"resource exhausted"}, class: types.ClassResource, severity: types.ErrSeverityHigh, retryable: false, action: "free resources or scale the sandbox"},
	{keywords: []string{"disk full"}, class: types.ClassResource, severity: types.ErrSeverityHigh, retryable: false, action: "free resources or scale the sandbox"},
	{keywords: []string{"enospc"}, class: types.ClassResource, severity: types.ErrSeverityHigh, retryable: false, action: "free resources or scale the sandbox"},

	{keywords: []string{"validation"}, class: types.ClassValidation, severity: types.ErrSeverityLow, retryable: false, action: "fix the input and resubmit"},
	{keywords: []string{"invalid argument"}, class: types.ClassValidation, severity: types.ErrSeverityLow, retryable: false, action: "fix the input and resubmit"},
	{keywords: []string{"bad request"}, class: types.ClassValidation, severity: types.ErrSeverityLow, retryable: false, action: "fix the input and resubmit"},

	{keywords: []string{"enoent"}, class: types.ClassFilesystem, severity: types.ErrSeverityMedium, retryable: false, action: "check the file path and permissions"},
	{keywords: []string{"no such file"}, class: types.ClassFilesystem, severity: types.ErrSeverityMedium, retryable: false, action: "check the file path and permissions"},
	{keywords: []string{"permission denied"}, class: types.ClassFilesystem, severity: types.ErrSeverityMedium, retryable: false, action: "check the file path and permissions"},
	{keywords: []string{"eacces"}, class: types.ClassFilesystem, severity: types.ErrSeverityMedium, retryable: false, action: "check the file path and permissions"},
}

// Classifier holds a bounded FIFO history of classified errors.
type Classifier struct {
	mu      sync.Mutex
	history []types.ClassifiedError
	clock   idgen.Clock
}

// NewClassifier returns an empty Classifier.
func NewClassifier(clock idgen.Clock) *Classifier {
	if clock == nil {
		clock = idgen.SystemClock{}
	}
	return &Classifier{clock: clock}
}

// Classify lowercases "<type> <message>" of err, walks the rule table in
// order, and returns the first match. No match classifies as unknown,
// non-retryable. The result is appended to history, evicting the oldest
// entry once MaxHistory is exceeded.
func (c *Classifier) Classify(err error, context map[string]any) types.ClassifiedError {
	text := strings.ToLower(fmt.Sprintf("%T %s", err, err.Error()))

	result := types.ClassifiedError{
		ID:            idgen.New(),
		OriginalError: err.Error(),
		Class:         types.ClassUnknown,
		Severity:      types.ErrSeverityLow,
		Retryable:     false,
		Timestamp:     c.clock.Now(),
		Context:       context,
	}

	for _, r := range table {
		if matchesAll(text, r.keywords) {
			result.Class = r.class
			result.Severity = r.severity
			result.Retryable = r.retryable
			result.SuggestedAction = r.action
			break
		}
	}
	if result.SuggestedAction == "" {
		result.SuggestedAction = "manual investigation required"
	}

	c.mu.Lock()
	c.history = append(c.history, result)
	if len(c.history) > MaxHistory {
		c.history = c.history[len(c.history)-MaxHistory:]
	}
	c.mu.Unlock()

	return result
}

func matchesAll(text string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(text, k) {
			return false
		}
	}
	return true
}

// History returns the classifier's current bounded history, oldest first.
func (c *Classifier) History() []types.ClassifiedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ClassifiedError, len(c.history))
	copy(out, c.history)
	return out
}

// CorrelateErrors counts co-occurrence of distinct classes whose
// occurrences fall within windowMs of one another; confidence is
// pair-occurrences divided by the smaller of the two classes' total
// counts, sorted descending by confidence.
func (c *Classifier) CorrelateErrors(windowMs int64) []types.Correlation {
	c.mu.Lock()
	history := make([]types.ClassifiedError, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	counts := make(map[types.ErrorClass]int)
	for _, e := range history {
		counts[e.Class]++
	}

	pairCounts := make(map[[2]types.ErrorClass]int)
	for i := range history {
		for j := i + 1; j < len(history); j++ {
			a, b := history[i], history[j]
			if a.Class == b.Class {
				continue
			}
			delta := b.Timestamp.Sub(a.Timestamp).Milliseconds()
			if delta < 0 {
				delta = -delta
			}
			if delta > windowMs {
				continue
			}
			pairCounts[pairKey(a.Class, b.Class)]++
		}
	}

	var out []types.Correlation
	for pair, occurrences := range pairCounts {
		minCount := counts[pair[0]]
		if counts[pair[1]] < minCount {
			minCount = counts[pair[1]]
		}
		if minCount == 0 {
			continue
		}
		out = append(out, types.Correlation{
			ClassA:      pair[0],
			ClassB:      pair[1],
			Occurrences: occurrences,
			Confidence:  float64(occurrences) / float64(minCount),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func pairKey(a, b types.ErrorClass) [2]types.ErrorClass {
	if a < b {
		return [2]types.ErrorClass{a, b}
	}
	return [2]types.ErrorClass{b, a}
}

// DetectPatterns groups the history by class and summarizes each: count,
// first/last seen, and average inter-arrival interval (nil if fewer than
// two samples).
func (c *Classifier) DetectPatterns() []types.ErrorPattern {
	c.mu.Lock()
	history := make([]types.ClassifiedError, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	byClass := make(map[types.ErrorClass][]types.ClassifiedError)
	for _, e := range history {
		byClass[e.Class] = append(byClass[e.Class], e)
	}

	var out []types.ErrorPattern
	for class, entries := range byClass {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
		p := types.ErrorPattern{
			Class:     class,
			Count:     len(entries),
			FirstSeen: entries[0].Timestamp,
			LastSeen:  entries[len(entries)-1].Timestamp,
		}
		if len(entries) >= 2 {
			var total float64
			for i := 1; i < len(entries); i++ {
				total += float64(entries[i].Timestamp.Sub(entries[i-1].Timestamp).Milliseconds())
			}
			avg := total / float64(len(entries)-1)
			p.AvgIntervalMs = &avg
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}
