package errfilter

import (
	"fmt"
	"sort"
)

// Summary aggregates one round of classified errors into the fix-planning
// view the control loop logs and the run report renders: how much of the
// round is automatically fixable, how the errors distribute over type and
// severity, and a short narrative recommendation.
type Summary struct {
	TotalErrors        int
	AutoFixable        int
	ManualReviewNeeded int
	ErrorTypes         map[ErrorType]int
	Severities         map[Priority]int
	Recommendation     string
}

// Summarize builds the Summary for a round's analyses.
func Summarize(analyses []ErrorAnalysis) Summary {
	s := Summary{
		TotalErrors: len(analyses),
		ErrorTypes:  map[ErrorType]int{},
		Severities:  map[Priority]int{},
	}
	for _, ea := range analyses {
		if ea.Strategy.CanAutoFix {
			s.AutoFixable++
		}
		s.ErrorTypes[ea.Type]++
		s.Severities[ea.Severity]++
	}
	s.ManualReviewNeeded = s.TotalErrors - s.AutoFixable
	s.Recommendation = recommendation(s)
	return s
}

// recommendation mirrors the severity-tiered advice the fix loop reports:
// critical errors block the build outright, high-priority errors should be
// fixed first, anything else can be worked through incrementally.
func recommendation(s Summary) string {
	if s.TotalErrors == 0 {
		return "no errors to fix"
	}
	if n := s.Severities[PriorityCritical]; n > 0 {
		return fmt.Sprintf("%d critical error(s) must be fixed immediately for the build to pass", n)
	}
	if n := s.Severities[PriorityHigh]; n > 0 {
		return fmt.Sprintf("%d high-priority error(s); fix these first to improve code quality", n)
	}
	return "mostly medium/low-priority errors; fix incrementally"
}

// TypeCounts returns the error-type distribution in stable, descending-count
// order for logging and report output.
func (s Summary) TypeCounts() []string {
	types := make([]ErrorType, 0, len(s.ErrorTypes))
	for t := range s.ErrorTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if s.ErrorTypes[types[i]] != s.ErrorTypes[types[j]] {
			return s.ErrorTypes[types[i]] > s.ErrorTypes[types[j]]
		}
		return types[i] < types[j]
	})
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, fmt.Sprintf("%s=%d", t, s.ErrorTypes[t]))
	}
	return out
}
