package types

import "time"

// ErrorClass is the classifier's output category.
type ErrorClass string

const (
	ClassNetwork    ErrorClass = "network"
	ClassTimeout    ErrorClass = "timeout"
	ClassRateLimit  ErrorClass = "rate-limit"
	ClassAuth       ErrorClass = "auth"
	ClassModel      ErrorClass = "model"
	ClassResource   ErrorClass = "resource"
	ClassValidation ErrorClass = "validation"
	ClassFilesystem ErrorClass = "filesystem"
	ClassUnknown    ErrorClass = "unknown"
)

// ErrorSeverity ranks how serious a classified error is.
type ErrorSeverity string

const (
	ErrSeverityLow      ErrorSeverity = "low"
	ErrSeverityMedium   ErrorSeverity = "medium"
	ErrSeverityHigh     ErrorSeverity = "high"
	ErrSeverityCritical ErrorSeverity = "critical"
)

// ClassifiedError is the classifier's record of one ingested error.
// Classification is derived once and never mutated afterward.
type ClassifiedError struct {
	ID              string         `json:"id"`
	OriginalError   string         `json:"originalError"`
	Class           ErrorClass     `json:"class"`
	Severity        ErrorSeverity  `json:"severity"`
	Retryable       bool           `json:"retryable"`
	SuggestedAction string         `json:"suggestedAction"`
	Timestamp       time.Time      `json:"timestamp"`
	Context         map[string]any `json:"context,omitempty"`
}

// Correlation is a pair of error classes observed to co-occur within a
// window, with a confidence score.
type Correlation struct {
	ClassA     ErrorClass `json:"classA"`
	ClassB     ErrorClass `json:"classB"`
	Occurrences int       `json:"occurrences"`
	Confidence float64    `json:"confidence"`
}

// ErrorPattern summarizes all observations of a single class in the
// classifier's history.
type ErrorPattern struct {
	Class                  ErrorClass `json:"class"`
	Count                  int        `json:"count"`
	FirstSeen              time.Time  `json:"firstSeen"`
	LastSeen               time.Time  `json:"lastSeen"`
	AvgIntervalMs          *float64   `json:"avgIntervalMs"` // nil if <2 samples
}
