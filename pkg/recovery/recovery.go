// Package recovery implements agentcage's recovery orchestrator: a fixed
// table of retry/fallback/abort strategies selected by error class, with
// exponential backoff and jitter, grounded on the teacher's periodic
// retry-ticker shape in pkg/scheduler/scheduler.go generalized into an
// explicit, testable backoff function.
package recovery

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/types"
)

// Action is the operation a recovery strategy retries.
type Action func(ctx context.Context) error

// Strategy describes one recovery approach: which error classes it
// applies to, its preference order (lower priority wins), and the most
// attempts it will make.
type Strategy struct {
	Name               string
	ApplicableClasses  []types.ErrorClass
	Priority           int
	MaxAttempts        int
}

func (s Strategy) appliesTo(class types.ErrorClass) bool {
	for _, c := range s.ApplicableClasses {
		if c == class {
			return true
		}
	}
	return false
}

// BuiltinStrategies returns the 7 fixed strategies the orchestrator
// always carries, in no particular order (SelectStrategy sorts by
// priority).
func BuiltinStrategies() []Strategy {
	return []Strategy{
		{Name: "retry-transient", ApplicableClasses: []types.ErrorClass{types.ClassNetwork, types.ClassTimeout, types.ClassRateLimit}, Priority: 1, MaxAttempts: 3},
		{Name: "retry-model", ApplicableClasses: []types.ErrorClass{types.ClassModel}, Priority: 1, MaxAttempts: 3},
		{Name: "fallback-model", ApplicableClasses: []types.ErrorClass{types.ClassModel, types.ClassResource}, Priority: 2, MaxAttempts: 1},
		{Name: "checkpoint-resume", ApplicableClasses: []types.ErrorClass{types.ClassTimeout, types.ClassResource}, Priority: 2, MaxAttempts: 1},
		{Name: "skip-task", ApplicableClasses: []types.ErrorClass{types.ClassValidation}, Priority: 3, MaxAttempts: 1},
		{Name: "graceful-degrade", ApplicableClasses: []types.ErrorClass{types.ClassResource, types.ClassUnknown}, Priority: 4, MaxAttempts: 1},
		{Name: "abort", ApplicableClasses: []types.ErrorClass{types.ClassAuth, types.ClassFilesystem, types.ClassUnknown}, Priority: 5, MaxAttempts: 1},
	}
}

// AttemptRecord is one execution attempt made while running a strategy.
type AttemptRecord struct {
	Attempt   int       `json:"attempt"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StrategyResult is the outcome of orchestrating (or directly executing)
// one strategy against one classified error.
type StrategyResult struct {
	Strategy string          `json:"strategy"`
	Success  bool            `json:"success"`
	Attempts []AttemptRecord `json:"attempts"`
	Error    string          `json:"error,omitempty"`
}

// Config tunes backoff and retry behavior.
type Config struct {
	BaseBackoffMs     int64
	BackoffMultiplier float64
	MaxBackoffMs      int64
	JitterEnabled     bool
	MaxRetries        int
	Clock             idgen.Clock
	Sleep             func(context.Context, time.Duration)
	Rand              func() float64
}

// DefaultConfig returns sane orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		BaseBackoffMs:     500,
		BackoffMultiplier: 2.0,
		MaxBackoffMs:      30_000,
		JitterEnabled:     true,
		MaxRetries:        5,
	}
}

// Orchestrator selects and executes recovery strategies, keeping a
// history of every orchestration it has performed.
type Orchestrator struct {
	mu         sync.Mutex
	strategies []Strategy
	cfg        Config
	history    []StrategyResult
}

// NewOrchestrator returns an Orchestrator carrying the 7 built-in
// strategies plus any additional strategies injected at construction.
func NewOrchestrator(cfg Config, extra ...Strategy) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	strategies := append(BuiltinStrategies(), extra...)
	return &Orchestrator{strategies: strategies, cfg: cfg}
}

// ComputeBackoff returns the delay before attempt number attempt
// (0-indexed), capped at MaxBackoffMs and optionally jittered.
func (o *Orchestrator) ComputeBackoff(attempt int) time.Duration {
	base := float64(o.cfg.BaseBackoffMs)
	delay := base * pow(o.cfg.BackoffMultiplier, attempt)
	capped := delay
	if capped > float64(o.cfg.MaxBackoffMs) {
		capped = float64(o.cfg.MaxBackoffMs)
	}
	if o.cfg.JitterEnabled {
		capped += o.cfg.Rand() * capped * 0.5
		if capped > float64(o.cfg.MaxBackoffMs) {
			capped = float64(o.cfg.MaxBackoffMs)
		}
	}
	return time.Duration(capped) * time.Millisecond
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// SelectStrategy returns the lowest-priority strategy applicable to
// class, or false if none applies.
func (o *Orchestrator) SelectStrategy(class types.ErrorClass) (Strategy, bool) {
	var candidates []Strategy
	for _, s := range o.strategies {
		if s.appliesTo(class) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Strategy{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority < candidates[j].Priority })
	return candidates[0], true
}

// ExecuteStrategy retries action up to min(strategy.MaxAttempts,
// config.MaxRetries) times, sleeping ComputeBackoff(i) between attempts.
func (o *Orchestrator) ExecuteStrategy(ctx context.Context, strategy Strategy, action Action) StrategyResult {
	limit := strategy.MaxAttempts
	if o.cfg.MaxRetries < limit {
		limit = o.cfg.MaxRetries
	}
	if limit <= 0 {
		limit = 1
	}

	result := StrategyResult{Strategy: strategy.Name}
	for i := 0; i < limit; i++ {
		if i > 0 {
			o.cfg.Sleep(ctx, o.ComputeBackoff(i))
		}
		err := action(ctx)
		attempt := AttemptRecord{Attempt: i + 1, Success: err == nil, Timestamp: o.cfg.Clock.Now()}
		outcome := "success"
		if err != nil {
			attempt.Error = err.Error()
			outcome = "failure"
		}
		result.Attempts = append(result.Attempts, attempt)
		metrics.RecoveryAttemptsTotal.WithLabelValues(strategy.Name, outcome).Inc()
		if err == nil {
			result.Success = true
			break
		}
		result.Error = err.Error()
	}

	o.record(result)
	return result
}

// Orchestrate selects a strategy for err's class then executes it. If no
// strategy applies, it returns an abort-typed result with an explanatory
// error and records it to history without invoking action.
func (o *Orchestrator) Orchestrate(ctx context.Context, err types.ClassifiedError, action Action) StrategyResult {
	strategy, ok := o.SelectStrategy(err.Class)
	if !ok {
		result := StrategyResult{Strategy: "abort", Success: false, Error: fmt.Sprintf("no applicable recovery strategy for class %s", err.Class)}
		metrics.RecoveryAttemptsTotal.WithLabelValues("abort", "failure").Inc()
		o.record(result)
		return result
	}
	return o.ExecuteStrategy(ctx, strategy, action)
}

func (o *Orchestrator) record(result StrategyResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, result)
}

// History returns every orchestration result recorded so far, in order.
func (o *Orchestrator) History() []StrategyResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StrategyResult, len(o.history))
	copy(out, o.history)
	return out
}
