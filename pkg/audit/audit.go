// Package audit implements agentcage's hash-chained, append-only
// compliance log: every agent decision is redacted, hashed against its
// predecessor, and persisted as a single JSONL line, grounded on the
// teacher's append-only BoltDB persistence idiom and its SHA-256 key
// derivation in pkg/security/secrets.go.
package audit

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/metrics"
	"github.com/cuemby/agentcage/pkg/redact"
	"github.com/cuemby/agentcage/pkg/types"
)

// Trail is the hash-chained append-only audit log. A single Trail is
// single-writer; entries are appended to a JSONL file in addition to an
// in-memory slice used for verifyIntegrity and export.
type Trail struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	entries  []types.AuditLogEntry
	lastHash string
	enabled  bool
	redactLevel redact.Level
	clock    idgen.Clock
}

// Config configures a Trail.
type Config struct {
	Path        string
	Enabled     bool
	RedactLevel redact.Level
	Clock       idgen.Clock
}

// Open opens (creating if needed) the JSONL file at cfg.Path and replays
// existing entries into memory so verifyIntegrity and export see history
// from prior process runs.
func Open(cfg Config) (*Trail, error) {
	if cfg.Clock == nil {
		cfg.Clock = idgen.SystemClock{}
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	t := &Trail{
		path:        cfg.Path,
		file:        f,
		enabled:     cfg.Enabled,
		redactLevel: cfg.RedactLevel,
		clock:       cfg.Clock,
		lastHash:    types.GenesisHash,
	}

	if err := t.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Trail) replay() error {
	if _, err := t.file.Seek(0, 0); err != nil {
		return err
	}
	scanner := bufio.NewScanner(t.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e types.AuditLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("replay audit entry: %w", err)
		}
		t.entries = append(t.entries, e)
		t.lastHash = e.Hash
	}
	if _, err := t.file.Seek(0, 2); err != nil {
		return err
	}
	return scanner.Err()
}

// Close closes the backing file.
func (t *Trail) Close() error {
	return t.file.Close()
}

// hashableFields mirrors the AuditLogEntry field set excluding Hash,
// serialized in a fixed key order so the same entry always hashes the
// same way regardless of map iteration order elsewhere.
type hashableFields struct {
	ID             string            `json:"id"`
	TimestampMs    int64             `json:"timestamp"`
	PreviousHash   string            `json:"previousHash"`
	AgentID        string            `json:"agentId"`
	DecisionType   types.DecisionType `json:"decisionType"`
	InputSummary   string            `json:"inputSummary"`
	OutputSummary  string            `json:"outputSummary"`
	Reasoning      string            `json:"reasoning"`
	TrajectoryID   string            `json:"trajectoryId"`
	RiskLevel      types.RiskLevel   `json:"riskLevel"`
	ComplianceTags []string          `json:"complianceTags"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

func computeHash(e types.AuditLogEntry) (string, error) {
	h := hashableFields{
		ID:             e.ID,
		TimestampMs:    e.TimestampMs,
		PreviousHash:   e.PreviousHash,
		AgentID:        e.AgentID,
		DecisionType:   e.DecisionType,
		InputSummary:   e.InputSummary,
		OutputSummary:  e.OutputSummary,
		Reasoning:      e.Reasoning,
		TrajectoryID:   e.TrajectoryID,
		RiskLevel:      e.RiskLevel,
		ComplianceTags: e.ComplianceTags,
		Metadata:       e.Metadata,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return redact.Hash(data), nil
}

func complianceTags(risk types.RiskLevel) []string {
	tags := []string{types.ComplianceEUAIActArticle86}
	if risk == types.RiskHigh || risk == types.RiskCritical {
		tags = append(tags, types.ComplianceHumanOversight)
	}
	return tags
}

// LogDecision redacts input/output, computes the chained hash, persists
// the entry, and returns it. Returns ErrAuditDisabled if the trail was
// configured with Enabled: false.
func (t *Trail) LogDecision(agentID string, decision types.DecisionType, input, output, reasoning, trajectoryID string, risk types.RiskLevel, metadata map[string]any) (types.AuditLogEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return types.AuditLogEntry{}, types.ErrAuditDisabled
	}

	entry := types.AuditLogEntry{
		ID:             idgen.New(),
		TimestampMs:    t.clock.Now().UnixMilli(),
		PreviousHash:   t.lastHash,
		AgentID:        agentID,
		DecisionType:   decision,
		InputSummary:   redact.Redact(input, t.redactLevel),
		OutputSummary:  redact.Redact(output, t.redactLevel),
		Reasoning:      reasoning,
		TrajectoryID:   trajectoryID,
		RiskLevel:      risk,
		ComplianceTags: complianceTags(risk),
		Metadata:       metadata,
	}

	hash, err := computeHash(entry)
	if err != nil {
		return types.AuditLogEntry{}, fmt.Errorf("compute audit hash: %w", err)
	}
	entry.Hash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return types.AuditLogEntry{}, fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := t.file.Write(append(data, '\n')); err != nil {
		return types.AuditLogEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return types.AuditLogEntry{}, fmt.Errorf("sync audit entry: %w", err)
	}

	t.entries = append(t.entries, entry)
	t.lastHash = entry.Hash
	metrics.AuditEntriesTotal.Inc()

	return entry, nil
}

// GetAllLogs returns every entry in append order.
func (t *Trail) GetAllLogs() []types.AuditLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.AuditLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// VerifyIntegrity recomputes each entry's hash and checks the chain.
func (t *Trail) VerifyIntegrity() types.IntegrityReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := types.IntegrityReport{Valid: true}
	prevHash := types.GenesisHash
	for i, e := range t.entries {
		if e.PreviousHash != prevHash {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("entry %s (index %d): previousHash mismatch", e.ID, i))
		}
		recomputed, err := computeHash(e)
		if err != nil || recomputed != e.Hash {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("entry %s (index %d): hash mismatch", e.ID, i))
			metrics.AuditIntegrityFailuresTotal.Inc()
		}
		prevHash = e.Hash
	}
	return report
}

// ExportFormat selects the serialization Export produces.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportPDF  ExportFormat = "pdf"
)

var csvHeader = []string{
	"id", "timestamp", "previousHash", "hash", "agentId", "decisionType",
	"inputSummary", "outputSummary", "reasoning", "trajectoryId", "riskLevel", "complianceTags",
}

// Export serializes the full log in the requested format. ExportPDF
// returns a plain marker document since PDF rendering is out of scope.
func (t *Trail) Export(format ExportFormat) ([]byte, error) {
	logs := t.GetAllLogs()

	switch format {
	case ExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		for _, e := range logs {
			row := []string{
				e.ID,
				strconv.FormatInt(e.TimestampMs, 10),
				e.PreviousHash,
				e.Hash,
				e.AgentID,
				string(e.DecisionType),
				e.InputSummary,
				e.OutputSummary,
				e.Reasoning,
				e.TrajectoryID,
				string(e.RiskLevel),
				fmt.Sprintf("%v", e.ComplianceTags),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()

	case ExportPDF:
		return []byte(fmt.Sprintf("%%PDF-1.4\n%% agentcage audit export marker, %d entries\n", len(logs))), nil

	default:
		return json.Marshal(logs)
	}
}

// ImportJSON parses a JSON export back into a slice of entries, used to
// verify the export/import round-trip law: the result equals the logs
// array passed to Export(ExportJSON) field-for-field, in order.
func ImportJSON(data []byte) ([]types.AuditLogEntry, error) {
	var logs []types.AuditLogEntry
	if err := json.Unmarshal(data, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
