package types

// GenesisHash is the previousHash value of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DecisionType classifies what kind of agent decision an audit entry
// records.
type DecisionType string

const (
	DecisionIntent     DecisionType = "intent"
	DecisionPlan       DecisionType = "plan"
	DecisionCodegen    DecisionType = "codegen"
	DecisionDesign     DecisionType = "design"
	DecisionReview     DecisionType = "review"
	DecisionDeploy     DecisionType = "deploy"
	DecisionEvolve     DecisionType = "evolve"
	DecisionTrajectory DecisionType = "trajectory"
)

// RiskLevel is the risk classification attached to an audited decision.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AuditLogEntry is one hash-chained, append-only record of an agent
// decision. Hash is computed over every field below except itself; see
// pkg/audit for the canonical serialization.
type AuditLogEntry struct {
	ID              string            `json:"id"`
	TimestampMs     int64             `json:"timestamp"`
	PreviousHash    string            `json:"previousHash"`
	Hash            string            `json:"hash"`
	AgentID         string            `json:"agentId"`
	DecisionType    DecisionType      `json:"decisionType"`
	InputSummary    string            `json:"inputSummary"`
	OutputSummary   string            `json:"outputSummary"`
	Reasoning       string            `json:"reasoning"`
	TrajectoryID    string            `json:"trajectoryId"`
	RiskLevel       RiskLevel         `json:"riskLevel"`
	ComplianceTags  []string          `json:"complianceTags"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

const (
	ComplianceEUAIActArticle86  = "eu-ai-act-article-86"
	ComplianceHumanOversight    = "human-oversight-required"
)

// IntegrityReport is the result of verifyIntegrity.
type IntegrityReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
