package offline

import "github.com/cuemby/agentcage/pkg/types"

// FeatureMatrix tracks per-feature offline-availability declarations and
// answers isAvailable against the store's current connectivity state.
type FeatureMatrix struct {
	features map[string]types.FeatureAvailability
}

// NewFeatureMatrix returns an empty matrix.
func NewFeatureMatrix() *FeatureMatrix {
	return &FeatureMatrix{features: make(map[string]types.FeatureAvailability)}
}

// Register adds or replaces a feature's availability declaration.
func (m *FeatureMatrix) Register(f types.FeatureAvailability) {
	m.features[f.Name] = f
}

// IsAvailable short-circuits true if the feature is available offline;
// otherwise it requires the store to be online. Unknown features are
// treated as requiring connectivity.
func (m *FeatureMatrix) IsAvailable(name string, state ConnState) bool {
	f, ok := m.features[name]
	if !ok {
		return state == Online
	}
	if f.AvailableOffline {
		return true
	}
	return state == Online
}

// DegradedMessage returns the user-visible message for a feature that is
// currently unavailable, or "" if the feature is unknown.
func (m *FeatureMatrix) DegradedMessage(name string) string {
	return m.features[name].DegradedMessage
}
