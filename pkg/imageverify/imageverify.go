// Package imageverify gates images, kernels, and plugins against a
// signed trusted manifest of expected SHA-256 hashes, grounded on the
// teacher's hashing conventions in pkg/security/secrets.go.
package imageverify

import (
	"sync"
	"time"

	"github.com/cuemby/agentcage/pkg/redact"
)

// TrustedManifest binds image/kernel/plugin names to expected hex hashes.
type TrustedManifest struct {
	Version   string            `json:"version"`
	Images    map[string]string `json:"images"`
	Kernels   map[string]string `json:"kernels"`
	Plugins   map[string]string `json:"plugins"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// VerifyResult is returned by every verify call.
type VerifyResult struct {
	Verified   bool   `json:"verified"`
	ActualHash string `json:"actualHash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Verifier holds the currently loaded manifest, if any.
type Verifier struct {
	mu       sync.RWMutex
	manifest *TrustedManifest
}

// NewVerifier returns a Verifier with no manifest loaded.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// LoadManifest replaces the currently loaded manifest.
func (v *Verifier) LoadManifest(m TrustedManifest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.manifest = &m
}

func verify(section map[string]string, loaded bool, key string, data []byte) VerifyResult {
	if !loaded {
		return VerifyResult{Verified: false, Error: "No manifest loaded"}
	}

	expected, ok := section[key]
	if !ok {
		return VerifyResult{Verified: false, Error: "not found in manifest"}
	}

	actual := redact.Hash(data)
	if actual != expected {
		return VerifyResult{Verified: false, ActualHash: actual, Error: "hash mismatch"}
	}
	return VerifyResult{Verified: true, ActualHash: actual}
}

// VerifyImage checks data's SHA-256 against the manifest's images section.
func (v *Verifier) VerifyImage(path string, data []byte) VerifyResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.manifest == nil {
		return verify(nil, false, path, data)
	}
	return verify(v.manifest.Images, true, path, data)
}

// VerifyKernel checks data's SHA-256 against the manifest's kernels section.
func (v *Verifier) VerifyKernel(path string, data []byte) VerifyResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.manifest == nil {
		return verify(nil, false, path, data)
	}
	return verify(v.manifest.Kernels, true, path, data)
}

// VerifyPlugin checks data's SHA-256 against the manifest's plugins section.
func (v *Verifier) VerifyPlugin(name string, data []byte) VerifyResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.manifest == nil {
		return verify(nil, false, name, data)
	}
	return verify(v.manifest.Plugins, true, name, data)
}
