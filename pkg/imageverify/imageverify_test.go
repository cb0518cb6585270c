package imageverify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/agentcage/pkg/redact"
)

func TestVerifyImageNoManifest(t *testing.T) {
	v := NewVerifier()
	result := v.VerifyImage("/img/a", []byte("data"))
	assert.False(t, result.Verified)
	assert.Equal(t, "No manifest loaded", result.Error)
}

func TestVerifyImageNotFound(t *testing.T) {
	v := NewVerifier()
	v.LoadManifest(TrustedManifest{Images: map[string]string{}})
	result := v.VerifyImage("/img/a", []byte("data"))
	assert.False(t, result.Verified)
	assert.Equal(t, "not found in manifest", result.Error)
}

func TestVerifyImageMatchAndTamper(t *testing.T) {
	data := []byte("image bytes")
	hash := redact.Hash(data)

	v := NewVerifier()
	v.LoadManifest(TrustedManifest{Images: map[string]string{"/img/a": hash}})

	ok := v.VerifyImage("/img/a", data)
	assert.True(t, ok.Verified)
	assert.Equal(t, hash, ok.ActualHash)

	tampered := append(append([]byte{}, data...), 0xff)
	bad := v.VerifyImage("/img/a", tampered)
	assert.False(t, bad.Verified)
	assert.NotEmpty(t, bad.ActualHash)
}
