package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := Hash([]byte("hello\xff"))
	assert.NotEqual(t, a, c)
}

func TestRedactNonePassthrough(t *testing.T) {
	s := "contact me at alice@example.com"
	assert.Equal(t, s, Redact(s, None))
}

func TestRedactPartialEmail(t *testing.T) {
	s := "contact me at alice@example.com please"
	out := Redact(s, Partial)
	assert.NotContains(t, out, "alice@example.com")
	assert.Contains(t, out, redactedMarker)
}

func TestRedactPartialAPIKey(t *testing.T) {
	s := "token sk-abcdefghijklmnopqrstuvwxyz012345 in use"
	out := Redact(s, Partial)
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwxyz012345")
}

func TestRedactFullAddsPhoneAndName(t *testing.T) {
	s := "John Smith called from 555-123-4567"
	partial := Redact(s, Partial)
	assert.Contains(t, partial, "John Smith")

	full := Redact(s, Full)
	assert.NotContains(t, full, "John Smith")
	assert.NotContains(t, full, "555-123-4567")
}

func TestRedactObjectPreservesStructure(t *testing.T) {
	obj := map[string]any{
		"email": "bob@example.com",
		"count": 3,
		"nested": map[string]any{
			"ssn": "123-45-6789",
		},
		"list": []any{"alice@example.com", 42},
	}

	out := RedactObject(obj, Partial).(map[string]any)
	assert.Equal(t, 3, out["count"])
	assert.NotContains(t, out["email"], "bob@example.com")

	nested := out["nested"].(map[string]any)
	assert.NotContains(t, nested["ssn"], "123-45-6789")

	list := out["list"].([]any)
	assert.Equal(t, 42, list[1])
	assert.NotContains(t, list[0], "alice@example.com")
}
