package offline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveUserContentLocalWins(t *testing.T) {
	local := map[string]any{"body": "local edit"}
	server := map[string]any{"body": "server edit"}
	out := Resolve(EntityUserContent, local, server)
	assert.Equal(t, "local edit", out["body"])
}

func TestResolveComputedFieldsServerWins(t *testing.T) {
	local := map[string]any{"score": 1.0}
	server := map[string]any{"score": 2.0}
	out := Resolve(EntityComputedFields, local, server)
	assert.Equal(t, 2.0, out["score"])
}

func TestResolveTagsMetadataUnionMerge(t *testing.T) {
	local := map[string]any{
		"tags":  []any{"a", "b"},
		"title": "local title",
	}
	server := map[string]any{
		"tags":  []any{"b", "c"},
		"title": "server title",
	}
	out := Resolve(EntityTagsMetadata, local, server)

	tags := out["tags"].([]any)
	assert.ElementsMatch(t, []any{"a", "b", "c"}, tags)
	assert.Equal(t, "local title", out["title"])
}
