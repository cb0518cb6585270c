package offline

// EntityType names the conflict-resolution strategy to apply when a local
// and server copy of a record disagree.
type EntityType string

const (
	EntityUserContent    EntityType = "user-content"
	EntityTagsMetadata    EntityType = "tags-metadata"
	EntityComputedFields  EntityType = "computed-fields"
)

// Resolve merges local and server representations of the same record
// according to the entity type's conflict policy.
func Resolve(entity EntityType, local, server map[string]any) map[string]any {
	switch entity {
	case EntityTagsMetadata:
		return resolveTagsMetadata(local, server)
	case EntityComputedFields:
		return server
	default: // EntityUserContent and anything unrecognized: local wins
		return local
	}
}

// resolveTagsMetadata union-merges array-valued fields (deduplicated) and
// takes the local value for every other field.
func resolveTagsMetadata(local, server map[string]any) map[string]any {
	merged := make(map[string]any, len(local)+len(server))
	for k, v := range server {
		merged[k] = v
	}
	for k, v := range local {
		localArr, localIsArr := v.([]any)
		serverArr, serverIsArr := merged[k].([]any)
		if localIsArr && serverIsArr {
			merged[k] = unionDedup(serverArr, localArr)
			continue
		}
		merged[k] = v
	}
	return merged
}

func unionDedup(a, b []any) []any {
	seen := make(map[any]bool)
	out := make([]any, 0, len(a)+len(b))
	for _, items := range [][]any{a, b} {
		for _, it := range items {
			if !seen[it] {
				seen[it] = true
				out = append(out, it)
			}
		}
	}
	return out
}
