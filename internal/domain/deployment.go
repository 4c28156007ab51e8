package domain

// DeploymentStatus tracks the lifecycle of a design deployment.
type DeploymentStatus string

const (
	DeploymentStatusActive         DeploymentStatus = "active"
	DeploymentStatusPending        DeploymentStatus = "pending"
	DeploymentStatusDecommissioned DeploymentStatus = "decommissioned"
	DeploymentStatusRolledBack     DeploymentStatus = "rolled-back"
)

// DiffRecord computes the attribute differences between the stored state of
// a record and the state a design wrote. The returned maps follow the change
// record convention: "added" holds the values the design set, "removed" the
// values they replaced. Bookkeeping fields never appear in a diff.
func DiffRecord(before, after Record) (added, removed map[string]any) {
	added = map[string]any{}
	removed = map[string]any{}
	for key, newVal := range after {
		switch key {
		case "id", "created_at", "updated_at":
			continue
		}
		oldVal, had := before[key]
		if had && ScalarEqual(oldVal, newVal) {
			continue
		}
		added[key] = newVal
		if had {
			removed[key] = oldVal
		}
	}
	return added, removed
}

// RevertValue computes the value a field should return to when a change
// record is rolled back. current is the live value, added/removed the values
// journaled when the design changed the field.
//
// Scalars revert only when the design's value is still in place; a later
// out-of-band edit wins. Map values merge: keys the design added are dropped,
// keys it removed are restored, and keys introduced since stay untouched.
func RevertValue(current, added, removed any) (any, bool) {
	addedMap, addedOK := added.(map[string]any)
	currentMap, currentOK := current.(map[string]any)
	if addedOK && currentOK {
		merged := make(map[string]any, len(currentMap))
		for k, v := range currentMap {
			merged[k] = v
		}
		for k, v := range addedMap {
			if cur, ok := merged[k]; ok && ScalarEqual(cur, v) {
				delete(merged, k)
			}
		}
		if removedMap, ok := removed.(map[string]any); ok {
			for k, v := range removedMap {
				if _, ok := merged[k]; !ok {
					merged[k] = v
				}
			}
		}
		return merged, true
	}
	if ScalarEqual(current, added) {
		return removed, true
	}
	return nil, false
}
