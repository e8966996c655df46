package engine

// assembleInput builds the input object passed to a node's executor by
// merging the outputs of all of its upstream dependencies, keyed by source
// node ID, plus the trigger payload under "trigger". A node with a single
// upstream dependency also gets that dependency's output flattened under
// "main" for convenience, mirroring the common case where a node has exactly
// one predecessor.
func assembleInput(nodeID string, parents []string, results map[string]*NodeResult, triggerData map[string]interface{}) map[string]interface{} {
	input := map[string]interface{}{
		"trigger": triggerData,
	}

	upstream := make(map[string]interface{}, len(parents))
	for _, p := range parents {
		if r, ok := results[p]; ok && r.Status == NodeStatusCompleted {
			upstream[p] = r.Output
		}
	}
	input["upstream"] = upstream

	if len(parents) == 1 {
		if r, ok := results[parents[0]]; ok && r.Status == NodeStatusCompleted {
			input["main"] = r.Output
		}
	}

	return input
}

// anyParentFailedOrSkipped reports whether any of a node's dependencies did
// not complete successfully, which means this node must be skipped rather
// than run (§4.3 edge case: a failed upstream node propagates SKIPPED
// downstream rather than silently running with partial input).
func anyParentFailedOrSkipped(parents []string, results map[string]*NodeResult) bool {
	for _, p := range parents {
		r, ok := results[p]
		if !ok {
			continue
		}
		if r.Status == NodeStatusFailed || r.Status == NodeStatusSkipped {
			return true
		}
	}
	return false
}
