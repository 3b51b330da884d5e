package kernel

// DependencyStore answers status-only queries about previously submitted
// task ids, the "client's result store" SPEC_FULL §4.2.9 has
// check_dependencies consult. Completed reports whether id has a recorded,
// completed result; a non-nil error means the store itself could not answer
// (e.g. a registry lookup failure), distinct from "not yet completed".
type DependencyStore interface {
	Completed(id string) (done bool, err error)
}

// CheckDependencies implements SPEC_FULL §4.2.9. deps is expected to be
// either `[quantifier, [id, ...]]` (quantifier one of "any"/"all") or a bare
// list of ids, in which case "all" is assumed.
func CheckDependencies(deps any, store DependencyStore) bool {
	if deps == nil || store == nil {
		return true
	}

	quantifier, ids := parseDependencySpec(deps)
	if len(ids) == 0 {
		return true
	}

	anyCompleted := false
	allCompleted := true
	for _, id := range ids {
		done, err := store.Completed(id)
		if err != nil {
			return false
		}
		if done {
			anyCompleted = true
		} else {
			allCompleted = false
		}
	}

	if quantifier == "any" {
		return anyCompleted
	}
	return allCompleted
}

// parseDependencySpec recognizes the two shapes check_dependencies accepts:
// `[("any"|"all"), [id, ...]]`, or anything else, which is treated as a bare
// id list under the default "all" quantifier.
func parseDependencySpec(deps any) (quantifier string, ids []string) {
	quantifier = "all"

	pair, ok := deps.([]any)
	if !ok || len(pair) != 2 {
		return quantifier, toStringSlice(deps)
	}

	q, qOK := pair[0].(string)
	idList, idsOK := pair[1].([]any)
	if !qOK || !idsOK || (q != "any" && q != "all") {
		return quantifier, toStringSlice(deps)
	}
	return q, toStringSlice(idList)
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
