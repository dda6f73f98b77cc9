// Package merge folds partial server-pushed updates into client-side
// aggregate state without clobbering unrelated sibling fields.
package merge

// Merge returns the shallow merge of update over prev: every key present in
// update overwrites the corresponding key in prev, every key absent from
// update keeps its prior value. When both sides hold a map under the same
// key, that bucket is merged one further level deep. Merge depth is two;
// anything deeper, including lists, is replaced wholesale by the update's
// value. Later updates to the same key win (last-write-wins, no timestamp
// reconciliation). Neither input is mutated; prev may be nil.
func Merge(prev, update map[string]any) map[string]any {
	next := make(map[string]any, len(prev)+len(update))
	for k, v := range prev {
		next[k] = v
	}
	for k, v := range update {
		uv, uok := v.(map[string]any)
		pv, pok := next[k].(map[string]any)
		if uok && pok {
			next[k] = mergeBucket(pv, uv)
			continue
		}
		next[k] = v
	}
	return next
}

// mergeBucket shallow-merges one named bucket: update keys overwrite, prior
// keys persist, values are taken as-is.
func mergeBucket(prev, update map[string]any) map[string]any {
	next := make(map[string]any, len(prev)+len(update))
	for k, v := range prev {
		next[k] = v
	}
	for k, v := range update {
		next[k] = v
	}
	return next
}
