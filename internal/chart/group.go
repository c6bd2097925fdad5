// Package chart turns flat analytics rows into chart-ready series. Every
// function here is pure: the input slices are never modified.
package chart

// Group is one bucket produced by GroupByKey.
type Group[T any] struct {
	Key   string
	Items []T
}

// GroupByKey partitions items by key. Groups appear in first-seen order and
// keep input order inside; items for which key reports false are dropped.
func GroupByKey[T any](items []T, key func(T) (string, bool)) []Group[T] {
	if items == nil {
		return nil
	}
	index := make(map[string]int)
	groups := make([]Group[T], 0)
	for _, item := range items {
		k, ok := key(item)
		if !ok {
			continue
		}
		i, seen := index[k]
		if !seen {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[T]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
