package core

// InsertTimeline inserts item before the first element whose event time is strictly
// later, so equal timestamps keep insertion order. Undated items are rejected and the
// list is returned unchanged.
func InsertTimeline[T Context](list []T, item T) ([]T, error) {
	if isNilContext(item) {
		return list, typef("cannot insert a nil context into a timeline")
	}
	ts := item.EventTime()
	if ts.IsZero() {
		return list, invalidf("%s %s has no timestamp", item.Kind(), item.ContextUUID())
	}

	for i, existing := range list {
		if existing.EventTime().After(ts) {
			list = append(list, item)
			copy(list[i+1:], list[i:len(list)-1])
			list[i] = item
			return list, nil
		}
	}
	return append(list, item), nil
}
