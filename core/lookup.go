package core

// Lookup finds the context of type T with the given UUID on the case's timelines.
func Lookup[T Context](cf *CaseFile, id string) (T, bool) {
	var zero T
	if cf == nil {
		return zero, false
	}
	cf.mu.Lock()
	defer cf.mu.Unlock()
	for _, kind := range AllContextKinds {
		for _, c := range cf.timelines[kind] {
			if typed, ok := c.(T); ok && c.ContextUUID() == id {
				return typed, true
			}
		}
	}
	return zero, false
}

// TimelineOf returns the contexts of type T in timestamp order
func TimelineOf[T Context](cf *CaseFile) []T {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	var out []T
	for _, kind := range AllContextKinds {
		for _, c := range cf.timelines[kind] {
			if typed, ok := c.(T); ok {
				out = append(out, typed)
			}
		}
	}
	return out
}

// ParentProcess resolves the parent reference of p on the case's process timeline
func (cf *CaseFile) ParentProcess(p *ContextProcess) (*ContextProcess, bool) {
	if p == nil || p.Parent == "" {
		return nil, false
	}
	return Lookup[*ContextProcess](cf, p.Parent)
}

// ChildProcesses resolves the child references of p. Children not on the case are skipped.
func (cf *CaseFile) ChildProcesses(p *ContextProcess) []*ContextProcess {
	if p == nil {
		return nil
	}
	var out []*ContextProcess
	for _, id := range p.Children {
		if child, ok := Lookup[*ContextProcess](cf, id); ok {
			out = append(out, child)
		}
	}
	return out
}
