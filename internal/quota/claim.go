package quota

// Claim marks jobKey as being submitted for userID until the returned
// release is called. It reports false when another cycle already holds the
// claim. Cycles hold the claim from the history check until the application
// is saved, so the same job never goes out twice in one process.
func (t *Tracker) Claim(userID, jobKey string) (release func(), ok bool) {
	st := t.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, held := st.claims[jobKey]; held {
		return nil, false
	}
	if st.claims == nil {
		st.claims = make(map[string]struct{})
	}
	st.claims[jobKey] = struct{}{}

	released := false
	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if !released {
			released = true
			delete(st.claims, jobKey)
		}
	}, true
}
