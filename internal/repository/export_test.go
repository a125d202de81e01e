package repository

// ResetShared drops the process-wide repository between tests.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared.Store(nil)
}
