package session

// KeyDerivations reports how many times f has run Argon2id.
func KeyDerivations(f *FileStore) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.derivations
}
