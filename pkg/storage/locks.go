package storage

import "sync"

// fileLocks holds one mutex per collection file path. Every load-modify-save
// cycle against a path runs under its mutex, so concurrent mutations of the
// same collection are serialized in arrival order while different accounts'
// files stay fully independent.
var fileLocks sync.Map // map[string]*sync.Mutex

// lockFor returns the writer mutex for a collection file path.
func lockFor(path string) *sync.Mutex {
	if mu, ok := fileLocks.Load(path); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := fileLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
