package storage

import "glance/internal/ports"

// Store is the object storage contract used across API and worker.
// It is an alias to ports.ObjectStore to keep call-sites simple.
type Store = ports.ObjectStore
