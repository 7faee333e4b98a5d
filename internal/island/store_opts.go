package island

import "time"

type StoreOpt func(*Store)

// WithLockTTL sets how long an owner's write lock lives if never released.
func WithLockTTL(d time.Duration) StoreOpt {
	return func(s *Store) {
		s.lockTTL = d
	}
}

// WithLockWait lets Upsert retry a held lock for up to d before reporting
// busy.
func WithLockWait(d time.Duration) StoreOpt {
	return func(s *Store) {
		s.lockWait = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOpt {
	return func(s *Store) {
		s.now = now
	}
}
