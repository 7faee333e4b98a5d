package instance

import "time"

type RegistryOpt func(*Registry)

// WithLaunchTimeout bounds a single runtime launch.
func WithLaunchTimeout(d time.Duration) RegistryOpt {
	return func(r *Registry) {
		r.launchTimeout = d
	}
}

// WithStopTimeout bounds a single runtime terminate.
func WithStopTimeout(d time.Duration) RegistryOpt {
	return func(r *Registry) {
		r.stopTimeout = d
	}
}

// WithImage sets the image every world instance runs.
func WithImage(image string) RegistryOpt {
	return func(r *Registry) {
		r.image = image
	}
}

// WithNetwork sets the network instances are attached to.
func WithNetwork(network string) RegistryOpt {
	return func(r *Registry) {
		r.network = network
	}
}

// WithNotifier publishes lifecycle events.
func WithNotifier(n Notifier) RegistryOpt {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOpt {
	return func(r *Registry) {
		r.now = now
	}
}
