package api

import "time"

type ServerOpt func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOpt {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithShutdownTimeout bounds how long in-flight requests get on shutdown.
func WithShutdownTimeout(d time.Duration) ServerOpt {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}
