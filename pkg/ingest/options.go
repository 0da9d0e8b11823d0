package ingest

import "fibpipe/pkg/observe"

// Option is a functional option for configuring a Service.
type Option interface {
	apply(*Service)
}

type optionFunc func(*Service)

func (f optionFunc) apply(s *Service) {
	f(s)
}

// WithMaxIndex sets the largest accepted index.
func WithMaxIndex(max int) Option {
	return optionFunc(func(s *Service) {
		s.maxIndex = max
	})
}

// WithTimeouts sets the per-collaborator call timeouts.
func WithTimeouts(t Timeouts) Option {
	return optionFunc(func(s *Service) {
		s.timeouts = t
	})
}

// WithObserver attaches an observer for submit and dependency events.
func WithObserver(obs observe.Observer) Option {
	return optionFunc(func(s *Service) {
		if obs != nil {
			s.observer = obs
		}
	})
}
