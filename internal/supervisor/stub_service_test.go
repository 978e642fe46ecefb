// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

var errFlaky = errors.New("stub service: simulated failure")

// stubService stands in for the store, background and api services. It
// fails its first `flaky` runs, returns exitErr when set, and otherwise
// blocks until its context ends.
type stubService struct {
	name    string
	flaky   int32
	exitErr error

	starts atomic.Int32
	stops  atomic.Int32
}

func newStubService(name string) *stubService {
	return &stubService{name: name}
}

func (s *stubService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	defer s.stops.Add(1)

	switch {
	case n <= s.flaky:
		return errFlaky
	case s.exitErr != nil:
		return s.exitErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }
