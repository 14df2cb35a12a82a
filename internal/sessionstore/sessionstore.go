/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sessionstore holds initialized SEV sessions between the two
// broker RPCs. A launch_id is inserted by GetBundle and taken exactly once
// by GetSecret; eviction by TTL is indistinguishable from not-found to
// callers, matching the component's single-use contract.
package sessionstore

import (
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sevkbs/kbs/internal/sev"
)

// ErrNotFound is returned when launch_id is absent, already consumed, or
// has aged out past its TTL.
var ErrNotFound = errors.New("sessionstore: not found")

const (
	// DefaultTTL is used when no explicit TTL is configured.
	DefaultTTL = 5 * time.Minute
	// MinTTL and MaxTTL bound the configurable TTL: not less than a
	// minute, not more than an hour.
	MinTTL = time.Minute
	MaxTTL = time.Hour

	sweepInterval = 30 * time.Second
)

type entry struct {
	session   sev.InitializedSession
	expiresAt time.Time
}

// Store is a mutex-guarded, single-use, TTL'd map from launch_id to
// InitializedSession. The zero value is not usable; construct with New.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	logger  logr.Logger
	gauge   prometheus.Gauge

	stop   chan struct{}
	closed sync.Once
}

// New constructs a Store with ttl clamped to [MinTTL, MaxTTL] and starts its
// background sweep goroutine. Call Close to stop the sweep when the store
// is no longer needed.
func New(ttl time.Duration, logger logr.Logger) *Store {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	s := &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// SetGauge wires a Prometheus gauge that tracks the live entry count,
// updated on every Insert, Remove, and sweep. Safe to call once, before the
// store serves any requests.
func (s *Store) SetGauge(g prometheus.Gauge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauge = g
}

// Insert parks sess under launchID, overwriting any prior entry. Overwrite
// on collision is acceptable because launch_id is a freshly generated
// UUID v4 and collisions do not occur in practice.
func (s *Store) Insert(launchID string, sess sev.InitializedSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[launchID] = entry{session: sess, expiresAt: time.Now().Add(s.ttl)}
	s.updateGauge()
}

// Remove atomically takes the session for launchID. A session can be
// removed by at most one caller: the map delete under the held mutex is
// the only synchronization point concurrent GetSecret calls share.
func (s *Store) Remove(launchID string) (sev.InitializedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[launchID]
	if !ok {
		return sev.InitializedSession{}, ErrNotFound
	}
	delete(s.entries, launchID)
	s.updateGauge()

	if time.Now().After(e.expiresAt) {
		return sev.InitializedSession{}, ErrNotFound
	}
	return e.session, nil
}

// updateGauge refreshes the parked-session gauge. Callers must hold s.mu.
func (s *Store) updateGauge() {
	if s.gauge != nil {
		s.gauge.Set(float64(len(s.entries)))
	}
}

// Close stops the background sweep goroutine.
func (s *Store) Close() {
	s.closed.Do(func() { close(s.stop) })
}

func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}

func (s *Store) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.updateGauge()
	s.logger.V(2).Info("session sweep complete", "live", len(s.entries))
}
