/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sessionreg indexes live FIX sessions by role and FIX identity so
// the rest of the engine can find a logged-on session without talking to
// the codec directly.
package sessionreg

import (
	"strings"
	"sync"

	"github.com/quickfixgo/quickfix"
)

// Role distinguishes the two transport roles a session can play.
type Role int

const (
	RoleAcceptor Role = iota
	RoleInitiator
)

// Status mirrors a session's connection lifecycle.
type Status int

const (
	StatusCreated Status = iota
	StatusLoggedOn
	StatusLoggedOut
	StatusDisabled
)

// Key is the identity a session is registered and looked up by.
type Key struct {
	Role         Role
	BeginString  string
	SenderCompID string
	TargetCompID string
	Qualifier    string
}

func keyOf(role Role, sid quickfix.SessionID) Key {
	return Key{
		Role:         role,
		BeginString:  sid.BeginString,
		SenderCompID: sid.SenderCompID,
		TargetCompID: sid.TargetCompID,
		Qualifier:    sid.Qualifier,
	}
}

// State is the registry's view of a single session.
type State struct {
	Key         Key
	SessionID   quickfix.SessionID
	Status      Status
	NextSenderSeq int
	NextTargetSeq int
}

// Registry is a concurrent SessionKey -> State map guarded by a
// sync.RWMutex: readers share the read lock and wait only while a writer
// holds the lock; writers only ever replace or remove their own entry.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[Key]*State
	primaryAlias   string
}

// New returns an empty Registry. primaryAlias, when non-empty, is preferred
// by FindAnyLoggedOnInitiator when more than one initiator is logged on.
func New(primaryAlias string) *Registry {
	return &Registry{
		sessions:     make(map[Key]*State),
		primaryAlias: primaryAlias,
	}
}

// Register idempotently inserts sid under role, defaulting its status to
// Created if this is the first sighting.
func (r *Registry) Register(role Role, sid quickfix.SessionID) *State {
	k := keyOf(role, sid)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[k]; ok {
		existing.SessionID = sid
		return existing
	}
	st := &State{Key: k, SessionID: sid, Status: StatusCreated}
	r.sessions[k] = st
	return st
}

// MarkLoggedOn transitions the session identified by sid to LoggedOn.
func (r *Registry) MarkLoggedOn(role Role, sid quickfix.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.sessions[keyOf(role, sid)]; ok {
		st.Status = StatusLoggedOn
	}
}

// MarkLoggedOut transitions the session identified by sid to LoggedOut.
func (r *Registry) MarkLoggedOut(role Role, sid quickfix.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.sessions[keyOf(role, sid)]; ok {
		st.Status = StatusLoggedOut
	}
}

// Unregister removes sid's entry if it is still the registered value.
func (r *Registry) Unregister(role Role, sid quickfix.SessionID) {
	k := keyOf(role, sid)

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.sessions[k]; ok && st.SessionID == sid {
		delete(r.sessions, k)
	}
}

// FindLoggedOn returns the session state for key only if it is LoggedOn.
func (r *Registry) FindLoggedOn(k Key) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[k]
	if !ok || st.Status != StatusLoggedOn {
		return nil, false
	}
	copy := *st
	return &copy, true
}

// FindAnyLoggedOnInitiator scans logged-on initiator sessions in a stable
// iteration order, preferring the configured primary alias when present.
func (r *Registry) FindAnyLoggedOnInitiator() (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.sessions))
	for k := range r.sessions {
		if k.Role == RoleInitiator {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)

	var fallback *State
	for _, k := range keys {
		st := r.sessions[k]
		if st.Status != StatusLoggedOn {
			continue
		}
		if r.primaryAlias != "" && matchesAlias(k, r.primaryAlias) {
			copy := *st
			return &copy, true
		}
		if fallback == nil {
			fallback = st
		}
	}
	if fallback == nil {
		return nil, false
	}
	copy := *fallback
	return &copy, true
}

// FindLoggedOnInitiatorByAlias matches s case-insensitively against
// senderCompId, targetCompId, or qualifier of any logged-on initiator.
func (r *Registry) FindLoggedOnInitiatorByAlias(s string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k, st := range r.sessions {
		if k.Role != RoleInitiator || st.Status != StatusLoggedOn {
			continue
		}
		if matchesAlias(k, s) {
			copy := *st
			return &copy, true
		}
	}
	return nil, false
}

func matchesAlias(k Key, alias string) bool {
	return strings.EqualFold(k.SenderCompID, alias) ||
		strings.EqualFold(k.TargetCompID, alias) ||
		strings.EqualFold(k.Qualifier, alias)
}

// sortKeys provides the registry's stable iteration order: by sender, then
// target, then qualifier.
func sortKeys(keys []Key) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && lessKey(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func lessKey(a, b Key) bool {
	if a.SenderCompID != b.SenderCompID {
		return a.SenderCompID < b.SenderCompID
	}
	if a.TargetCompID != b.TargetCompID {
		return a.TargetCompID < b.TargetCompID
	}
	return a.Qualifier < b.Qualifier
}
