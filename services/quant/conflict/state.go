// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflict

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition indicates a state transition outside the
// session transition table. It signals a controller bug, not a bad
// request.
var ErrInvalidTransition = errors.New("invalid session transition")

// SessionState is a state in the conflict session state machine.
type SessionState string

const (
	// StateAwaitingClaims is the initial state before dispatch.
	StateAwaitingClaims SessionState = "AWAITING_CLAIMS"

	// StateComputing dispatches claims to the compute services.
	StateComputing SessionState = "COMPUTING"

	// StateComparing classifies computed results against assertions.
	StateComparing SessionState = "COMPARING"

	// StateConfirmed means every claim agreed with its computation.
	StateConfirmed SessionState = "CONFIRMED"

	// StateEscalated means at least one claim conflicted.
	StateEscalated SessionState = "ESCALATED"

	// StateDone is the terminal state with final verdicts.
	StateDone SessionState = "DONE"

	// StateError is the terminal state for unrecoverable failures.
	StateError SessionState = "ERROR"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// IsTerminal returns true for DONE and ERROR.
func (s SessionState) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// AllStates returns all valid session states.
func AllStates() []SessionState {
	return []SessionState{
		StateAwaitingClaims,
		StateComputing,
		StateComparing,
		StateConfirmed,
		StateEscalated,
		StateDone,
		StateError,
	}
}

// TransitionEntry records one state transition of a session.
type TransitionEntry struct {
	From   SessionState `json:"from"`
	To     SessionState `json:"to"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"at"`
}

// Session tracks one conflict session's state and transition history.
//
// Thread Safety:
//
//	Session is safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id          string
	state       SessionState
	transitions []TransitionEntry
	createdAt   time.Time
}

// NewSession creates a session in AWAITING_CLAIMS.
func NewSession(id string) *Session {
	return &Session{
		id:        id,
		state:     StateAwaitingClaims,
		createdAt: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// GetState returns the current state.
func (s *Session) GetState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState updates the state and appends a history entry.
func (s *Session) setState(to SessionState, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, TransitionEntry{
		From:   s.state,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	})
	s.state = to
}

// Transitions returns a copy of the transition history.
func (s *Session) Transitions() []TransitionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TransitionEntry, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// StateMachine validates conflict session transitions.
//
// The state machine enforces the following transition graph:
//
//	AWAITING_CLAIMS → COMPUTING  : Claim set validated
//	COMPUTING → COMPARING        : All claim computations joined
//	COMPARING → CONFIRMED        : Every claim inside tolerance
//	COMPARING → ESCALATED        : At least one claim in conflict
//	CONFIRMED → DONE             : Verdicts final
//	ESCALATED → COMPUTING        : Revised claims received, re-debate round
//	ESCALATED → DONE             : Conflicts surfaced as-is
//	* → ERROR                    : Any non-terminal state can fail
//
// The single-re-debate budget is enforced by the controller's round
// counter; the table stays a pure reachability relation.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[SessionState]map[SessionState]bool
}

// NewStateMachine creates a state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[SessionState]map[SessionState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[SessionState]bool)
	}

	sm.addTransition(StateAwaitingClaims, StateComputing)
	sm.addTransition(StateComputing, StateComparing)
	sm.addTransition(StateComparing, StateConfirmed)
	sm.addTransition(StateComparing, StateEscalated)
	sm.addTransition(StateConfirmed, StateDone)
	sm.addTransition(StateEscalated, StateComputing)
	sm.addTransition(StateEscalated, StateDone)

	for _, state := range AllStates() {
		if !state.IsTerminal() {
			sm.addTransition(state, StateError)
		}
	}

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to SessionState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to SessionState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to move a session to a new state.
//
// Validates against the transition table, updates the session, and
// records a history entry with the transition reason. Returns
// ErrInvalidTransition when the move is not allowed.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(session *Session, to SessionState) error {
	from := session.GetState()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.setState(to, sm.TransitionReason(from, to))
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from SessionState) []SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []SessionState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to SessionState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"AWAITING_CLAIMS->COMPUTING": "Claim set validated",
		"COMPUTING->COMPARING":       "All claim computations joined",
		"COMPARING->CONFIRMED":       "Every claim inside tolerance",
		"COMPARING->ESCALATED":       "At least one claim in conflict",
		"CONFIRMED->DONE":            "Verdicts final",
		"ESCALATED->COMPUTING":       "Revised claims received, re-debate round",
		"ESCALATED->DONE":            "Conflicts surfaced as-is",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	if to == StateError {
		return "Unrecoverable failure"
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()
