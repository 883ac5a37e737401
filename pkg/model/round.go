// Package model holds the shared types of the interview cycle: rounds, their
// progression status, presence samples and integrity snapshots.
package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/enftaurus/vidyamitra/pkg/errclass"
)

// RoundKey identifies one interview round.
type RoundKey string

const (
	RoundCoding    RoundKey = "coding"
	RoundTechnical RoundKey = "technical"
	RoundManager   RoundKey = "manager"
	RoundHR        RoundKey = "hr"
)

// RoundOrder is the fixed progression order of a cycle.
var RoundOrder = []RoundKey{RoundCoding, RoundTechnical, RoundManager, RoundHR}

var knownRounds = sets.New(RoundOrder...)

var titleCaser = cases.Title(language.English)

// Index returns the position of r in RoundOrder, or -1 if unknown.
func (r RoundKey) Index() int {
	for i, k := range RoundOrder {
		if k == r {
			return i
		}
	}
	return -1
}

// Valid reports whether r is one of the four rounds.
func (r RoundKey) Valid() bool {
	return knownRounds.Has(r)
}

// Title returns the display name, e.g. "Coding" or "HR".
func (r RoundKey) Title() string {
	if r == RoundHR {
		return "HR"
	}
	return titleCaser.String(string(r))
}

// Before returns every round that precedes r.
func (r RoundKey) Before() []RoundKey {
	idx := r.Index()
	if idx <= 0 {
		return nil
	}
	return RoundOrder[:idx]
}

// ParseRoundKey normalizes user input ("Coding", " HR ") into a RoundKey.
func ParseRoundKey(s string) (RoundKey, error) {
	key := RoundKey(cases.Fold().String(strings.TrimSpace(s)))
	if !key.Valid() {
		return "", errclass.ErrRoundInvalid.WithMessagef("unknown round %q", s)
	}
	return key, nil
}

// RoundStatus is the progression status of one round.
type RoundStatus string

const (
	StatusNotStarted RoundStatus = "not_started"
	StatusInProgress RoundStatus = "in_progress"
	StatusCompleted  RoundStatus = "completed"
)

// Label is the human-readable status used by round views.
func (s RoundStatus) Label() string {
	switch s {
	case StatusCompleted:
		return "Completed"
	case StatusInProgress:
		return "In Progress"
	default:
		return "Not Started"
	}
}

// Valid reports whether s is a known status.
func (s RoundStatus) Valid() bool {
	return s == StatusNotStarted || s == StatusInProgress || s == StatusCompleted
}

// StatusMap maps every round to its status. A missing key reads as not started.
type StatusMap map[RoundKey]RoundStatus

// DefaultStatus returns a map with every round not started.
func DefaultStatus() StatusMap {
	m := make(StatusMap, len(RoundOrder))
	for _, r := range RoundOrder {
		m[r] = StatusNotStarted
	}
	return m
}

// Get returns the status of r, treating a missing or unknown value as not started.
func (m StatusMap) Get(r RoundKey) RoundStatus {
	if s, ok := m[r]; ok && s.Valid() {
		return s
	}
	return StatusNotStarted
}

// Normalize returns a copy holding exactly the four rounds. Unknown keys are
// dropped and missing or invalid values become not started.
func (m StatusMap) Normalize() StatusMap {
	out := DefaultStatus()
	for _, r := range RoundOrder {
		out[r] = m.Get(r)
	}
	return out
}

// Clone returns an independent copy.
func (m StatusMap) Clone() StatusMap {
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NextAllowedRound returns the first round that is not completed, or the last
// round when every round is completed.
func NextAllowedRound(m StatusMap) RoundKey {
	for _, r := range RoundOrder {
		if m.Get(r) != StatusCompleted {
			return r
		}
	}
	return RoundOrder[len(RoundOrder)-1]
}

// IsLocked reports whether r sits strictly after the next allowed round.
// Unknown rounds are always locked.
func IsLocked(m StatusMap, r RoundKey) bool {
	idx := r.Index()
	if idx < 0 {
		return true
	}
	return idx > NextAllowedRound(m).Index()
}

// AllCompleted reports whether the cycle has been fully completed.
func AllCompleted(m StatusMap) bool {
	for _, r := range RoundOrder {
		if m.Get(r) != StatusCompleted {
			return false
		}
	}
	return true
}
