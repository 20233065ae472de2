package models

import (
	"encoding/json"
	"strconv"
)

// AnswerPayload is the wire form of a candidate's answers: question id (as a
// string key) to either a selected option index (MCQ) or submitted source
// code (CODE). Clients have historically sent ids both as numbers and as
// strings, so normalization happens exactly once, here, at the boundary.
type AnswerPayload map[string]json.RawMessage

// Answer is the canonical form of a single answer after normalization.
type Answer struct {
	SelectedOption *int
	SubmittedCode  *string
}

// IsBlank reports whether the answer carries no value at all.
func (a Answer) IsBlank() bool {
	return a.SelectedOption == nil && (a.SubmittedCode == nil || *a.SubmittedCode == "")
}

// Normalize parses the raw payload into a map keyed by numeric question id.
// Values that are JSON numbers become option selections, JSON strings become
// submitted code. Entries with unparseable keys or values are dropped rather
// than failing the whole payload: a malformed answer grades as unanswered.
func (p AnswerPayload) Normalize() map[uint]Answer {
	answers := make(map[uint]Answer, len(p))
	for key, raw := range p {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			continue
		}

		var option int
		if err := json.Unmarshal(raw, &option); err == nil {
			answers[uint(id)] = Answer{SelectedOption: &option}
			continue
		}

		var code string
		if err := json.Unmarshal(raw, &code); err == nil {
			answers[uint(id)] = Answer{SubmittedCode: &code}
		}
	}
	return answers
}
