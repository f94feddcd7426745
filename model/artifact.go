package model

import (
	"encoding/json"
	"fmt"
)

// StageKind identifies one independent generation stage
type StageKind string

const (
	StageQuestions   StageKind = "questions"
	StageMockTests   StageKind = "mock_tests"
	StageMnemonics   StageKind = "mnemonics"
	StageCheatSheets StageKind = "cheat_sheets"
	StageNotes       StageKind = "notes"
)

// AllStages lists every stage in display order
var AllStages = []StageKind{
	StageQuestions,
	StageMockTests,
	StageMnemonics,
	StageCheatSheets,
	StageNotes,
}

// Artifacts is the tagged variant produced by a successful stage.
// The unexported method seals the set to the types in this file.
type Artifacts interface {
	Stage() StageKind
	Len() int
	sealed()
}

// Question is a single practice question
type Question struct {
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"` // easy, medium, hard
	PageRef     int      `json:"page_ref,omitempty"`
}

// MockTest is a timed collection of questions
type MockTest struct {
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	Questions       []Question `json:"questions"`
}

// Mnemonic is a memory aid for a concept
type Mnemonic struct {
	Concept     string `json:"concept"`
	Mnemonic    string `json:"mnemonic"`
	Explanation string `json:"explanation,omitempty"`
}

// CheatSheet is a condensed topic summary
type CheatSheet struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
	Formulas []string `json:"formulas,omitempty"`
}

// Note is a structured study note
type Note struct {
	Heading   string   `json:"heading"`
	Body      string   `json:"body"`
	KeyPoints []string `json:"key_points,omitempty"`
}

type QuestionSet struct {
	Questions []Question `json:"questions"`
}

type MockTestSet struct {
	MockTests []MockTest `json:"mock_tests"`
}

type MnemonicSet struct {
	Mnemonics []Mnemonic `json:"mnemonics"`
}

type CheatSheetSet struct {
	CheatSheets []CheatSheet `json:"cheat_sheets"`
}

type NoteSet struct {
	Notes []Note `json:"notes"`
}

func (QuestionSet) Stage() StageKind   { return StageQuestions }
func (MockTestSet) Stage() StageKind   { return StageMockTests }
func (MnemonicSet) Stage() StageKind   { return StageMnemonics }
func (CheatSheetSet) Stage() StageKind { return StageCheatSheets }
func (NoteSet) Stage() StageKind       { return StageNotes }

func (s QuestionSet) Len() int   { return len(s.Questions) }
func (s MockTestSet) Len() int   { return len(s.MockTests) }
func (s MnemonicSet) Len() int   { return len(s.Mnemonics) }
func (s CheatSheetSet) Len() int { return len(s.CheatSheets) }
func (s NoteSet) Len() int       { return len(s.Notes) }

func (QuestionSet) sealed()   {}
func (MockTestSet) sealed()   {}
func (MnemonicSet) sealed()   {}
func (CheatSheetSet) sealed() {}
func (NoteSet) sealed()       {}

// NewArtifacts returns an empty artifact set for the stage
func NewArtifacts(stage StageKind) (Artifacts, error) {
	switch stage {
	case StageQuestions:
		return &QuestionSet{}, nil
	case StageMockTests:
		return &MockTestSet{}, nil
	case StageMnemonics:
		return &MnemonicSet{}, nil
	case StageCheatSheets:
		return &CheatSheetSet{}, nil
	case StageNotes:
		return &NoteSet{}, nil
	}
	return nil, fmt.Errorf("unknown stage kind: %q", stage)
}

// DecodeArtifacts decodes a JSON payload into the artifact set for the stage
func DecodeArtifacts(stage StageKind, raw []byte) (Artifacts, error) {
	set, err := NewArtifacts(stage)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, set); err != nil {
		return nil, fmt.Errorf("failed to decode %s artifacts: %w", stage, err)
	}
	return set, nil
}
