package generation

import (
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
)

// Aggressiveness scales how much content each stage asks for
type Aggressiveness string

const (
	AggressivenessLow      Aggressiveness = "low"
	AggressivenessStandard Aggressiveness = "standard"
	AggressivenessHigh     Aggressiveness = "high"
)

// ModePolicy is what a processing mode enables
type ModePolicy struct {
	Mode           model.ProcessingMode
	AllowOCR       bool
	Stages         []model.StageKind
	Aggressiveness Aggressiveness
}

var modePolicies = map[model.ProcessingMode]ModePolicy{
	model.ProcessingModeAIOnly: {
		Mode:           model.ProcessingModeAIOnly,
		AllowOCR:       true,
		Stages:         model.AllStages,
		Aggressiveness: AggressivenessHigh,
	},
	model.ProcessingModeHybrid: {
		Mode:           model.ProcessingModeHybrid,
		AllowOCR:       true,
		Stages:         model.AllStages,
		Aggressiveness: AggressivenessStandard,
	},
	model.ProcessingModeExtractionOnly: {
		Mode:           model.ProcessingModeExtractionOnly,
		AllowOCR:       false,
		Stages:         []model.StageKind{model.StageCheatSheets, model.StageNotes},
		Aggressiveness: AggressivenessLow,
	},
}

// PolicyFor returns the policy of a processing mode
func PolicyFor(mode model.ProcessingMode) (ModePolicy, error) {
	p, ok := modePolicies[mode]
	if !ok {
		return ModePolicy{}, fmt.Errorf("unknown processing mode %q", mode)
	}
	return p, nil
}

// Enabled reports whether the stage runs under this policy
func (p ModePolicy) Enabled(stage model.StageKind) bool {
	for _, s := range p.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

var itemCounts = map[model.StageKind]map[Aggressiveness]int{
	model.StageQuestions:   {AggressivenessLow: 5, AggressivenessStandard: 10, AggressivenessHigh: 20},
	model.StageMockTests:   {AggressivenessLow: 1, AggressivenessStandard: 1, AggressivenessHigh: 2},
	model.StageMnemonics:   {AggressivenessLow: 3, AggressivenessStandard: 5, AggressivenessHigh: 10},
	model.StageCheatSheets: {AggressivenessLow: 1, AggressivenessStandard: 2, AggressivenessHigh: 3},
	model.StageNotes:       {AggressivenessLow: 3, AggressivenessStandard: 5, AggressivenessHigh: 8},
}

// ItemCount is the number of items a stage should produce
func ItemCount(stage model.StageKind, a Aggressiveness) int {
	if n, ok := itemCounts[stage][a]; ok {
		return n
	}
	return itemCounts[stage][AggressivenessStandard]
}
