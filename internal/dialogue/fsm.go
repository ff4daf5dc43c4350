// Package dialogue drives an interview: it selects topics, dispatches
// questions, reacts to turn boundaries and decides how to follow up.
package dialogue

import (
	"fmt"

	"github.com/skillissue/mockview/internal/models"
)

var transitions = map[models.DialogueState][]models.DialogueState{
	models.StateIntake:      {models.StateQuestioning},
	models.StateQuestioning: {models.StateEvaluating, models.StateQuestioning},
	models.StateEvaluating:  {models.StateDeciding, models.StateQuestioning},
	models.StateDeciding:    {models.StateQuestioning},
}

// CanTransition reports whether from -> to is allowed. Any non-terminal
// state may move to Concluding or Terminal; Terminal has no exits.
func CanTransition(from, to models.DialogueState) bool {
	if from == models.StateTerminal {
		return false
	}
	if to == models.StateConcluding || to == models.StateTerminal {
		return from != models.StateConcluding || to == models.StateTerminal
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves s to state to.
func Transition(s *models.Session, to models.DialogueState) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("invalid dialogue transition %s -> %s", s.State, to)
	}
	s.State = to
	return nil
}
