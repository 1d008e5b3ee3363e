package engine

import (
	"reachflow/models"
)

// EvaluateConditions decides whether a due step should execute, given the
// enrollment's action history. All declared conditions must pass; an empty
// list always passes. Pure function, no I/O.
func EvaluateConditions(actions []models.StepAction, step *models.SequenceStep) bool {
	for i := range step.Conditions {
		if !evaluateCondition(actions, step, step.Conditions[i].Kind) {
			return false
		}
	}
	return true
}

func evaluateCondition(actions []models.StepAction, step *models.SequenceStep, kind string) bool {
	switch kind {
	case models.ConditionOpenedPrevious:
		return previousStepOpened(actions, step.StepOrder)
	case models.ConditionNotOpenedPrevious:
		return !previousStepOpened(actions, step.StepOrder)
	case models.ConditionReplied:
		return anyReply(actions)
	case models.ConditionNotReplied:
		return !anyReply(actions)
	}
	// Unknown condition kinds fail closed: the step is skipped rather than sent.
	return false
}

// previousStepOpened reports whether any action for the immediately preceding
// step position carries an open timestamp.
func previousStepOpened(actions []models.StepAction, order int) bool {
	for i := range actions {
		if actions[i].StepOrder == order-1 && actions[i].OpenedAt != nil {
			return true
		}
	}
	return false
}

// anyReply scans the whole history, not just the previous step
func anyReply(actions []models.StepAction) bool {
	for i := range actions {
		if actions[i].RepliedAt != nil {
			return true
		}
	}
	return false
}
