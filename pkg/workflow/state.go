package workflow

import "fmt"

type State string

const (
	StatePlanning          State = "planning"
	StateReviewingStrategy State = "reviewing_strategy"
	StateExecuting         State = "executing"
	StateAssessingOutput   State = "assessing_output"
	StateReporting         State = "reporting"
	StateReviewingReport   State = "reviewing_report"
	StateDone              State = "done"
)

var allowedTransitions = map[State]map[State]struct{}{
	StatePlanning: {
		StateReviewingStrategy: {},
	},
	StateReviewingStrategy: {
		StateExecuting: {},
		StatePlanning:  {},
	},
	StateExecuting: {
		StateAssessingOutput: {},
	},
	StateAssessingOutput: {
		StateReporting: {},
		StatePlanning:  {},
	},
	StateReporting: {
		StateReviewingReport: {},
	},
	StateReviewingReport: {
		StateDone:      {},
		StateReporting: {},
	},
	StateDone: {},
}

func ValidateState(state State) error {
	if _, ok := allowedTransitions[state]; !ok {
		return fmt.Errorf("invalid workflow state: %q", state)
	}
	return nil
}

func ValidateTransition(from, to State) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid workflow transition: %s -> %s", from, to)
	}
	return nil
}

func (s State) Terminal() bool {
	return s == StateDone
}
