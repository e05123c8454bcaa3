package pipeline

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/model"
)

// transitions lists the legal successors of every non-terminal state.
var transitions = map[model.State][]model.State{
	model.StateGated:             {model.StateDispatched, model.StateRejected},
	model.StateDispatched:        {model.StateValidated},
	model.StateValidated:         {model.StateMerged, model.StateEscalatingOptical},
	model.StateEscalatingOptical: {model.StateEscalatingPattern},
	model.StateEscalatingPattern: {model.StateMerged, model.StateEscalatingAgent},
	model.StateEscalatingAgent:   {model.StateMerged},
	model.StateMerged:            {model.StateGatekept, model.StateRejected},
	model.StateGatekept:          {model.StateReported},
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to model.State) bool {
	return slices.Contains(transitions[from], to)
}

// machine tracks the current state of one invoice and the states visited.
type machine struct {
	state model.State
	trail []model.State
}

func newMachine() *machine {
	return &machine{state: model.StateGated, trail: []model.State{model.StateGated}}
}

func (m *machine) advance(to model.State) error {
	if !CanTransition(m.state, to) {
		return eris.Errorf("pipeline: illegal transition %s -> %s", m.state, to)
	}
	m.state = to
	m.trail = append(m.trail, to)
	return nil
}

// escalated reports whether the ladder was entered.
func (m *machine) escalated() bool {
	return slices.Contains(m.trail, model.StateEscalatingOptical)
}
