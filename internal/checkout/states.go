package checkout

// State is where the machine stands in a checkout attempt.
type State string

const (
	StateIdle            State = "IDLE"
	StateAddressReady    State = "ADDRESS_READY"
	StateIntentCreated   State = "INTENT_CREATED"
	StateAwaitingGateway State = "AWAITING_GATEWAY"
	StatePolling         State = "POLLING"
	StatePaid            State = "PAID"
	StateFailed          State = "FAILED"
	StateCancelled       State = "CANCELLED"
	StateFinalizing      State = "FINALIZING"
	StateComplete        State = "COMPLETE"
)

// allowedTransitions lists the legal successors of each state. FAILED and
// CANCELLED are passed through on the way back to ADDRESS_READY; FINALIZING
// loops on itself while a failed finalize waits for a retry.
var allowedTransitions = map[State][]State{
	StateIdle: {
		StateAddressReady,
		StateAwaitingGateway, // resumed attempt
	},
	StateAddressReady: {
		StateAddressReady,
		StateIntentCreated,
		StateAwaitingGateway, // resumed attempt
		StateFinalizing,      // cash on delivery
		StateIdle,
	},
	StateIntentCreated: {
		StateAwaitingGateway,
		StateAddressReady, // redirect could not be opened
	},
	StateAwaitingGateway: {
		StatePolling,
	},
	StatePolling: {
		StatePaid,
		StateFailed,
		StateCancelled,
	},
	StatePaid: {
		StateFinalizing,
	},
	StateFailed: {
		StateAddressReady,
	},
	StateCancelled: {
		StateAddressReady,
	},
	StateFinalizing: {
		StateFinalizing,
		StateComplete,
	},
	StateComplete: {
		StateIdle,
		StateAddressReady,
		StateAwaitingGateway, // resumed attempt
	},
}

// CanTransition checks if a transition from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// InFlight reports whether an attempt is between intent creation and its
// outcome. No new intent may be created in these states.
func (s State) InFlight() bool {
	switch s {
	case StateIntentCreated, StateAwaitingGateway, StatePolling, StatePaid, StateFinalizing:
		return true
	}
	return false
}

func (s State) IsTerminal() bool {
	switch s {
	case StatePaid, StateFailed, StateCancelled, StateComplete:
		return true
	}
	return false
}
