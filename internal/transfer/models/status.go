package models

// Status is a transfer's position in the delivery state machine.
type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusForwarded  Status = "FORWARDED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusDelivered  Status = "DELIVERED"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

// transitions lists every legal edge. Self-loops are claim and reschedule
// writes that change bookkeeping but not the status.
var transitions = map[Status]map[Status]bool{
	StatusRequested: {
		StatusRequested: true, StatusForwarded: true, StatusFailed: true, StatusExpired: true,
	},
	StatusForwarded: {
		StatusProcessing: true, StatusReady: true, StatusFailed: true, StatusExpired: true,
	},
	StatusProcessing: {
		StatusReady: true, StatusFailed: true, StatusExpired: true,
	},
	StatusReady: {
		StatusReady: true, StatusDelivered: true, StatusFailed: true, StatusExpired: true,
	},
	StatusFailed: {
		StatusFailed: true, StatusForwarded: true, StatusDelivered: true,
		StatusReady: true, StatusRequested: true, StatusExpired: true,
	},
}

// AllStatuses in lifecycle order.
var AllStatuses = []Status{
	StatusRequested, StatusForwarded, StatusProcessing, StatusReady,
	StatusDelivered, StatusFailed, StatusExpired,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusForwarded, StatusProcessing, StatusReady,
		StatusDelivered, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusExpired
}

// CanTransitionTo reports whether s -> next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// AcceptsPayload reports whether a holder may submit data in this status.
func (s Status) AcceptsPayload() bool {
	return s == StatusForwarded || s == StatusProcessing
}

// NonTerminal returns every status from which expiry is still possible.
func NonTerminal() []Status {
	return []Status{StatusRequested, StatusForwarded, StatusProcessing, StatusReady, StatusFailed}
}
