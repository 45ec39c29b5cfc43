package voting

type Action int

const (
	ActionNone Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "none"
}

type Transition struct {
	Action Action
	Next   VoteState
	Delta  int
}

// Next computes what has to happen to move a (user, item) pair from existing
// to requested. Re-requesting the current state is a no-op, not a toggle.
func Next(existing, requested VoteState) Transition {
	switch {
	case existing == requested:
		return Transition{Action: ActionNone, Next: existing}
	case existing == None:
		return Transition{Action: ActionInsert, Next: requested, Delta: int(requested)}
	case requested == None:
		return Transition{Action: ActionDelete, Next: None, Delta: -int(existing)}
	default:
		return Transition{Action: ActionUpdate, Next: requested, Delta: int(requested) - int(existing)}
	}
}
