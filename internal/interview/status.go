package interview

import "fmt"

// Status is the lifecycle state of a session.
type Status int

const (
	StatusPending Status = iota + 1
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

// Persisted names. They match the values the gateway database already stores.
const (
	pendingName    = "pending"
	inProgressName = "in_progress"
	completedName  = "completed"
	cancelledName  = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return pendingName
	case StatusInProgress:
		return inProgressName
	case StatusCompleted:
		return completedName
	case StatusCancelled:
		return cancelledName
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of String. Unknown names are data corruption, never a default.
func ParseStatus(name string) (Status, error) {
	switch name {
	case pendingName:
		return StatusPending, nil
	case inProgressName:
		return StatusInProgress, nil
	case completedName:
		return StatusCompleted, nil
	case cancelledName:
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("%w: unknown status %q", ErrCorrupt, name)
	}
}

// Valid reports whether s is one of the declared states.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusCancelled
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether a session in s blocks another start for the same resume.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", ErrCorrupt, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
