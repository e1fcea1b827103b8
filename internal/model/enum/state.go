package enum

import (
	"database/sql/driver"
	"fmt"
)

// State is the lifecycle state of a trade signal. Closed is terminal.
type State uint8

const (
	_state_beg State = iota
	StateOpen
	StateClosed
	_state_end
)

func (s State) IsAvailable() bool {
	return s > _state_beg && s < _state_end
}

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return ""
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StateOpen
	case "closed":
		*s = StateClosed
	default:
		return fmt.Errorf("enum: invalid state %q", string(text))
	}
	return nil
}

func (s State) Value() (driver.Value, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("enum: invalid state %d", s)
	}
	return s.String(), nil
}

func (s *State) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("enum: cannot scan %T into state", src)
	}
}
