package enum

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

type Side uint8

const (
	_side_beg Side = iota
	SideLong
	SideShort
	_side_end
)

func (s Side) IsAvailable() bool {
	return s > _side_beg && s < _side_end
}

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return ""
	}
}

// ParseSide accepts long/short and the buy/sell aliases, case-insensitive.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return SideLong, true
	case "short", "sell":
		return SideShort, true
	default:
		return _side_beg, false
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	side, ok := ParseSide(string(text))
	if !ok {
		return fmt.Errorf("enum: invalid side %q", string(text))
	}
	*s = side
	return nil
}

// Value stores the side as text.
func (s Side) Value() (driver.Value, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("enum: invalid side %d", s)
	}
	return s.String(), nil
}

func (s *Side) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("enum: cannot scan %T into side", src)
	}
}
