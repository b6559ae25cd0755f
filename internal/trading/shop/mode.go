package shop

import (
	"fmt"
	"strings"
)

// Mode is the interaction mode of a shop sign
type Mode int

const (
	ModeSetup Mode = iota
	ModeType
	ModeBoard
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeSetup:
		return "SETUP"
	case ModeType:
		return "TYPE"
	case ModeBoard:
		return "BOARD"
	case ModeDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeSetup, ModeType, ModeBoard, ModeDelete:
		return true
	default:
		return false
	}
}

// Next is the mode reached by an owner right-click
func (m Mode) Next() Mode {
	switch m {
	case ModeSetup:
		return ModeType
	case ModeType:
		return ModeBoard
	case ModeBoard:
		return ModeDelete
	case ModeDelete:
		return ModeSetup
	default:
		return ModeBoard
	}
}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SETUP":
		return ModeSetup, nil
	case "TYPE":
		return ModeType, nil
	case "BOARD":
		return ModeBoard, nil
	case "DELETE":
		return ModeDelete, nil
	default:
		return ModeBoard, fmt.Errorf("unknown shop mode %q", s)
	}
}
