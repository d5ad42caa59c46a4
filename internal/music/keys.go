package music

import "strings"

// Symbols that never map to a pitch.
const (
	SymbolSpace     = "space"
	SymbolEnter     = "enter"
	SymbolBackspace = "backspace"
	SymbolDelete    = "delete"
	SymbolTab       = "tab"
	SymbolEscape    = "escape"
	SymbolUp        = "up"
	SymbolDown      = "down"
	SymbolLeft      = "left"
	SymbolRight     = "right"
)

// IsRest reports whether symbol is a silent step.
func IsRest(symbol string) bool {
	switch symbol {
	case SymbolSpace, SymbolEnter, SymbolBackspace, SymbolDelete:
		return true
	}
	return false
}

// IsFunctionKey reports whether symbol is one of f1-f12.
func IsFunctionKey(symbol string) bool {
	if len(symbol) < 2 || len(symbol) > 3 || symbol[0] != 'f' {
		return false
	}
	n := 0
	for _, c := range symbol[1:] {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= 1 && n <= 12
}

// IsChord reports whether symbol is a chord digit.
func IsChord(symbol string) bool {
	return len(symbol) == 1 && symbol[0] >= '0' && symbol[0] <= '9'
}

// Modifiers is a snapshot of held modifier keys.
type Modifiers struct {
	Shift    bool `json:"shift"`
	Ctrl     bool `json:"ctrl"`
	Alt      bool `json:"alt"`
	Cmd      bool `json:"cmd"`
	CapsLock bool `json:"caps_lock"`
}

// Set updates the named modifier and reports whether the name was known.
func (m *Modifiers) Set(name string, down bool) bool {
	switch strings.ToLower(name) {
	case "shift":
		m.Shift = down
	case "ctrl", "control":
		m.Ctrl = down
	case "alt", "option":
		m.Alt = down
	case "cmd", "command", "meta", "super":
		m.Cmd = down
	case "caps_lock", "capslock":
		m.CapsLock = down
	default:
		return false
	}
	return true
}

// KeyKind distinguishes the three kinds of key source events.
type KeyKind int

const (
	KeyDown KeyKind = iota
	KeyUp
	ModifierChange
)

// KeyEvent is one event from a key source.
type KeyEvent struct {
	Kind      KeyKind
	Symbol    string
	Modifiers Modifiers
	Repeat    bool // key already held
}
