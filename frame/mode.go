package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the command code of a read request. It selects which aggregation of
// the channel values the station returns.
type Mode byte

const (
	ModeInstantaneous Mode = 1
	ModeTendency      Mode = 12
	ModeLastStored    Mode = 13
	ModeMean          Mode = 14
	ModeAccumulated   Mode = 15
	ModeIntegrated    Mode = 16
	ModeMaximum       Mode = 17
	ModeMinimum       Mode = 18
	ModeStdDev        Mode = 19
	ModeIncrement     Mode = 20
	ModeAlarmState    Mode = 21
	ModeLogicalOR     Mode = 22
)

var modeNames = map[Mode]string{
	ModeInstantaneous: "instantaneous",
	ModeTendency:      "tendency",
	ModeLastStored:    "last-stored",
	ModeMean:          "mean",
	ModeAccumulated:   "accumulated",
	ModeIntegrated:    "integrated",
	ModeMaximum:       "max",
	ModeMinimum:       "min",
	ModeStdDev:        "stddev",
	ModeIncrement:     "increment",
	ModeAlarmState:    "alarm-state",
	ModeLogicalOR:     "or",
}

// Valid reports whether m is a read command the station understands.
func (m Mode) Valid() bool {
	return m == ModeInstantaneous || (m >= ModeTendency && m <= ModeLogicalOR)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// ParseMode parses a mode name as returned by Mode.String, or a decimal command code.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}

	code, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}

	m := Mode(code)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCommand, code)
	}

	return m, nil
}
