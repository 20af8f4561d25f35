package config

import (
	"fmt"
	"strconv"
	"strings"

	"hz.tools/rf"
)

// Frequency is an rf.Hz that kong can parse from a flag. It accepts plain
// Hertz ("148039000"), the rtl_fm style bare suffixes ("148.039M") and the
// hz.tools spellings ("148.039MHz").
type Frequency rf.Hz

func (f *Frequency) UnmarshalText(text []byte) error {
	hz, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*f = Frequency(hz)
	return nil
}

func (f Frequency) Hz() rf.Hz {
	return rf.Hz(f)
}

func (f Frequency) String() string {
	return rf.Hz(f).String()
}

// ParseFrequency turns a user supplied frequency string into rf.Hz.
func ParseFrequency(s string) (rf.Hz, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty frequency")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("negative frequency %q", s)
		}
		return rf.Hz(v), nil
	}
	var mult float64
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1e3
	case 'm', 'M':
		mult = 1e6
	case 'g', 'G':
		mult = 1e9
	}
	if mult != 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64); err == nil {
			return rf.Hz(v * mult), nil
		}
	}
	return rf.ParseHz(s)
}
