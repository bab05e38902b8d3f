package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// PitchClasses are the canonical sharp spellings, indexed by pitch class
var PitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

const (
	ScaleMajor = "major"
	ScaleMinor = "minor"
)

var letterPitch = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Camelot wheel: index 0 is 1A/1B
var (
	camelotMinor = [12]int{8, 3, 10, 5, 0, 7, 2, 9, 4, 11, 6, 1} // 1A=G#m ... 12A=C#m
	camelotMajor = [12]int{11, 6, 1, 8, 3, 10, 5, 0, 7, 2, 9, 4} // 1B=B ... 12B=E
	openKeyMajor = [12]int{0, 7, 2, 9, 4, 11, 6, 1, 8, 3, 10, 5} // 1d=C ... 12d=F
	openKeyMinor = [12]int{9, 4, 11, 6, 1, 8, 3, 10, 5, 0, 7, 2} // 1m=Am ... 12m=Dm
)

var (
	wheelPattern = regexp.MustCompile(`^(\d{1,2})\s*([ABabdmDM])$`)
	notePattern  = regexp.MustCompile(`^([A-Ga-g])([#b♯♭]?)\s*(.*)$`)
)

// ParseKey parses declared key tags such as "Am", "A minor", "F#m", "Bbmaj", "C# Major",
// Camelot ("8A") and Open Key ("1d") codes into a sharp tonic and a scale
func ParseKey(s string) (key, scale string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}

	if m := wheelPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 12 {
			return "", "", false
		}
		switch m[2] {
		case "A", "a":
			return PitchClasses[camelotMinor[n-1]], ScaleMinor, true
		case "B", "b":
			return PitchClasses[camelotMajor[n-1]], ScaleMajor, true
		case "d", "D":
			return PitchClasses[openKeyMajor[n-1]], ScaleMajor, true
		default:
			return PitchClasses[openKeyMinor[n-1]], ScaleMinor, true
		}
	}

	m := notePattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}

	pc := letterPitch[strings.ToUpper(m[1])[0]]
	switch m[2] {
	case "#", "♯":
		pc++
	case "b", "♭":
		pc--
	}
	pc = (pc + 12) % 12

	scale, ok = parseScale(m[3])
	if !ok {
		return "", "", false
	}
	return PitchClasses[pc], scale, true
}

func parseScale(s string) (string, bool) {
	s = strings.TrimSpace(s)
	// a lone "M" is major, a lone "m" minor
	switch s {
	case "":
		return ScaleMajor, true
	case "M":
		return ScaleMajor, true
	case "m":
		return ScaleMinor, true
	}

	switch strings.ToLower(s) {
	case "maj", "major", "dur":
		return ScaleMajor, true
	case "min", "minor", "moll", "-":
		return ScaleMinor, true
	}
	return "", false
}

// PitchClassIndex returns the pitch class of a canonical key name, or -1
func PitchClassIndex(key string) int {
	for i, name := range PitchClasses {
		if name == key {
			return i
		}
	}
	return -1
}
