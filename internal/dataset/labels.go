package dataset

import "strings"

// Labels lists the symbol for each class index.
var Labels = []string{"e", "l", "f"}

// NumClasses is the number of recognized symbols.
const NumClasses = 3

// LabelIndex maps a symbol to its class index, ignoring case and surrounding
// whitespace. Unknown symbols map to -1.
func LabelIndex(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "e":
		return 0
	case "l":
		return 1
	case "f":
		return 2
	default:
		return -1
	}
}

// LabelName returns the symbol for a class index, or "?".
func LabelName(index int) string {
	if index < 0 || index >= len(Labels) {
		return "?"
	}
	return Labels[index]
}
