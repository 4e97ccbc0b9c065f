package controller

import "regexp"

// ansiEscape matches CSI/OSC terminal escape sequences so indicator
// matching operates on the text a human would actually read rather
// than raw control bytes a pane emits for color and cursor movement.
var ansiEscape = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|\][^\x07]*\x07|[@-_])`)

func stripANSI(text string) string {
	return ansiEscape.ReplaceAllString(text, "")
}
