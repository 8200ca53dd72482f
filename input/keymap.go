package input

import "regexp"

// allowedKeyPattern is the permitted character class for a raw key name
// that isn't in keyDictionary — conservative enough that it can't carry
// shell metacharacters into the injection subprocess's argv.
var allowedKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// keyDictionary renames a subset of browser KeyboardEvent.key values to
// the names the injection tool expects (xdotool-style key symbols).
var keyDictionary = map[string]string{
	"Enter":      "Return",
	"Escape":     "Escape",
	"Backspace":  "BackSpace",
	"Tab":        "Tab",
	" ":          "space",
	"ArrowUp":    "Up",
	"ArrowDown":  "Down",
	"ArrowLeft":  "Left",
	"ArrowRight": "Right",
	"Shift":      "Shift_L",
	"Control":    "Control_L",
	"Alt":        "Alt_L",
	"Meta":       "Super_L",
	"CapsLock":   "Caps_Lock",
	"Delete":     "Delete",
	"Home":       "Home",
	"End":        "End",
	"PageUp":     "Prior",
	"PageDown":   "Next",
	"Insert":     "Insert",
}

// MapKey translates a symbolic web key name into an injection-tool key
// name, or reports ok=false if the name must be dropped: anything outside
// the dictionary, the permitted character class, and single printable
// ASCII is silently discarded rather than forwarded.
func MapKey(webKey string) (mapped string, ok bool) {
	if m, found := keyDictionary[webKey]; found {
		return m, true
	}
	if len(webKey) == 1 && webKey[0] >= 0x20 && webKey[0] <= 0x7e {
		return webKey, true
	}
	if allowedKeyPattern.MatchString(webKey) {
		return webKey, true
	}
	return "", false
}
