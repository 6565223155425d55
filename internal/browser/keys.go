package browser

import (
	"strings"

	"github.com/chromedp/chromedp/kb"
)

// Modifier is a set of modifier keys held during a key press or click.
type Modifier int

const (
	Ctrl Modifier = 1 << iota
	Shift
	Alt
	Meta
)

// Has reports whether all of o are held in m.
func (m Modifier) Has(o Modifier) bool {
	return m&o == o
}

func (m Modifier) String() string {
	var parts []string
	for _, mod := range []struct {
		m    Modifier
		name string
	}{{Ctrl, "Ctrl"}, {Shift, "Shift"}, {Alt, "Alt"}, {Meta, "Meta"}} {
		if m.Has(mod.m) {
			parts = append(parts, mod.name)
		}
	}
	return strings.Join(parts, "+")
}

// Named keys, in the encoding chromedp dispatches.
const (
	Escape     = kb.Escape
	Enter      = kb.Enter
	ArrowLeft  = kb.ArrowLeft
	ArrowRight = kb.ArrowRight
	Space      = " "
)

// Keys is a key sequence typed while Modifiers are held.
type Keys struct {
	Modifiers Modifier
	Text      string
}

// Type is a plain key sequence.
func Type(text string) Keys {
	return Keys{Text: text}
}

// Chord is a key sequence pressed with modifiers held, e.g. Ctrl+Shift+f.
func Chord(mods Modifier, text string) Keys {
	return Keys{Modifiers: mods, Text: text}
}

func (k Keys) String() string {
	if k.Modifiers == 0 {
		return k.Text
	}
	return k.Modifiers.String() + "+" + k.Text
}
