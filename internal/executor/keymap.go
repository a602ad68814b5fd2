package executor

import (
	"strings"

	"github.com/micmonay/keybd_event"
)

// KeyMap maps wire-level key names to native key codes. The table is
// configuration data, not code: deployments may override or extend
// entries (see config), and the media commands resolve their shortcut
// keys through it so there is exactly one authoritative mapping.
type KeyMap map[string]int

// Media shortcut names. One consistent table: previous/stop/next follow
// the j/k/l media-player convention, play/pause is space.
const (
	keyPlayPause     = "space"
	keyMediaPrevious = "j"
	keyMediaStop     = "k"
	keyMediaNext     = "l"
)

// DefaultKeyMap returns the built-in name table.
func DefaultKeyMap() KeyMap {
	m := KeyMap{
		"space":     keybd_event.VK_SPACE,
		"enter":     keybd_event.VK_ENTER,
		"return":    keybd_event.VK_ENTER,
		"escape":    keybd_event.VK_ESC,
		"esc":       keybd_event.VK_ESC,
		"up":        keybd_event.VK_UP,
		"down":      keybd_event.VK_DOWN,
		"left":      keybd_event.VK_LEFT,
		"right":     keybd_event.VK_RIGHT,
		"backspace": keybd_event.VK_BACKSPACE,
		"tab":       keybd_event.VK_TAB,
		"f1":        keybd_event.VK_F1,
		"f2":        keybd_event.VK_F2,
		"f3":        keybd_event.VK_F3,
		"f4":        keybd_event.VK_F4,
		"f5":        keybd_event.VK_F5,
		"f6":        keybd_event.VK_F6,
		"f7":        keybd_event.VK_F7,
		"f8":        keybd_event.VK_F8,
		"f9":        keybd_event.VK_F9,
		"f10":       keybd_event.VK_F10,
		"f11":       keybd_event.VK_F11,
		"f12":       keybd_event.VK_F12,
	}
	letters := map[string]int{
		"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C,
		"d": keybd_event.VK_D, "e": keybd_event.VK_E, "f": keybd_event.VK_F,
		"g": keybd_event.VK_G, "h": keybd_event.VK_H, "i": keybd_event.VK_I,
		"j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
		"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O,
		"p": keybd_event.VK_P, "q": keybd_event.VK_Q, "r": keybd_event.VK_R,
		"s": keybd_event.VK_S, "t": keybd_event.VK_T, "u": keybd_event.VK_U,
		"v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
		"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,
	}
	for name, code := range letters {
		m[name] = code
	}
	return m
}

// Lookup resolves a key name case-insensitively.
func (m KeyMap) Lookup(name string) (int, bool) {
	code, ok := m[strings.ToLower(name)]
	return code, ok
}

// Merge overlays overrides on top of the map and returns it.
func (m KeyMap) Merge(overrides map[string]int) KeyMap {
	for name, code := range overrides {
		m[strings.ToLower(name)] = code
	}
	return m
}
