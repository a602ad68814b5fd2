package executor

import (
	"fmt"
	"strings"
	"sync"
)

// modifierAliases maps every accepted modifier name to the canonical
// names it shares state with. Toggling "ctrl" flips "control" too.
var modifierAliases = map[string][]string{
	"shift":   {"shift"},
	"ctrl":    {"ctrl", "control"},
	"control": {"ctrl", "control"},
	"alt":     {"alt", "option"},
	"option":  {"alt", "option"},
	"cmd":     {"cmd", "meta"},
	"meta":    {"cmd", "meta"},
}

// modifierGroups holds one representative per alias group, used when
// releasing everything that is held.
var modifierGroups = []string{"shift", "ctrl", "alt", "cmd"}

// IsModifierName reports whether name (lower-case) is a modifier key.
func IsModifierName(name string) bool {
	_, ok := modifierAliases[name]
	return ok
}

// modifierState tracks which modifier keys are currently held down.
// Aliased names (ctrl/control, alt/option, cmd/meta) move together.
type modifierState struct {
	mu      sync.Mutex
	pressed map[string]bool
}

func newModifierState() *modifierState {
	return &modifierState{pressed: make(map[string]bool)}
}

func (m *modifierState) states() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(modifierAliases))
	for name := range modifierAliases {
		out[name] = m.pressed[name]
	}
	return out
}

// ToggleModifier presses or releases one modifier key through the input
// binding and flips its held state. State is left untouched when the
// injection fails, so the reported state never drifts from the keys
// actually held on the host.
func (n *Native) ToggleModifier(name string) (Result, error) {
	canonical := strings.ToLower(name)
	aliases, ok := modifierAliases[canonical]
	if !ok {
		return Result{}, fmt.Errorf("Unknown modifier key: %s", name)
	}

	n.mods.mu.Lock()
	defer n.mods.mu.Unlock()

	next := !n.mods.pressed[aliases[0]]
	b, err := n.newBind()
	if err != nil {
		return Result{}, err
	}
	if err := b.HoldModifier(canonical, next); err != nil {
		return Result{}, fmt.Errorf("Failed to toggle modifier key '%s': %v", name, err)
	}
	for _, a := range aliases {
		n.mods.pressed[a] = next
	}
	return success(fmt.Sprintf("Modifier key '%s' toggled to %t", name, next)), nil
}

// ClearModifiers releases every held modifier key through the input
// binding. A key whose release fails stays marked as pressed.
func (n *Native) ClearModifiers() (Result, error) {
	n.mods.mu.Lock()
	defer n.mods.mu.Unlock()

	var held []string
	for _, name := range modifierGroups {
		if n.mods.pressed[name] {
			held = append(held, name)
		}
	}
	if len(held) > 0 {
		b, err := n.newBind()
		if err != nil {
			return Result{}, err
		}
		for _, name := range held {
			if err := b.HoldModifier(name, false); err != nil {
				return Result{}, fmt.Errorf("Failed to release modifier key '%s': %v", name, err)
			}
			for _, a := range modifierAliases[name] {
				n.mods.pressed[a] = false
			}
		}
	}
	return success("All modifier keys cleared"), nil
}

// ModifierStates reports the held state of every known modifier name.
func (n *Native) ModifierStates() map[string]bool {
	return n.mods.states()
}
