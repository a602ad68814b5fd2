package executor

import (
	"fmt"

	"github.com/micmonay/keybd_event"
)

// Binding is a scoped handle to the OS key-injection facility. Each
// executor operation acquires a fresh handle and drops it on completion;
// platform bindings are not assumed safe to share across threads.
type Binding interface {
	// TapKey presses and releases the key with the given native code.
	TapKey(code int) error
	// HoldModifier presses (pressed=true) or releases a modifier key by
	// name: shift, ctrl/control, alt/option, cmd/meta.
	HoldModifier(name string, pressed bool) error
}

// BindingFactory produces a scoped Binding per invocation.
type BindingFactory func() (Binding, error)

type keybdBinding struct {
	kb keybd_event.KeyBonding
}

// NewKeybdBinding acquires a key-injection handle backed by keybd_event.
func NewKeybdBinding() (Binding, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("failed to create key binding: %w", err)
	}
	return &keybdBinding{kb: kb}, nil
}

func (b *keybdBinding) TapKey(code int) error {
	b.kb.Clear()
	b.kb.SetKeys(code)
	return b.kb.Launching()
}

func (b *keybdBinding) HoldModifier(name string, pressed bool) error {
	b.kb.Clear()
	switch name {
	case "shift":
		b.kb.HasSHIFT(true)
	case "ctrl", "control":
		b.kb.HasCTRL(true)
	case "alt", "option":
		b.kb.HasALT(true)
	case "cmd", "meta":
		b.kb.HasSuper(true)
	default:
		return fmt.Errorf("Unknown modifier key: %s", name)
	}
	if pressed {
		return b.kb.Press()
	}
	return b.kb.Release()
}
