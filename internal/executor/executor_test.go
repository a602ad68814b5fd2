package executor_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deskpilot/deskpilot/internal/executor"
)

// fakeBinding records key taps and modifier transitions.
type fakeBinding struct {
	mu   sync.Mutex
	taps []int
	mods []string
}

func (b *fakeBinding) TapKey(code int) error {
	b.mu.Lock()
	b.taps = append(b.taps, code)
	b.mu.Unlock()
	return nil
}

func (b *fakeBinding) HoldModifier(name string, pressed bool) error {
	b.mu.Lock()
	if pressed {
		b.mods = append(b.mods, name+"+")
	} else {
		b.mods = append(b.mods, name+"-")
	}
	b.mu.Unlock()
	return nil
}

// fakeRunner records shell invocations; block, when set, stalls Run until
// it is closed.
type fakeRunner struct {
	mu    sync.Mutex
	runs  [][]string
	block chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.runs = append(r.runs, append([]string{name}, args...))
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	return nil
}

func (r *fakeRunner) Start(ctx context.Context, name string, args ...string) error {
	return r.Run(ctx, name, args...)
}

func (r *fakeRunner) invocations() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.runs...)
}

func newNative(b *fakeBinding, r *fakeRunner, opts ...executor.Option) *executor.Native {
	base := []executor.Option{
		executor.WithBindingFactory(func() (executor.Binding, error) { return b, nil }),
		executor.WithRunner(r),
	}
	return executor.NewNative(append(base, opts...)...)
}

func TestKeyMapLookup(t *testing.T) {
	t.Parallel()

	m := executor.DefaultKeyMap()

	for _, name := range []string{"space", "enter", "escape", "up", "f12", "a", "z", "backspace", "tab"} {
		if _, ok := m.Lookup(name); !ok {
			t.Errorf("Lookup(%q) not found", name)
		}
	}
	if _, ok := m.Lookup("ENTER"); !ok {
		t.Error("Lookup is not case-insensitive")
	}
	if _, ok := m.Lookup("hyperspace"); ok {
		t.Error("Lookup(hyperspace) found, want miss")
	}
}

func TestKeyMapMerge(t *testing.T) {
	t.Parallel()

	m := executor.DefaultKeyMap().Merge(map[string]int{"Copilot": 999})
	code, ok := m.Lookup("copilot")
	if !ok || code != 999 {
		t.Errorf("Lookup(copilot) = %d, %v; want 999, true", code, ok)
	}
}

func TestSendKeyTapsMappedKeys(t *testing.T) {
	t.Parallel()

	b := &fakeBinding{}
	n := newNative(b, &fakeRunner{})

	res, err := n.SendKey(context.Background(), "Enter")
	if err != nil {
		t.Fatalf("SendKey() error = %v", err)
	}
	if res.Message != "Key 'Enter' sent successfully" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(b.taps) != 1 {
		t.Errorf("taps = %v, want one entry", b.taps)
	}
}

func TestSendKeyModifierPressRelease(t *testing.T) {
	t.Parallel()

	b := &fakeBinding{}
	n := newNative(b, &fakeRunner{})

	if _, err := n.SendKey(context.Background(), "ctrl"); err != nil {
		t.Fatalf("SendKey(ctrl) error = %v", err)
	}
	want := []string{"ctrl+", "ctrl-"}
	if len(b.mods) != 2 || b.mods[0] != want[0] || b.mods[1] != want[1] {
		t.Errorf("modifier transitions = %v, want %v", b.mods, want)
	}
}

func TestSendKeyUnknown(t *testing.T) {
	t.Parallel()

	n := newNative(&fakeBinding{}, &fakeRunner{})

	_, err := n.SendKey(context.Background(), "jump")
	if err == nil {
		t.Fatal("SendKey(jump) error = nil, want error")
	}
	if err.Error() != "Unknown key: jump" {
		t.Errorf("error = %q", err)
	}
}

func TestVolumeSetClampsRange(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("volume control uses the platform shell")
	}

	r := &fakeRunner{}
	n := newNative(&fakeBinding{}, r)

	res, err := n.VolumeSet(context.Background(), 250)
	if err != nil {
		t.Fatalf("VolumeSet(250) error = %v", err)
	}
	if res.Message != "Volume set to 100%" {
		t.Errorf("Message = %q, want clamped to 100%%", res.Message)
	}

	res, err = n.VolumeSet(context.Background(), -10)
	if err != nil {
		t.Fatalf("VolumeSet(-10) error = %v", err)
	}
	if res.Message != "Volume set to 0%" {
		t.Errorf("Message = %q, want clamped to 0%%", res.Message)
	}

	if len(r.invocations()) != 2 {
		t.Errorf("runner invoked %d times, want 2", len(r.invocations()))
	}
}

func TestMouseClickRejectsUnknownButton(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	n := newNative(&fakeBinding{}, r)

	_, err := n.MouseClick(context.Background(), "back")
	if err == nil || err.Error() != "Unsupported mouse button: back" {
		t.Fatalf("MouseClick(back) error = %v", err)
	}
	if len(r.invocations()) != 0 {
		t.Errorf("runner invoked on invalid button")
	}
}

func TestOpenWebsiteRejectsNonHTTP(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	n := newNative(&fakeBinding{}, r)

	for _, url := range []string{"ftp://example.com", "file:///etc/passwd", "example.com"} {
		if _, err := n.OpenWebsite(context.Background(), url); err == nil {
			t.Errorf("OpenWebsite(%q) error = nil, want error", url)
		}
	}
	if len(r.invocations()) != 0 {
		t.Errorf("runner invoked for rejected URL")
	}
}

func TestTextInputCountsRunes(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("text input uses the platform shell")
	}

	n := newNative(&fakeBinding{}, &fakeRunner{})

	res, err := n.TextInput(context.Background(), "héllo")
	if err != nil {
		t.Fatalf("TextInput() error = %v", err)
	}
	if res.Message != "Text input successful (5 characters)" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestTextInputLengthLimit(t *testing.T) {
	t.Parallel()

	n := newNative(&fakeBinding{}, &fakeRunner{})

	_, err := n.TextInput(context.Background(), strings.Repeat("a", 1001))
	if err == nil {
		t.Fatal("TextInput(1001 chars) error = nil, want error")
	}
	if !strings.Contains(err.Error(), "max 1000 characters") {
		t.Errorf("error = %q", err)
	}
}

func TestTextInputEmptyShortCircuits(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	n := newNative(&fakeBinding{}, r)

	res, err := n.TextInput(context.Background(), "")
	if err != nil {
		t.Fatalf("TextInput(empty) error = %v", err)
	}
	if res.Status != "success" {
		t.Errorf("Status = %q", res.Status)
	}
	if len(r.invocations()) != 0 {
		t.Errorf("runner invoked for empty text")
	}
}

func TestTextInputSingleFlight(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("text input uses the platform shell")
	}

	r := &fakeRunner{block: make(chan struct{})}
	n := newNative(&fakeBinding{}, r)

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.TextInput(context.Background(), "first")
	}()

	// Wait until the first call is parked inside the runner, holding the
	// single-flight slot.
	deadline := time.Now().Add(2 * time.Second)
	for len(r.invocations()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first text input never reached the runner")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := n.TextInput(context.Background(), "second")
	if err == nil || err.Error() != "System busy, please try again" {
		t.Fatalf("concurrent TextInput error = %v, want busy rejection", err)
	}

	close(r.block)
	<-done
}

func TestModifierToggleAliases(t *testing.T) {
	t.Parallel()

	b := &fakeBinding{}
	n := newNative(b, &fakeRunner{})

	res, err := n.ToggleModifier("ctrl")
	if err != nil {
		t.Fatalf("ToggleModifier(ctrl) error = %v", err)
	}
	if res.Message != "Modifier key 'ctrl' toggled to true" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(b.mods) != 1 || b.mods[0] != "ctrl+" {
		t.Errorf("modifier transitions = %v, want [ctrl+]", b.mods)
	}

	states := n.ModifierStates()
	if !states["ctrl"] || !states["control"] {
		t.Errorf("states = %v, want ctrl and control both true", states)
	}
	if states["shift"] {
		t.Errorf("shift toggled as a side effect")
	}

	if _, err := n.ToggleModifier("hyper"); err == nil {
		t.Error("ToggleModifier(hyper) error = nil, want error")
	}

	res, err = n.ClearModifiers()
	if err != nil {
		t.Fatalf("ClearModifiers() error = %v", err)
	}
	if res.Message != "All modifier keys cleared" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(b.mods) != 2 || b.mods[1] != "ctrl-" {
		t.Errorf("modifier transitions = %v, want ctrl released through the binding", b.mods)
	}
	for name, pressed := range n.ModifierStates() {
		if pressed {
			t.Errorf("modifier %s still pressed after clear", name)
		}
	}
}

// failBinding rejects every modifier transition.
type failBinding struct{}

func (failBinding) TapKey(int) error                { return nil }
func (failBinding) HoldModifier(string, bool) error { return errors.New("device unavailable") }

func TestModifierToggleKeepsStateOnFailure(t *testing.T) {
	t.Parallel()

	n := executor.NewNative(
		executor.WithBindingFactory(func() (executor.Binding, error) { return failBinding{}, nil }),
		executor.WithRunner(&fakeRunner{}),
	)

	if _, err := n.ToggleModifier("shift"); err == nil {
		t.Fatal("ToggleModifier(shift) error = nil, want injection failure")
	}
	if n.ModifierStates()["shift"] {
		t.Error("shift marked pressed after failed injection")
	}
}

// panicBinding simulates a native fault inside the key facility.
type panicBinding struct{}

func (panicBinding) TapKey(int) error                { panic("segfault in key backend") }
func (panicBinding) HoldModifier(string, bool) error { panic("segfault in key backend") }

func TestNativeFaultIsIsolated(t *testing.T) {
	t.Parallel()

	n := executor.NewNative(
		executor.WithBindingFactory(func() (executor.Binding, error) { return panicBinding{}, nil }),
		executor.WithRunner(&fakeRunner{}),
	)

	_, err := n.PlayPause(context.Background())
	if err == nil {
		t.Fatal("PlayPause() error = nil, want fault error")
	}
	if !strings.Contains(err.Error(), "operation failed") {
		t.Errorf("error = %q", err)
	}

	// The executor stays usable after a fault.
	if _, err := n.TextInput(context.Background(), ""); err != nil {
		t.Errorf("executor unusable after fault: %v", err)
	}
}
