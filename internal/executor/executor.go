// Package executor wraps the host's OS side effects (key injection,
// pointer control, volume, brightness, opening URLs) as idempotent,
// independently-invocable operations with a uniform result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot"
)

// Result is the uniform outcome of one operation. Status mirrors the
// response envelope statuses.
type Result struct {
	Status  string
	Message string
}

const (
	statusSuccess = "success"
	statusInfo    = "info"
)

// Text input guards shared process-wide.
const (
	DefaultTextMaxLen      = 1000
	DefaultTextMinInterval = 100 * time.Millisecond
)

// Executor is the boundary the dispatcher calls: one OS side effect per
// operation. Implementations must never let a native fault escape as a
// panic; failures come back as ordinary errors.
type Executor interface {
	PlayPause(ctx context.Context) (Result, error)
	MediaPrevious(ctx context.Context) (Result, error)
	MediaNext(ctx context.Context) (Result, error)
	MediaStop(ctx context.Context) (Result, error)
	VolumeUp(ctx context.Context) (Result, error)
	VolumeDown(ctx context.Context) (Result, error)
	VolumeMute(ctx context.Context) (Result, error)
	VolumeSet(ctx context.Context, value int) (Result, error)
	BrightnessUp(ctx context.Context) (Result, error)
	BrightnessDown(ctx context.Context) (Result, error)
	BrightnessSet(ctx context.Context, value int) (Result, error)
	SendKey(ctx context.Context, key string) (Result, error)
	TextInput(ctx context.Context, text string) (Result, error)
	MouseMove(ctx context.Context, deltaX, deltaY int) (Result, error)
	MouseClick(ctx context.Context, button string) (Result, error)
	Scroll(ctx context.Context, deltaX, deltaY int) (Result, error)
	OpenWebsite(ctx context.Context, url string) (Result, error)
}

// Native performs the real OS calls.
type Native struct {
	keymap  KeyMap
	newBind BindingFactory
	runner  Runner
	mods    *modifierState

	// Text input is the most expensive native call; spacing and a
	// process-wide single-flight cap protect the platform binding.
	textLimiter *rate.Limiter
	textSem     *semaphore.Weighted
	textMaxLen  int

	log zerolog.Logger
}

var _ Executor = (*Native)(nil)

type Option func(*Native)

// WithKeyMap replaces the default key-name table.
func WithKeyMap(m KeyMap) Option {
	return func(n *Native) { n.keymap = m }
}

// WithBindingFactory replaces how key-injection handles are acquired.
func WithBindingFactory(f BindingFactory) Option {
	return func(n *Native) { n.newBind = f }
}

// WithRunner replaces the shell command runner.
func WithRunner(r Runner) Option {
	return func(n *Native) { n.runner = r }
}

// WithTextLimits overrides the text-input length ceiling and minimum
// spacing between native calls.
func WithTextLimits(maxLen int, minInterval time.Duration) Option {
	return func(n *Native) {
		n.textMaxLen = maxLen
		n.textLimiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(n *Native) { n.log = log }
}

func NewNative(opts ...Option) *Native {
	n := &Native{
		keymap:      DefaultKeyMap(),
		newBind:     NewKeybdBinding,
		runner:      execRunner{},
		mods:        newModifierState(),
		textLimiter: rate.NewLimiter(rate.Every(DefaultTextMinInterval), 1),
		textSem:     semaphore.NewWeighted(1),
		textMaxLen:  DefaultTextMaxLen,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func success(message string) Result {
	return Result{Status: statusSuccess, Message: message}
}

// run isolates one native invocation on its own goroutine so that a
// fault in the platform binding, panics included, downgrades to an error
// result instead of taking the session or the process down. The call is
// abandoned, not cancelled, when ctx expires; the dispatcher's timeout
// response wins and the stray operation finishes in the background.
func (n *Native) run(ctx context.Context, op string, fn func() (Result, error)) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.log.Error().Str("op", op).Interface("panic", r).Msg("native operation fault")
				ch <- outcome{err: fmt.Errorf("%s operation failed: %v", op, r)}
			}
		}()
		res, err := fn()
		ch <- outcome{res: res, err: err}
	}()
	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// shellOutcome maps a platform-command error to a result: missing
// platform support becomes an info result, anything else an error.
func shellOutcome(err error, message string) (Result, error) {
	if err == nil {
		return success(message), nil
	}
	var ni errNotImplemented
	if errors.As(err, &ni) {
		return Result{Status: statusInfo, Message: ni.Error()}, nil
	}
	return Result{}, err
}

func (n *Native) tap(ctx context.Context, op, keyName, message string) (Result, error) {
	return n.run(ctx, op, func() (Result, error) {
		code, ok := n.keymap.Lookup(keyName)
		if !ok {
			return Result{}, fmt.Errorf("Unknown key: %s", keyName)
		}
		b, err := n.newBind()
		if err != nil {
			return Result{}, err
		}
		if err := b.TapKey(code); err != nil {
			return Result{}, fmt.Errorf("Failed to send %s key: %v", op, err)
		}
		return success(message), nil
	})
}

func (n *Native) PlayPause(ctx context.Context) (Result, error) {
	return n.tap(ctx, "play/pause", keyPlayPause, "Play/pause command sent")
}

func (n *Native) MediaPrevious(ctx context.Context) (Result, error) {
	return n.tap(ctx, "media previous", keyMediaPrevious, "Media previous command sent")
}

func (n *Native) MediaNext(ctx context.Context) (Result, error) {
	return n.tap(ctx, "media next", keyMediaNext, "Media next command sent")
}

func (n *Native) MediaStop(ctx context.Context) (Result, error) {
	return n.tap(ctx, "media stop", keyMediaStop, "Media stop command sent")
}

func (n *Native) VolumeUp(ctx context.Context) (Result, error) {
	return n.run(ctx, "volume up", func() (Result, error) {
		return shellOutcome(n.adjustVolume(ctx, 5), "Volume up command sent")
	})
}

func (n *Native) VolumeDown(ctx context.Context) (Result, error) {
	return n.run(ctx, "volume down", func() (Result, error) {
		return shellOutcome(n.adjustVolume(ctx, -5), "Volume down command sent")
	})
}

func (n *Native) VolumeMute(ctx context.Context) (Result, error) {
	return n.run(ctx, "volume mute", func() (Result, error) {
		return shellOutcome(n.toggleMute(ctx), "Volume mute command sent")
	})
}

// VolumeSet clamps to [0,100]; the dispatcher passes out-of-range values
// through untouched and the range policy lives here.
func (n *Native) VolumeSet(ctx context.Context, value int) (Result, error) {
	value = clamp(value, 0, 100)
	return n.run(ctx, "volume set", func() (Result, error) {
		return shellOutcome(n.setVolume(ctx, value), fmt.Sprintf("Volume set to %d%%", value))
	})
}

func (n *Native) BrightnessUp(ctx context.Context) (Result, error) {
	return n.tap(ctx, "brightness up", "f2", "Brightness up command sent")
}

func (n *Native) BrightnessDown(ctx context.Context) (Result, error) {
	return n.tap(ctx, "brightness down", "f1", "Brightness down command sent")
}

func (n *Native) BrightnessSet(ctx context.Context, value int) (Result, error) {
	value = clamp(value, 0, 100)
	return n.run(ctx, "brightness set", func() (Result, error) {
		return shellOutcome(n.setBrightness(ctx, value), fmt.Sprintf("Brightness set to %d%%", value))
	})
}

// SendKey injects one named key. Modifier names are held-and-released
// through the binding, names in the key map are tapped by code, and any
// single character falls through as literal text.
func (n *Native) SendKey(ctx context.Context, key string) (Result, error) {
	name := strings.ToLower(key)
	message := fmt.Sprintf("Key '%s' sent successfully", key)

	if IsModifierName(name) {
		return n.run(ctx, "send key", func() (Result, error) {
			b, err := n.newBind()
			if err != nil {
				return Result{}, err
			}
			if err := b.HoldModifier(name, true); err != nil {
				return Result{}, fmt.Errorf("Failed to press key '%s': %v", key, err)
			}
			if err := b.HoldModifier(name, false); err != nil {
				return Result{}, fmt.Errorf("Failed to release key '%s': %v", key, err)
			}
			return success(message), nil
		})
	}

	if _, ok := n.keymap.Lookup(name); ok {
		return n.tap(ctx, "send key", name, message)
	}

	if utf8.RuneCountInString(key) == 1 {
		return n.run(ctx, "send key", func() (Result, error) {
			return shellOutcome(n.typeText(ctx, key), message)
		})
	}

	return Result{}, fmt.Errorf("Unknown key: %s", key)
}

// TextInput types a string through the platform binding. Empty input
// short-circuits, over-length input is rejected, calls are spaced at
// least the configured interval apart, and at most one operation is in
// flight process-wide; a second caller is told the system is busy
// rather than queued.
func (n *Native) TextInput(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return success("Empty text input"), nil
	}
	length := utf8.RuneCountInString(text)
	if length > n.textMaxLen {
		return Result{}, fmt.Errorf("Text input too long (max %d characters)", n.textMaxLen)
	}

	if !n.textSem.TryAcquire(1) {
		return Result{}, errors.New(deskpilot.MsgSystemBusy)
	}
	defer n.textSem.Release(1)

	if err := n.textLimiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	return n.run(ctx, "text input", func() (Result, error) {
		if err := n.typeText(ctx, text); err != nil {
			var ni errNotImplemented
			if errors.As(err, &ni) {
				return Result{Status: statusInfo, Message: ni.Error()}, nil
			}
			return Result{}, fmt.Errorf("Text input failed: %v", err)
		}
		return success(fmt.Sprintf("Text input successful (%d characters)", length)), nil
	})
}

func (n *Native) MouseMove(ctx context.Context, deltaX, deltaY int) (Result, error) {
	return n.run(ctx, "mouse move", func() (Result, error) {
		return shellOutcome(n.moveMouse(ctx, deltaX, deltaY),
			fmt.Sprintf("Mouse moved by (%d, %d)", deltaX, deltaY))
	})
}

func (n *Native) MouseClick(ctx context.Context, button string) (Result, error) {
	switch button {
	case "left", "right", "middle":
	default:
		return Result{}, fmt.Errorf("Unsupported mouse button: %s", button)
	}
	return n.run(ctx, "mouse click", func() (Result, error) {
		return shellOutcome(n.clickMouse(ctx, button), fmt.Sprintf("Mouse %s clicked", button))
	})
}

func (n *Native) Scroll(ctx context.Context, deltaX, deltaY int) (Result, error) {
	return n.run(ctx, "scroll", func() (Result, error) {
		return shellOutcome(n.scrollWheel(ctx, deltaX, deltaY),
			fmt.Sprintf("Scrolled by (%d, %d)", deltaX, deltaY))
	})
}

func (n *Native) OpenWebsite(ctx context.Context, url string) (Result, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Result{}, errors.New("Invalid URL: must start with http:// or https://")
	}
	return n.run(ctx, "open website", func() (Result, error) {
		if err := n.openURL(ctx, url); err != nil {
			return Result{}, fmt.Errorf("Failed to open URL: %v", err)
		}
		return success(fmt.Sprintf("Opened website: %s", url)), nil
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
