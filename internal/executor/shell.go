package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Runner executes the platform shell commands behind the side effects
// that are not key injection: pointer, scroll, text typing, volume,
// brightness, and URL opening.
type Runner interface {
	// Run executes a command and waits for it, folding stderr into the
	// returned error.
	Run(ctx context.Context, name string, args ...string) error
	// Start spawns a command without waiting (used to hand a URL to the
	// default browser).
	Start(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := bytes.TrimSpace(out); len(msg) > 0 {
			return fmt.Errorf("%s: %v: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %v", name, err)
	}
	return nil
}

func (execRunner) Start(_ context.Context, name string, args ...string) error {
	// Deliberately not CommandContext: the spawned program outlives the
	// dispatch timeout.
	return exec.Command(name, args...).Start()
}

// errNotImplemented marks operations that have no shell equivalent on the
// current platform; callers surface it as an info response instead of a
// failure.
type errNotImplemented struct{ op string }

func (e errNotImplemented) Error() string {
	return fmt.Sprintf("%s not implemented on %s yet", e.op, runtime.GOOS)
}

func (n *Native) adjustVolume(ctx context.Context, step int) error {
	switch runtime.GOOS {
	case "linux":
		suffix := "%+"
		if step < 0 {
			suffix = "%-"
			step = -step
		}
		return n.runner.Run(ctx, "amixer", "set", "Master", strconv.Itoa(step)+suffix)
	case "darwin":
		script := fmt.Sprintf("set volume output volume ((output volume of (get volume settings)) + %d)", step)
		return n.runner.Run(ctx, "osascript", "-e", script)
	default:
		return errNotImplemented{op: "Volume adjust"}
	}
}

func (n *Native) toggleMute(ctx context.Context) error {
	switch runtime.GOOS {
	case "linux":
		return n.runner.Run(ctx, "amixer", "set", "Master", "toggle")
	case "darwin":
		return n.runner.Run(ctx, "osascript", "-e",
			"set volume output muted not (output muted of (get volume settings))")
	default:
		return errNotImplemented{op: "Volume mute"}
	}
}

func (n *Native) setVolume(ctx context.Context, value int) error {
	switch runtime.GOOS {
	case "linux":
		return n.runner.Run(ctx, "amixer", "set", "Master", strconv.Itoa(value)+"%")
	case "darwin":
		return n.runner.Run(ctx, "osascript", "-e", fmt.Sprintf("set volume output volume %d", value))
	default:
		return errNotImplemented{op: "Volume set"}
	}
}

func (n *Native) setBrightness(ctx context.Context, value int) error {
	level := float64(value) / 100.0
	switch runtime.GOOS {
	case "linux":
		// eDP-1 is the common laptop panel name; overridable would be
		// nicer, but the original hard-coded it the same way.
		return n.runner.Run(ctx, "xrandr", "--output", "eDP-1", "--brightness",
			strconv.FormatFloat(level, 'f', 2, 64))
	case "darwin":
		return n.runner.Run(ctx, "brightness", strconv.FormatFloat(level, 'f', 2, 64))
	default:
		return errNotImplemented{op: "Brightness set"}
	}
}

func (n *Native) moveMouse(ctx context.Context, dx, dy int) error {
	switch runtime.GOOS {
	case "linux":
		return n.runner.Run(ctx, "xdotool", "mousemove_relative", "--",
			strconv.Itoa(dx), strconv.Itoa(dy))
	case "darwin":
		return n.runner.Run(ctx, "cliclick", fmt.Sprintf("m:%+d,%+d", dx, dy))
	default:
		return errNotImplemented{op: "Mouse move"}
	}
}

func (n *Native) clickMouse(ctx context.Context, button string) error {
	switch runtime.GOOS {
	case "linux":
		num := map[string]string{"left": "1", "middle": "2", "right": "3"}[button]
		return n.runner.Run(ctx, "xdotool", "click", num)
	case "darwin":
		switch button {
		case "left":
			return n.runner.Run(ctx, "cliclick", "c:.")
		case "right":
			return n.runner.Run(ctx, "cliclick", "rc:.")
		default:
			return errNotImplemented{op: "Middle click"}
		}
	default:
		return errNotImplemented{op: "Mouse click"}
	}
}

func (n *Native) scrollWheel(ctx context.Context, dx, dy int) error {
	if runtime.GOOS != "linux" {
		return errNotImplemented{op: "Scroll"}
	}
	// xdotool models the wheel as buttons: 4/5 vertical, 6/7 horizontal.
	if dy != 0 {
		btn, reps := "5", dy
		if dy < 0 {
			btn, reps = "4", -dy
		}
		if err := n.runner.Run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(reps), btn); err != nil {
			return err
		}
	}
	if dx != 0 {
		btn, reps := "7", dx
		if dx < 0 {
			btn, reps = "6", -dx
		}
		if err := n.runner.Run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(reps), btn); err != nil {
			return err
		}
	}
	return nil
}

func (n *Native) typeText(ctx context.Context, text string) error {
	switch runtime.GOOS {
	case "linux":
		return n.runner.Run(ctx, "xdotool", "type", "--clearmodifiers", "--", text)
	case "darwin":
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
		script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
		return n.runner.Run(ctx, "osascript", "-e", script)
	case "windows":
		escaped := strings.ReplaceAll(text, "'", "''")
		script := fmt.Sprintf("Add-Type -AssemblyName System.Windows.Forms;[System.Windows.Forms.SendKeys]::SendWait('%s')", escaped)
		return n.runner.Run(ctx, "powershell", "-NoProfile", "-Command", script)
	default:
		return errNotImplemented{op: "Text input"}
	}
}

func (n *Native) openURL(ctx context.Context, url string) error {
	switch runtime.GOOS {
	case "darwin":
		return n.runner.Start(ctx, "open", url)
	case "windows":
		return n.runner.Start(ctx, "cmd", "/C", "start", "", url)
	default:
		return n.runner.Start(ctx, "xdg-open", url)
	}
}
