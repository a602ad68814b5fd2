// Package dispatch routes decoded commands to executor operations. It
// owns payload validation, the per-command timeout, and the mapping of
// operation outcomes back onto response envelopes.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/deskpilot/deskpilot"
	"github.com/deskpilot/deskpilot/internal/executor"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/internal/protocol"
)

// DefaultTimeout bounds one command execution end to end.
const DefaultTimeout = 30 * time.Second

const maxTextLen = 1000

type Dispatcher struct {
	exec    executor.Executor
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(disp *Dispatcher) { disp.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(disp *Dispatcher) { disp.metrics = m }
}

func New(exec executor.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:    exec,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle validates cmd's payload, executes it with the configured
// timeout, and returns the response envelope. The command id is echoed
// on every path, including validation failures and timeouts.
func (d *Dispatcher) Handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	start := time.Now()
	resp := d.handle(ctx, cmd)
	elapsed := time.Since(start)

	d.metrics.ObserveCommand(cmd.Name, resp.Status, elapsed)
	d.log.Debug().
		Str("command", cmd.Name).
		Str("status", resp.Status).
		Dur("elapsed", elapsed).
		Msg("command handled")
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, cmd protocol.Command) protocol.Response {
	invoke, errResp := d.resolve(cmd)
	if errResp != nil {
		return *errResp
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		res executor.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().Str("command", cmd.Name).Interface("panic", r).Msg("executor fault")
				ch <- outcome{err: fmt.Errorf("Command execution failed: %v", r)}
			}
		}()
		res, err := invoke(ctx)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return protocol.Error(cmd.ID, out.err.Error())
		}
		if out.res.Status == protocol.StatusInfo {
			return protocol.Info(cmd.ID, out.res.Message)
		}
		return protocol.Success(cmd.ID, out.res.Message)
	case <-ctx.Done():
		d.log.Warn().Str("command", cmd.Name).Msg("command timed out")
		return protocol.Error(cmd.ID, deskpilot.MsgCommandTimedOut)
	}
}

type invocation func(ctx context.Context) (executor.Result, error)

// resolve maps the command name to an executor invocation. Validation
// failures and text-input short circuits come back as a ready response
// and never reach the executor.
func (d *Dispatcher) resolve(cmd protocol.Command) (invocation, *protocol.Response) {
	fail := func(message string) (invocation, *protocol.Response) {
		resp := protocol.Error(cmd.ID, message)
		return nil, &resp
	}

	switch cmd.Name {
	case deskpilot.CmdPlayPause:
		return d.exec.PlayPause, nil
	case deskpilot.CmdMediaPrevious:
		return d.exec.MediaPrevious, nil
	case deskpilot.CmdMediaNext:
		return d.exec.MediaNext, nil
	case deskpilot.CmdMediaStop:
		return d.exec.MediaStop, nil
	case deskpilot.CmdVolumeUp:
		return d.exec.VolumeUp, nil
	case deskpilot.CmdVolumeDown:
		return d.exec.VolumeDown, nil
	case deskpilot.CmdVolumeMute:
		return d.exec.VolumeMute, nil

	case deskpilot.CmdVolumeSet, deskpilot.CmdBrightnessSet:
		if cmd.Data == nil {
			return fail(fmt.Sprintf("Missing data for %s command", cmd.Name))
		}
		value, ok := cmd.IntField("value")
		if !ok {
			return fail("Missing or invalid 'value' parameter")
		}
		if cmd.Name == deskpilot.CmdVolumeSet {
			return func(ctx context.Context) (executor.Result, error) {
				return d.exec.VolumeSet(ctx, value)
			}, nil
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.BrightnessSet(ctx, value)
		}, nil

	case deskpilot.CmdBrightnessUp:
		return d.exec.BrightnessUp, nil
	case deskpilot.CmdBrightnessDown:
		return d.exec.BrightnessDown, nil

	case deskpilot.CmdSendKey:
		if cmd.Data == nil {
			return fail("Missing data for send_key command")
		}
		key, ok := cmd.StringField("key")
		if !ok {
			return fail("Missing 'key' parameter")
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.SendKey(ctx, key)
		}, nil

	case deskpilot.CmdTextInput:
		if cmd.Data == nil {
			return fail("Missing data for text_input command")
		}
		text, ok := cmd.StringField("text")
		if !ok {
			return fail("Missing or invalid 'text' parameter")
		}
		if text == "" {
			resp := protocol.Success(cmd.ID, deskpilot.MsgEmptyTextIgnored)
			return nil, &resp
		}
		if utf8.RuneCountInString(text) > maxTextLen {
			return fail(deskpilot.MsgTextTooLong)
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.TextInput(ctx, text)
		}, nil

	case deskpilot.CmdMouseMove, deskpilot.CmdScroll:
		if cmd.Data == nil {
			return fail(fmt.Sprintf("Missing data for %s command", cmd.Name))
		}
		dx, ok := cmd.IntField("deltaX")
		if !ok {
			return fail("Missing or invalid 'deltaX' parameter")
		}
		dy, ok := cmd.IntField("deltaY")
		if !ok {
			return fail("Missing or invalid 'deltaY' parameter")
		}
		if cmd.Name == deskpilot.CmdMouseMove {
			return func(ctx context.Context) (executor.Result, error) {
				return d.exec.MouseMove(ctx, dx, dy)
			}, nil
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.Scroll(ctx, dx, dy)
		}, nil

	case deskpilot.CmdMouseClick:
		if cmd.Data == nil {
			return fail("Missing data for mouse_click command")
		}
		button, ok := cmd.StringField("button")
		if !ok {
			return fail("Missing 'button' parameter")
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.MouseClick(ctx, button)
		}, nil

	case deskpilot.CmdOpenWebsite:
		if cmd.Data == nil {
			return fail("Missing data for open_website command")
		}
		url, ok := cmd.StringField("url")
		if !ok {
			return fail("Missing 'url' parameter")
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fail("Invalid URL: must start with http:// or https://")
		}
		return func(ctx context.Context) (executor.Result, error) {
			return d.exec.OpenWebsite(ctx, url)
		}, nil

	default:
		return fail(fmt.Sprintf("%s: %s", deskpilot.MsgUnknownCommand, cmd.Name))
	}
}
