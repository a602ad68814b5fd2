package deskpilot

// Recognized command names on the wire.
const (
	CmdPlayPause      = "play_pause"
	CmdMediaPrevious  = "media_previous"
	CmdMediaNext      = "media_next"
	CmdMediaStop      = "media_stop"
	CmdVolumeUp       = "volume_up"
	CmdVolumeDown     = "volume_down"
	CmdVolumeMute     = "volume_mute"
	CmdVolumeSet      = "volume_set"
	CmdBrightnessUp   = "brightness_up"
	CmdBrightnessDown = "brightness_down"
	CmdBrightnessSet  = "brightness_set"
	CmdSendKey        = "send_key"
	CmdTextInput      = "text_input"
	CmdMouseMove      = "mouse_move"
	CmdMouseClick     = "mouse_click"
	CmdScroll         = "scroll"
	CmdOpenWebsite    = "open_website"
)

// Standard messages surfaced in response envelopes and host-facing errors.
const (
	// Protocol errors
	MsgInvalidCommandFormat = "Invalid command format"
	MsgUnknownCommand       = "Unknown command"
	MsgCommandTimedOut      = "Command timed out"

	// Text input guards
	MsgEmptyTextIgnored = "Empty text input ignored"
	MsgTextTooLong      = "Text too long (max 1000 characters)"
	MsgSystemBusy       = "System busy, please try again"

	// Server lifecycle
	MsgServerAlreadyRunning = "WebSocket server is already running"
	MsgServerNotRunning     = "WebSocket server is not running"

	// Connection errors
	ErrConnectionClosed = "client connection is closed"
	ErrContextCancelled = "client context cancelled"
)
