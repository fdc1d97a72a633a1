package controls

import (
	"fmt"
	"math"
	"strings"

	"stream-front/work/logger"
)

// Play state icons shown in the toggle control.
const (
	IconPlay  = "▶"
	IconPause = "⏸"
)

// Player is the playback side of the presentation surface the controls drive.
type Player interface {
	CurrentTime() float64 // current playback position in seconds
	Duration() float64    // total duration in seconds; NaN or <= 0 when unknown
	Seek(position float64)
	Play()
	Pause()
	Paused() bool
}

// Display is the icon/time readout kept in sync with the player.
type Display interface {
	SetTimes(current, duration string)
	SetPlayIcon(icon string)
}

// Controls implements relative seeking, play/pause toggling and the keyboard
// shortcut map for a player instance.
type Controls struct {
	player  Player
	display Display
	log     *logger.Logger
}

// New wires controls to a player and its readout display.
func New(player Player, display Display) *Controls {
	return &Controls{
		player:  player,
		display: display,
		log:     logger.New(logger.GetLogLevel()).WithTag("controls"),
	}
}

// Seek moves playback by delta seconds, clamped to [0, duration]. When the
// duration is unknown (a live or indeterminate stream) the seek is a no-op
// with a diagnostic.
func (c *Controls) Seek(delta float64) {
	duration := c.player.Duration()
	if math.IsNaN(duration) || duration <= 0 {
		c.log.Debug("cannot seek: duration not available (might be a live stream)")
		return
	}

	target := c.player.CurrentTime() + delta
	target = math.Max(0, math.Min(target, duration))
	c.player.Seek(target)
	c.refresh()
}

// TogglePlayPause flips the play state and updates the icon.
func (c *Controls) TogglePlayPause() {
	if c.player.Paused() {
		c.player.Play()
		c.display.SetPlayIcon(IconPause)
	} else {
		c.player.Pause()
		c.display.SetPlayIcon(IconPlay)
	}
}

// HandleTimeUpdate refreshes the readout; bind it to the surface's native
// time-update and metadata-loaded signals.
func (c *Controls) HandleTimeUpdate() {
	c.refresh()
}

// HandlePlayStateChange syncs the icon with the player's actual state, for
// play state changes that did not come through TogglePlayPause.
func (c *Controls) HandlePlayStateChange() {
	if c.player.Paused() {
		c.display.SetPlayIcon(IconPlay)
	} else {
		c.display.SetPlayIcon(IconPause)
	}
}

// HandleKey maps a keyboard shortcut to a control operation and reports
// whether the key was handled. Shortcuts are suppressed while focus is inside
// a text input.
func (c *Controls) HandleKey(key string, typing bool) bool {
	if typing {
		return false
	}

	switch strings.ToLower(key) {
	case "arrowleft", "j":
		c.Seek(-10)
	case "arrowright", "l":
		c.Seek(10)
	case "k":
		c.TogglePlayPause()
	default:
		return false
	}
	return true
}

func (c *Controls) refresh() {
	current := FormatTime(c.player.CurrentTime())
	duration := "0:00"
	if d := c.player.Duration(); !math.IsNaN(d) && d > 0 {
		duration = FormatTime(d)
	}
	c.display.SetTimes(current, duration)
}

// FormatTime renders seconds as h:mm:ss, or m:ss below one hour. Unknown
// values render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds <= 0 {
		return "0:00"
	}

	total := int(seconds)
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
