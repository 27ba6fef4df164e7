package model

// CommandKind enumerates the remote commands a device accepts.
type CommandKind string

const (
	CommandReload     CommandKind = "reload"
	CommandReboot     CommandKind = "reboot"
	CommandScreenshot CommandKind = "screenshot"
)

// RemoteCommand is delivered over the per-device push channel, never polled.
type RemoteCommand struct {
	ID      string      `json:"id"`
	Command CommandKind `json:"command"`
	Payload string      `json:"payload,omitempty"`
}
