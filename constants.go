package server

import "time"

// ProtocolVersion tags every wire message so clients can detect mismatches.
const ProtocolVersion = 1

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 2 * time.Second
	disconnectAfter   = 3 * heartbeatInterval
)

const (
	// DefaultScene is where newly created player hadrons spawn.
	DefaultScene = "LoruleH8"
	// DefaultSprite is the visual type assigned to newly created player hadrons.
	DefaultSprite = "bloomby"

	defaultSpawnX = 0
	defaultSpawnY = 0
)

// HeartbeatInterval exposes the heartbeat cadence for diagnostics payloads.
func HeartbeatInterval() time.Duration {
	return heartbeatInterval
}
