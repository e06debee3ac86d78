// Package ids generates the opaque identifiers used throughout the runtime:
// agent IDs, channel IDs, meeting IDs, stream IDs, and checkpoint IDs.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// HumanID is the reserved AgentID for the default human participant.
const HumanID = "human"

// NewAgentID returns a fresh, program-unique agent identifier.
func NewAgentID() string {
	return uuid.NewString()
}

// NewStreamID returns a fresh identifier for a stream, unique within its
// owning channel. Callers (the sender) are responsible for uniqueness within
// a single channel; a UUID makes cross-channel collisions a non-issue.
func NewStreamID() string {
	return uuid.NewString()
}

// NewCheckpointID returns a fresh checkpoint identifier.
func NewCheckpointID() string {
	return uuid.NewString()
}

// DirectChannelID computes the deterministic channel ID for a two-party
// direct channel, per spec §4.3: channelID = hash(sortLex(a.id, b.id)).
// The same pair in either order always yields the same ID.
func DirectChannelID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(strings.Join(pair, "\x00")))
	return "chan_" + hex.EncodeToString(sum[:16])
}

// NewMeetingID returns a fresh identifier for a meeting. Meeting owners may
// also supply their own ID (spec §4.3: "the meeting owner chooses the id"),
// in which case this is not called.
func NewMeetingID() string {
	return "mtg_" + uuid.NewString()
}
