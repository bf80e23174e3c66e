package domain

import (
	"math"
	"time"
)

// MuteForever stands in for "silent until changed": the largest timestamp the
// messaging service accepts for mute_until.
var MuteForever = time.Unix(math.MaxInt32, 0).UTC()

// MuteStatus is the notification state of a conversation as reported by the gateway.
type MuteStatus struct {
	MuteUntil time.Time
	Silent    bool
	// Credential is the opaque access credential required to address channels.
	// Empty for chats.
	Credential string
}

// EffectiveUntil folds the silent flag into the mute-until timestamp.
func (s MuteStatus) EffectiveUntil() time.Time {
	return EffectiveMuteUntil(s.MuteUntil, s.Silent)
}

// EffectiveMuteUntil returns MuteForever when silent is set, muteUntil otherwise.
func EffectiveMuteUntil(muteUntil time.Time, silent bool) time.Time {
	if silent {
		return MuteForever
	}
	return muteUntil
}
