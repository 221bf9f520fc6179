// Package mode holds the static safety profiles that bound how fast and how
// much a single account may send.
package mode

import (
	"time"

	"github.com/anotheregi/blastkeun/internal/model"
)

type Profile struct {
	ID            model.ModeID  `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	MaxPerSession int           `json:"maxPerSession"`
	MaxPerDay     int           `json:"maxPerDay"`
	MinDelay      time.Duration `json:"-"`
	MaxDelay      time.Duration `json:"-"`
	MinDelayMs    int64         `json:"minDelayMs"`
	MaxDelayMs    int64         `json:"maxDelayMs"`
	Features      []string      `json:"features"`
}

// Default is used when a caller does not pick a mode.
const Default = model.ModeSafe

var profiles = map[model.ModeID]Profile{
	model.ModeStandard: newProfile(
		model.ModeStandard,
		"Standard Mode",
		"For established accounts (older than 6 months)",
		50, 200,
		15*time.Second, 60*time.Second,
		[]string{"15-60s delay", "50 messages/session", "200 messages/day", "Basic human simulation"},
	),
	model.ModeSafe: newProfile(
		model.ModeSafe,
		"Safe Mode",
		"For new accounts (younger than 6 months)",
		15, 50,
		45*time.Second, 180*time.Second,
		[]string{"45-180s delay", "15 messages/session", "50 messages/day", "Advanced human simulation"},
	),
}

func newProfile(id model.ModeID, name, desc string, perSession, perDay int, minDelay, maxDelay time.Duration, features []string) Profile {
	return Profile{
		ID:            id,
		Name:          name,
		Description:   desc,
		MaxPerSession: perSession,
		MaxPerDay:     perDay,
		MinDelay:      minDelay,
		MaxDelay:      maxDelay,
		MinDelayMs:    minDelay.Milliseconds(),
		MaxDelayMs:    maxDelay.Milliseconds(),
		Features:      features,
	}
}

// Resolve never fails: unknown ids get the Safe profile.
func Resolve(id model.ModeID) Profile {
	if p, ok := profiles[id]; ok {
		return clone(p)
	}
	return clone(profiles[model.ModeSafe])
}

func IsKnown(id model.ModeID) bool {
	_, ok := profiles[id]
	return ok
}

func List() map[model.ModeID]Profile {
	out := make(map[model.ModeID]Profile, len(profiles))
	for id, p := range profiles {
		out[id] = clone(p)
	}
	return out
}

// IDs returns the known ids in a stable order.
func IDs() []model.ModeID {
	return []model.ModeID{model.ModeStandard, model.ModeSafe}
}

func clone(p Profile) Profile {
	p.Features = append([]string(nil), p.Features...)
	return p
}
