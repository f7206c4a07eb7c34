package app

import (
	"math/rand"
	"strings"
	"time"

	"griddojo/internal/catalog"
)

type GameMode string

const (
	ModeClassic GameMode = "classic"
	ModeDaily   GameMode = "daily"
)

var gameModes = []GameMode{ModeClassic, ModeDaily}

func normalizeGameMode(raw string) GameMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDaily), "dailydrill":
		return ModeDaily
	default:
		return ModeClassic
	}
}

func nextGameMode(m GameMode) GameMode {
	for i, mode := range gameModes {
		if mode == m {
			return gameModes[(i+1)%len(gameModes)]
		}
	}
	return ModeClassic
}

// dailySeed is stable for one UTC calendar day.
func dailySeed(now time.Time) int64 {
	y, m, d := now.UTC().Date()
	return int64(y*10000 + int(m)*100 + d)
}

// orderChallenges returns the play order for mode. Classic keeps set order;
// daily shuffles with a seed derived from the date.
func orderChallenges(challenges []catalog.Challenge, mode GameMode, now time.Time) []catalog.Challenge {
	out := append([]catalog.Challenge(nil), challenges...)
	if mode != ModeDaily {
		return out
	}
	rng := rand.New(rand.NewSource(dailySeed(now)))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
