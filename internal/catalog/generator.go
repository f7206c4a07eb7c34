package catalog

import (
	"fmt"
	"math/rand"
)

var defaultThemes = []string{
	"lighthouse", "anchor", "cactus", "comet", "lantern",
	"mushroom", "owl", "pagoda", "sailboat", "teapot",
}

// Generate builds spec.Count descriptors from spec.Seed. The same spec always
// yields the same challenges.
func Generate(spec GeneratorSpec, fallbackGrid int) []Challenge {
	grid := spec.GridSize
	if grid <= 0 {
		grid = fallbackGrid
	}
	if grid < MinGridSize {
		grid = MinGridSize
	}
	if grid > MaxGridSize {
		grid = MaxGridSize
	}
	cells := grid * grid
	minCorrect := spec.MinCorrect
	if minCorrect <= 0 {
		minCorrect = 1
	}
	maxCorrect := spec.MaxCorrect
	if maxCorrect <= 0 || maxCorrect > cells {
		maxCorrect = min(cells, grid+1)
	}
	if minCorrect > maxCorrect {
		minCorrect = maxCorrect
	}
	prefix := spec.IDPrefix
	if prefix == "" {
		prefix = "gen"
	}
	themes := spec.Themes
	if len(themes) == 0 {
		themes = defaultThemes
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	out := make([]Challenge, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		k := minCorrect + rng.Intn(maxCorrect-minCorrect+1)
		perm := rng.Perm(cells)
		theme := themes[rng.Intn(len(themes))]
		seed := rng.Int63()
		out = append(out, Challenge{
			ChallengeID:  fmt.Sprintf("%s-%03d", prefix, i+1),
			Title:        fmt.Sprintf("Find the %s #%d", theme, i+1),
			PromptMD:     fmt.Sprintf("Select every tile showing a **%s**.", theme),
			Theme:        theme,
			GridSize:     grid,
			CorrectCells: SortedCells(perm[:k]),
			Seed:         &seed,
		})
	}
	return out
}
