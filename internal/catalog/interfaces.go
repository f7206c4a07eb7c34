package catalog

import "context"

type Loader interface {
	LoadSets(ctx context.Context, root string) ([]Set, error)
	FindSet(sets []Set, setID string) (Set, error)
	FindChallenge(set Set, challengeID string) (Challenge, error)
}
