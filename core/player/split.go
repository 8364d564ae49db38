package player

import (
	"context"

	"stemdeck/model"
)

// Splitter performs secondary decomposition of an eligible stem
// (vocals -> lead/backing, drums -> kit pieces). Implementations are
// external collaborators: a remote split service or a local tool
// runner. A failed split returns a *SplitError when the backend
// supplied a message and note for the user.
type Splitter interface {
	Split(ctx context.Context, jobID, trackName string) ([]model.ChildStem, error)
}
