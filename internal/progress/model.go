package progress

import "time"

// Progress is the persisted position of one user in one challenge.
// (UserID, ChallengeID) is the composite identity; Version is the optimistic
// concurrency token, bumped on every successful save.
type Progress struct {
	UserID       int64
	ChallengeID  int64
	CurrentState string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
