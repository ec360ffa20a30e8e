package entity

import "time"

// AttemptUpdate persists the outcome of a verification or an invalidation.
// The write only applies while the stored record still matches the
// Expected* values.
type AttemptUpdate struct {
	ID                   int64
	ExpectedAttemptCount int
	ExpectedUsed         bool
	AttemptCount         int
	Used                 bool
	UpdatedAt            time.Time
}

// UpdateFrom builds the guarded write that moves before to after.
func UpdateFrom(before, after *OTP) AttemptUpdate {
	return AttemptUpdate{
		ID:                   after.ID,
		ExpectedAttemptCount: before.AttemptCount,
		ExpectedUsed:         before.Used,
		AttemptCount:         after.AttemptCount,
		Used:                 after.Used,
		UpdatedAt:            after.UpdatedAt,
	}
}

// Apply returns a copy of o with the update's new state.
func (u AttemptUpdate) Apply(o OTP) OTP {
	o.AttemptCount = u.AttemptCount
	o.Used = u.Used
	o.UpdatedAt = u.UpdatedAt
	return o
}
