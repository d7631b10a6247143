package usecase

import "time"

// SetNow pins the escalation clock in tests.
func (uc *AlertUseCase) SetNow(now func() time.Time) {
	uc.now = now
}
