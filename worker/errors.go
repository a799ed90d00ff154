package worker

import "fmt"

// DetectionError means the inactivity scan itself failed (store unreachable).
// The whole run is marked failed and no enrollments are created.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// DispatchError means one email send failed. The enrollment stays at its
// current step and is retried on the next due scan.
type DispatchError struct {
	EnrollmentID uint
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for enrollment %d: %v", e.EnrollmentID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TrackingError means a tracking request carried a malformed or unknown
// token. It is logged internally; the remote caller still gets the pixel or
// the fallback redirect.
type TrackingError struct {
	Token string
	Err   error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("tracking failed for token %q: %v", e.Token, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }

// SchedulingError means a cron expression could not be parsed. It is raised
// at configuration time only; the scheduler never sees an invalid schedule.
type SchedulingError struct {
	Expr string
	Err  error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
