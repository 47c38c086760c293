package core

// AdminClearance is the only clearance level allowed to trigger downloads.
// Lower numbers are more privileged.
const AdminClearance = 0

// Principal is the authenticated caller.
type Principal struct {
	Name      string
	Clearance int
}

// AccessGate decides whether a principal may trigger ingestion.
type AccessGate struct{}

// Authorize returns ErrPermissionDenied unless p has admin clearance.
// It has no side effects.
func (AccessGate) Authorize(p Principal) error {
	if p.Clearance != AdminClearance {
		return ErrPermissionDenied
	}
	return nil
}
