package forensics

import "time"

// AuditMatcher picks the entry responsible for an event from a batch of
// recent audit entries.
type AuditMatcher struct {
	maxAge time.Duration
}

func NewAuditMatcher(maxAge time.Duration) *AuditMatcher {
	return &AuditMatcher{maxAge: maxAge}
}

// Qualifies reports whether entry is fresh at now and, when targetID is
// set, concerns that target.
func (am *AuditMatcher) Qualifies(entry AuditEntry, targetID string, now time.Time) bool {
	if now.Sub(entry.CreatedAt) >= am.maxAge {
		return false
	}
	return targetID == "" || entry.TargetID == targetID
}

// Match returns the first qualifying entry in the order given, or nil.
func (am *AuditMatcher) Match(entries []AuditEntry, targetID string, now time.Time) *AuditEntry {
	for i := range entries {
		if am.Qualifies(entries[i], targetID, now) {
			return &entries[i]
		}
	}
	return nil
}
