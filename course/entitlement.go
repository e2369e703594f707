// Package course implements the course-progress and content-access subsystem:
// entitlement resolution, a versioned local progress cache with optimistic
// updates, and the per-lesson view projection.
package course

import "time"

// SubscriptionStatus is the state of the user's platform subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionNone     SubscriptionStatus = "none"
)

// Entitlement holds the facts that determine content access: subscription
// state and the set of individually purchased courses. Derived from the
// /users/current response and read-mostly.
type Entitlement struct {
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionEnd    *time.Time         `json:"subscriptionEndDate,omitempty"`
	PurchasedCourseIDs []string           `json:"purchasedCourseIds"`
}

// SubscriptionActiveAt reports whether the subscription grants access at the
// given instant. A subscription expiring exactly now is inactive.
func (e Entitlement) SubscriptionActiveAt(now time.Time) bool {
	return e.SubscriptionStatus == SubscriptionActive &&
		e.SubscriptionEnd != nil &&
		e.SubscriptionEnd.After(now)
}

// HasPurchased reports whether the course was bought outright.
func (e Entitlement) HasPurchased(courseID string) bool {
	for _, id := range e.PurchasedCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// LessonLocked resolves whether a lesson's content is withheld. A lesson whose
// lock flag is off is never locked; a flagged lesson unlocks when the course
// is purchased or the subscription is active. Pure and side-effect free.
func LessonLocked(e Entitlement, courseID string, lesson Lesson, now time.Time) bool {
	if !lesson.IsLocked {
		return false
	}
	if e.HasPurchased(courseID) {
		return false
	}
	return !e.SubscriptionActiveAt(now)
}
