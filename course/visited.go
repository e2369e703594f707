package course

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/mdmeraj-dev/skillnestx-go/store"
)

const visitedKind = "visitedLessons"

// VisitedSet owns the durable per-course record of lessons the learner has
// opened. Visits are user-visible facts and are never rolled back.
type VisitedSet struct {
	mu     sync.Mutex
	store  store.Store
	logger *slog.Logger
}

// NewVisitedSet returns a VisitedSet persisting to the given store.
func NewVisitedSet(s store.Store, logger *slog.Logger) *VisitedSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisitedSet{store: s, logger: logger}
}

// Visit records that a lesson has been opened.
func (v *VisitedSet) Visit(courseID, lessonID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	set := v.loadLocked(courseID)
	if slices.Contains(set, lessonID) {
		return
	}
	set = append(set, lessonID)
	slices.Sort(set)
	if err := store.PutJSON(v.store, visitedKind, courseID, set); err != nil {
		v.logger.Error("failed to persist visited lessons",
			slog.String("course_id", courseID),
			slog.String("error", err.Error()))
	}
}

// Visited returns the set of visited lesson ids for a course.
func (v *VisitedSet) Visited(courseID string) map[string]struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	set := v.loadLocked(courseID)
	out := make(map[string]struct{}, len(set))
	for _, id := range set {
		out[id] = struct{}{}
	}
	return out
}

func (v *VisitedSet) loadLocked(courseID string) []string {
	var set []string
	if err := store.GetJSON(v.store, visitedKind, courseID, &set); err != nil {
		return nil
	}
	return set
}
