package course

import (
	"context"
	"log/slog"
	"time"
)

// LessonView is the derived per-lesson view state. It is recomputed on every
// relevant change and never persisted on its own.
type LessonView struct {
	Lesson
	Locked    bool
	Completed bool
	Visited   bool
	Active    bool
}

// SectionView is a section projected with per-lesson view state.
type SectionView struct {
	Title   string
	Lessons []LessonView
}

// ContentGate combines the syllabus tree with entitlement resolution and the
// progress cache to produce the lesson view model and navigation decisions
// for one course.
type ContentGate struct {
	tree    *SyllabusTree
	cache   *ProgressCache
	visited *VisitedSet
	logger  *slog.Logger
}

// NewContentGate builds a gate for the given course. The tree is expected to
// have been registered with the cache already so completed-lesson state and
// the syllabus form a consistent pair.
func NewContentGate(tree *SyllabusTree, cache *ProgressCache, visited *VisitedSet, logger *slog.Logger) *ContentGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentGate{tree: tree, cache: cache, visited: visited, logger: logger}
}

// Project computes the per-lesson view state for the whole syllabus.
func (g *ContentGate) Project(ent Entitlement, activeLessonID string, now time.Time) []SectionView {
	var snap *Snapshot
	if s, ok := g.cache.Cached(g.tree.CourseID); ok {
		snap = s
	} else {
		snap = &Snapshot{CourseID: g.tree.CourseID}
	}
	visited := g.visited.Visited(g.tree.CourseID)

	out := make([]SectionView, len(g.tree.Sections))
	for i, sec := range g.tree.Sections {
		sv := SectionView{Title: sec.Title, Lessons: make([]LessonView, len(sec.Lessons))}
		for j, l := range sec.Lessons {
			_, wasVisited := visited[l.ID]
			sv.Lessons[j] = LessonView{
				Lesson:    l,
				Locked:    LessonLocked(ent, g.tree.CourseID, l, now),
				Completed: snap.Completed(l.ID),
				Visited:   wasVisited,
				Active:    l.ID == activeLessonID,
			}
		}
		out[i] = sv
	}
	return out
}

// Visit records the lesson at pos as opened.
func (g *ContentGate) Visit(pos Position) {
	if l, ok := g.tree.LessonAt(pos); ok {
		g.visited.Visit(g.tree.CourseID, l.ID)
	}
}

// Next advances to the following lesson, crossing into the next section when
// the current one is exhausted. The lesson being left is marked complete if
// it is not already; a failed server write is logged and does not block
// navigation. Returns false at the end of the last section.
func (g *ContentGate) Next(ctx context.Context, pos Position) (Position, bool) {
	current, ok := g.tree.LessonAt(pos)
	if !ok {
		return Position{}, false
	}
	if _, err := g.cache.Complete(ctx, g.tree.CourseID, current.ID); err != nil {
		g.logger.Warn("completion write deferred while navigating",
			slog.String("course_id", g.tree.CourseID),
			slog.String("lesson_id", current.ID),
			slog.String("error", err.Error()))
	}

	next := Position{Section: pos.Section, Lesson: pos.Lesson + 1}
	if _, ok := g.tree.LessonAt(next); ok {
		return next, true
	}
	for sec := pos.Section + 1; sec < len(g.tree.Sections); sec++ {
		if len(g.tree.Sections[sec].Lessons) > 0 {
			return Position{Section: sec, Lesson: 0}, true
		}
	}
	return Position{}, false
}

// Prev steps back to the previous lesson, without side effects. Returns false
// at the first lesson of the first section.
func (g *ContentGate) Prev(pos Position) (Position, bool) {
	if pos.Lesson > 0 {
		prev := Position{Section: pos.Section, Lesson: pos.Lesson - 1}
		if _, ok := g.tree.LessonAt(prev); ok {
			return prev, true
		}
		return Position{}, false
	}
	for sec := pos.Section - 1; sec >= 0; sec-- {
		n := len(g.tree.Sections[sec].Lessons)
		if n > 0 {
			return Position{Section: sec, Lesson: n - 1}, true
		}
	}
	return Position{}, false
}

// IsFirst reports whether pos is the first lesson of the first section.
func (g *ContentGate) IsFirst(pos Position) bool {
	return pos.Section == 0 && pos.Lesson == 0
}

// IsLastOfLast reports whether pos is the last lesson of the last section.
func (g *ContentGate) IsLastOfLast(pos Position) bool {
	if len(g.tree.Sections) == 0 {
		return false
	}
	lastSec := len(g.tree.Sections) - 1
	return pos.Section == lastSec && pos.Lesson == len(g.tree.Sections[lastSec].Lessons)-1
}

// CanCompleteCourse reports whether "mark course complete" is actionable:
// every lesson except the very last one is already complete.
func (g *ContentGate) CanCompleteCourse() bool {
	total := g.tree.TotalLessons()
	if total == 0 {
		return false
	}
	snap, ok := g.cache.Cached(g.tree.CourseID)
	if !ok {
		return false
	}

	var lastLesson Lesson
	for sec := len(g.tree.Sections) - 1; sec >= 0; sec-- {
		if n := len(g.tree.Sections[sec].Lessons); n > 0 {
			lastLesson = g.tree.Sections[sec].Lessons[n-1]
			break
		}
	}
	for _, sec := range g.tree.Sections {
		for _, l := range sec.Lessons {
			if l.ID == lastLesson.ID {
				continue
			}
			if !snap.Completed(l.ID) {
				return false
			}
		}
	}
	return true
}
