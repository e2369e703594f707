package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/mdmeraj-dev/skillnestx-go/store"
)

const (
	progressKind  = "progress"
	completedKind = "completedLessons"

	completeAttempts = 3 // initial call plus two retries on not-found
)

// ServerProgress is the authoritative progress shape returned by the backend
// for both reads and completion writes.
type ServerProgress struct {
	CompletedLessons   int
	TotalLessons       int
	ProgressPercentage int
	IsCompleted        bool
	CacheVersion       uint64
}

// Service is the remote progress API consumed by ProgressCache. Implemented
// by the HTTP client.
type Service interface {
	Progress(ctx context.Context, courseID string) (ServerProgress, error)
	CompleteLesson(ctx context.Context, courseID, lessonID string) (ServerProgress, error)
	CompleteCourse(ctx context.Context, courseID string) (ServerProgress, error)
}

// Snapshot is the locally cached mirror of a course's progress. The server is
// the source of truth; the local copy is advisory and survives offline use.
type Snapshot struct {
	CourseID           string   `json:"courseId"`
	CompletedLessonIDs []string `json:"-"`
	TotalLessons       int      `json:"totalLessons"`
	Percentage         int      `json:"percentage"`
	IsCompleted        bool     `json:"isCompleted"`
	CacheVersion       uint64   `json:"-"`
}

// Completed reports whether the lesson is in the local completed set.
func (s *Snapshot) Completed(lessonID string) bool {
	return slices.Contains(s.CompletedLessonIDs, lessonID)
}

func percentFor(completed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(completed) / float64(total)))
	return min(max(p, 0), 100)
}

// ProgressCache owns the per-course progress records in local storage. All
// progress writes funnel through it. Mutations are optimistic: the local set
// of completed lessons is a durable user-visible fact and is not rolled back
// when a server write fails.
type ProgressCache struct {
	mu         sync.Mutex
	svc        Service
	store      store.Store
	logger     *slog.Logger
	retryDelay time.Duration
	universe   map[string]map[string]struct{}
}

// ProgressOption configures a ProgressCache.
type ProgressOption func(*ProgressCache)

// WithProgressLogger sets the structured logger.
func WithProgressLogger(logger *slog.Logger) ProgressOption {
	return func(c *ProgressCache) {
		c.logger = logger
	}
}

// WithRetryDelay sets the fixed delay between completion-write retries.
// Default: 300ms.
func WithRetryDelay(d time.Duration) ProgressOption {
	return func(c *ProgressCache) {
		c.retryDelay = d
	}
}

// NewProgressCache creates a ProgressCache over the given remote service and
// local store.
func NewProgressCache(svc Service, s store.Store, opts ...ProgressOption) *ProgressCache {
	c := &ProgressCache{
		svc:        svc,
		store:      s,
		retryDelay: 300 * time.Millisecond,
		universe:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c
}

// Register records the lesson universe for a course from a freshly fetched
// syllabus. Completed-lesson ids outside the syllabus are dropped from local
// state. Syllabus and progress are treated as a consistent pair: callers
// register the syllabus before trusting gate computations for the course.
func (c *ProgressCache) Register(tree *SyllabusTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := tree.LessonIDs()
	c.universe[tree.CourseID] = ids

	set := c.loadCompleted(tree.CourseID)
	filtered := set[:0]
	for _, id := range set {
		if _, ok := ids[id]; ok {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) != len(set) {
		c.logger.Warn("dropped completed lessons outside syllabus",
			slog.String("course_id", tree.CourseID),
			slog.Int("dropped", len(set)-len(filtered)))
		c.saveCompleted(tree.CourseID, filtered)
	}
}

// Cached returns the locally cached snapshot for immediate rendering, if any.
func (c *ProgressCache) Cached(courseID string) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(courseID)
}

// Fetch retrieves progress from the server and reconciles the local cache.
// If the network call fails, the cached snapshot (or one derived from the
// local completed set) is returned instead; the failure only surfaces when no
// local data exists at all.
func (c *ProgressCache) Fetch(ctx context.Context, courseID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sp, err := c.svc.Progress(ctx, courseID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if snap, ok := c.load(courseID); ok {
			c.logger.Warn("serving cached progress after fetch failure",
				slog.String("course_id", courseID),
				slog.String("error", err.Error()))
			return snap, nil
		}
		if set := c.loadCompleted(courseID); len(set) > 0 {
			return c.derive(courseID, set), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrNoLocalData, err)
	}

	snap := c.loadOrInit(courseID)
	c.reconcile(snap, sp)
	c.save(snap)
	return snap, nil
}

// Complete marks a lesson complete: optimistically in local state first, then
// on the server. A not-found response is retried up to two more times with a
// fixed delay. On any terminal failure the optimistic snapshot is returned
// alongside a recoverable ErrProgressWrite; local state is not rolled back.
func (c *ProgressCache) Complete(ctx context.Context, courseID, lessonID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if ids, ok := c.universe[courseID]; ok {
		if _, ok := ids[lessonID]; !ok {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownLesson, lessonID)
		}
	}
	snap := c.loadOrInit(courseID)
	if !snap.Completed(lessonID) {
		snap.CompletedLessonIDs = append(snap.CompletedLessonIDs, lessonID)
		slices.Sort(snap.CompletedLessonIDs)
		c.recomputeLocal(snap)
		c.save(snap)
	}
	c.mu.Unlock()

	var sp ServerProgress
	var err error
	for attempt := 0; attempt < completeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return snap, ctx.Err()
			}
		}
		sp, err = c.svc.CompleteLesson(ctx, courseID, lessonID)
		if err == nil || !isNotFound(err) {
			break
		}
		c.logger.Warn("lesson completion returned not found, retrying",
			slog.String("course_id", courseID),
			slog.String("lesson_id", lessonID),
			slog.Int("attempt", attempt+1))
	}
	if err != nil {
		return snap, fmt.Errorf("%w: %v", ErrProgressWrite, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap = c.loadOrInit(courseID)
	c.reconcile(snap, sp)
	c.save(snap)
	return snap, nil
}

// CompleteCourse optimistically marks the whole course complete, then calls
// the server. On failure the isCompleted flag is rolled back (percentage is
// not) and no retry is attempted.
func (c *ProgressCache) CompleteCourse(ctx context.Context, courseID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	snap := c.loadOrInit(courseID)
	wasCompleted := snap.IsCompleted
	snap.IsCompleted = true
	snap.Percentage = 100
	c.save(snap)
	c.mu.Unlock()

	sp, err := c.svc.CompleteCourse(ctx, courseID)

	c.mu.Lock()
	defer c.mu.Unlock()
	snap = c.loadOrInit(courseID)
	if err != nil {
		snap.IsCompleted = wasCompleted
		c.save(snap)
		return snap, fmt.Errorf("%w: %v", ErrCourseCompletion, err)
	}
	c.reconcile(snap, sp)
	c.save(snap)
	return snap, nil
}

// reconcile applies the server's authoritative counts to the snapshot. The
// server wins on any mismatch; the local completed set stays as-is.
func (c *ProgressCache) reconcile(snap *Snapshot, sp ServerProgress) {
	snap.TotalLessons = sp.TotalLessons
	snap.IsCompleted = sp.IsCompleted
	snap.Percentage = percentFor(sp.CompletedLessons, sp.TotalLessons)
	if sp.CacheVersion > snap.CacheVersion {
		if snap.CacheVersion != 0 {
			c.logger.Info("progress cache version advanced",
				slog.String("course_id", snap.CourseID),
				slog.Uint64("from", snap.CacheVersion),
				slog.Uint64("to", sp.CacheVersion))
		}
		snap.CacheVersion = sp.CacheVersion
	} else if sp.CacheVersion < snap.CacheVersion {
		c.logger.Warn("server returned older progress cache version, keeping local",
			slog.String("course_id", snap.CourseID),
			slog.Uint64("local", snap.CacheVersion),
			slog.Uint64("server", sp.CacheVersion))
	}
}

// recomputeLocal re-derives the percentage from the local completed set.
// Never incremented ad hoc.
func (c *ProgressCache) recomputeLocal(snap *Snapshot) {
	total := snap.TotalLessons
	if total == 0 {
		if ids, ok := c.universe[snap.CourseID]; ok {
			total = len(ids)
			snap.TotalLessons = total
		}
	}
	snap.Percentage = percentFor(len(snap.CompletedLessonIDs), total)
}

func (c *ProgressCache) load(courseID string) (*Snapshot, bool) {
	snap := &Snapshot{CourseID: courseID}
	version, err := store.GetVersioned(c.store, progressKind, courseID, snap)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("unreadable progress cache entry, treating as miss",
				slog.String("course_id", courseID))
		}
		return nil, false
	}
	snap.CourseID = courseID
	snap.CacheVersion = version
	snap.CompletedLessonIDs = c.loadCompleted(courseID)
	return snap, true
}

func (c *ProgressCache) loadOrInit(courseID string) *Snapshot {
	if snap, ok := c.load(courseID); ok {
		return snap
	}
	return c.derive(courseID, c.loadCompleted(courseID))
}

// derive builds a snapshot purely from the local completed set.
func (c *ProgressCache) derive(courseID string, set []string) *Snapshot {
	snap := &Snapshot{CourseID: courseID, CompletedLessonIDs: set}
	c.recomputeLocal(snap)
	return snap
}

func (c *ProgressCache) save(snap *Snapshot) {
	if err := store.PutIfNewer(c.store, progressKind, snap.CourseID, snap, snap.CacheVersion); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			c.logger.Warn("skipped stale progress cache write",
				slog.String("course_id", snap.CourseID),
				slog.Uint64("version", snap.CacheVersion))
			return
		}
		c.logger.Error("failed to persist progress snapshot",
			slog.String("course_id", snap.CourseID),
			slog.String("error", err.Error()))
		return
	}
	c.saveCompleted(snap.CourseID, snap.CompletedLessonIDs)
}

func (c *ProgressCache) loadCompleted(courseID string) []string {
	var set []string
	if err := store.GetJSON(c.store, completedKind, courseID, &set); err != nil {
		return nil
	}
	return set
}

func (c *ProgressCache) saveCompleted(courseID string, set []string) {
	if err := store.PutJSON(c.store, completedKind, courseID, set); err != nil {
		c.logger.Error("failed to persist completed lessons",
			slog.String("course_id", courseID),
			slog.String("error", err.Error()))
	}
}

// isNotFound classifies the retryable "not found" error family from the
// remote service without depending on the HTTP client package.
func isNotFound(err error) bool {
	var se interface{ HTTPStatus() int }
	return errors.As(err, &se) && se.HTTPStatus() == http.StatusNotFound
}
