package course

import "errors"

var (
	// ErrNoLocalData indicates a network fetch failed and no cached snapshot
	// or local completion facts exist to fall back on.
	ErrNoLocalData = errors.New("no local progress data")
	// ErrUnknownLesson indicates a lesson id outside the course's syllabus.
	ErrUnknownLesson = errors.New("lesson not in syllabus")
	// ErrProgressWrite indicates a completion write could not be persisted on
	// the server. Local optimistic state is kept; the error is recoverable.
	ErrProgressWrite = errors.New("progress write failed")
	// ErrCourseCompletion indicates the mark-completed call failed and the
	// optimistic isCompleted flag was rolled back.
	ErrCourseCompletion = errors.New("course completion failed")
	// ErrCourseContext indicates a required course identifier is missing.
	ErrCourseContext = errors.New("missing course context")
)
