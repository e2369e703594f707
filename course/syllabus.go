package course

// Lesson is a single entry in a course syllabus.
type Lesson struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	IsLocked bool   `json:"isLocked"`
	Type     string `json:"type"`
}

// Section is an ordered group of lessons.
type Section struct {
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

// SyllabusTree is the ordered course outline. It is immutable once fetched
// and refreshed when the course is opened.
type SyllabusTree struct {
	CourseID     string    `json:"courseId"`
	Sections     []Section `json:"sections"`
	CacheVersion uint64    `json:"cacheVersion"`
}

// Position addresses a lesson by section and lesson index.
type Position struct {
	Section int
	Lesson  int
}

// LessonIDs returns the set of all lesson ids in the tree.
func (t *SyllabusTree) LessonIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, sec := range t.Sections {
		for _, l := range sec.Lessons {
			ids[l.ID] = struct{}{}
		}
	}
	return ids
}

// TotalLessons returns the number of lessons across all sections.
func (t *SyllabusTree) TotalLessons() int {
	n := 0
	for _, sec := range t.Sections {
		n += len(sec.Lessons)
	}
	return n
}

// LessonAt returns the lesson at pos, or false if pos is out of range.
func (t *SyllabusTree) LessonAt(pos Position) (Lesson, bool) {
	if pos.Section < 0 || pos.Section >= len(t.Sections) {
		return Lesson{}, false
	}
	sec := t.Sections[pos.Section]
	if pos.Lesson < 0 || pos.Lesson >= len(sec.Lessons) {
		return Lesson{}, false
	}
	return sec.Lessons[pos.Lesson], true
}
