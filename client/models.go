package client

import (
	"fmt"
	"time"

	"github.com/mdmeraj-dev/skillnestx-go/course"
)

// User is the authenticated user's profile together with the entitlement
// facts derived from it.
type User struct {
	Name           string
	Role           string
	ProfilePicture string
	Entitlement    course.Entitlement
}

// APIError is a non-2xx response from the backend. The body is truncated for
// diagnostics; tokens never appear in it.
type APIError struct {
	Status  int
	Path    string
	TraceID string
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d (trace %s)", e.Path, e.Status, e.TraceID)
}

// HTTPStatus returns the response status code. Satisfies the error
// classification hook used by course.ProgressCache.
func (e *APIError) HTTPStatus() int {
	return e.Status
}

type authResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	Success bool `json:"success"`
	User    struct {
		Name               string `json:"name"`
		Role               string `json:"role"`
		ProfilePicture     string `json:"profilePicture"`
		ActiveSubscription struct {
			Status  string     `json:"status"`
			EndDate *time.Time `json:"endDate"`
		} `json:"activeSubscription"`
		PurchasedCourses []struct {
			CourseID string `json:"courseId"`
		} `json:"purchasedCourses"`
	} `json:"user"`
}

type syllabusResponse struct {
	Success  bool `json:"success"`
	Syllabus []struct {
		Title   string `json:"title"`
		Lessons []struct {
			ID       string `json:"_id"`
			Title    string `json:"title"`
			IsLocked bool   `json:"isLocked"`
			Type     string `json:"type"`
		} `json:"lessons"`
	} `json:"syllabus"`
	CacheVersion uint64 `json:"cacheVersion"`
}

type progressResponse struct {
	Success bool `json:"success"`
	Data    struct {
		CourseProgress struct {
			CompletedLessons   int  `json:"completedLessons"`
			TotalLessons       int  `json:"totalLessons"`
			ProgressPercentage int  `json:"progressPercentage"`
			IsCompleted        bool `json:"isCompleted"`
		} `json:"courseProgress"`
	} `json:"data"`
	CacheVersion uint64 `json:"cacheVersion"`
}

func (r progressResponse) serverProgress() course.ServerProgress {
	cp := r.Data.CourseProgress
	return course.ServerProgress{
		CompletedLessons:   cp.CompletedLessons,
		TotalLessons:       cp.TotalLessons,
		ProgressPercentage: cp.ProgressPercentage,
		IsCompleted:        cp.IsCompleted,
		CacheVersion:       r.CacheVersion,
	}
}
