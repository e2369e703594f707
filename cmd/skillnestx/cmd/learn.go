package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mdmeraj-dev/skillnestx-go/client"
	"github.com/mdmeraj-dev/skillnestx-go/course"
)

// openCourse fetches the user, syllabus and progress for a course as one
// consistent unit: all three complete before anything is projected.
func openCourse(cmd *cobra.Command, c *client.Client, courseID string) (*client.User, *course.SyllabusTree, *course.ProgressCache, error) {
	ctx := cmd.Context()
	cache := course.NewProgressCache(c, c.Store())

	var (
		user *client.User
		tree *course.SyllabusTree
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.CurrentUser(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tree, err = c.Syllabus(gctx, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	cache.Register(tree)
	if _, err := cache.Fetch(ctx, courseID); err != nil {
		return nil, nil, nil, err
	}
	return user, tree, cache, nil
}

var syllabusCmd = &cobra.Command{
	Use:   "syllabus <course-id>",
	Short: "Show the course outline with lock and completion state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		user, tree, cache, err := openCourse(cmd, c, args[0])
		if err != nil {
			return err
		}

		visited := course.NewVisitedSet(c.Store(), nil)
		gate := course.NewContentGate(tree, cache, visited, nil)
		for _, sec := range gate.Project(user.Entitlement, "", time.Now()) {
			fmt.Fprintln(cmd.OutOrStdout(), sec.Title)
			for _, l := range sec.Lessons {
				marker := " "
				switch {
				case l.Completed:
					marker = "x"
				case l.Locked:
					marker = "#"
				case l.Visited:
					marker = "~"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s (%s)\n", marker, l.Title, l.ID)
			}
		}
		if snap, ok := cache.Cached(tree.CourseID); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "progress: %d%%\n", snap.Percentage)
		}
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <course-id> <lesson-id>",
	Short: "Mark a lesson as completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		_, _, cache, err := openCourse(cmd, c, args[0])
		if err != nil {
			return err
		}

		snap, err := cache.Complete(cmd.Context(), args[0], args[1])
		if err != nil {
			// Optimistic state is kept; the write will settle on a later sync.
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		if snap != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "progress: %d%%\n", snap.Percentage)
		}
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish <course-id>",
	Short: "Mark a whole course as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		_, tree, cache, err := openCourse(cmd, c, args[0])
		if err != nil {
			return err
		}

		visited := course.NewVisitedSet(c.Store(), nil)
		gate := course.NewContentGate(tree, cache, visited, nil)
		if !gate.CanCompleteCourse() {
			return fmt.Errorf("course %s still has incomplete lessons before the last one", args[0])
		}

		snap, err := cache.CompleteCourse(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if snap.IsCompleted {
			fmt.Fprintln(cmd.OutOrStdout(), "course completed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syllabusCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(finishCmd)
}
