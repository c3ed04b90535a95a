package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
)

var courseCmd = &cobra.Command{
	Use:     "course",
	GroupID: "records",
	Short:   "Manage courses",
}

var courseAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := &model.NewCourse{Title: args[0]}
		req.Semester, _ = flags.GetString("semester")
		req.DayOfWeek, _ = flags.GetString("day")
		req.Period, _ = flags.GetInt("period")
		room, _ := flags.GetString("room")
		instructor, _ := flags.GetString("instructor")
		req.Room = model.StringPtr(room)
		req.Instructor = model.StringPtr(instructor)

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		course, err := db.InsertCourse(cmd.Context(), req)
		if err != nil {
			return err
		}
		out.Success("added course %s (%s)", course.Title, course.ID)
		return nil
	},
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		courses, err := db.ListCourses(cmd.Context(), store.CourseFilter{IncludeArchived: all})
		if err != nil {
			return err
		}
		out.Courses(courses)
		return nil
	},
}

var courseArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return setArchived(cmd, model.KindCourse, args[0], !undo)
	},
}

// setArchived archives or restores a record of either kind.
func setArchived(cmd *cobra.Command, kind model.Kind, id string, archived bool) error {
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	set, verb := db.Archive, "archived"
	if !archived {
		set, verb = db.Unarchive, "restored"
	}
	found, err := set(cmd.Context(), kind, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no %s with id %s", kind, id)
	}
	out.Success("%s %s %s", verb, kind, id)
	return nil
}

func init() {
	flags := courseAddCmd.Flags()
	flags.String("semester", "", "semester, e.g. \"Fall 2024\"")
	flags.String("day", "", "day of week")
	flags.Int("period", 0, "class period")
	flags.String("room", "", "room")
	flags.String("instructor", "", "instructor")

	courseListCmd.Flags().BoolP("all", "a", false, "include archived courses")
	courseArchiveCmd.Flags().Bool("undo", false, "unarchive instead")

	courseCmd.AddCommand(courseAddCmd, courseListCmd, courseArchiveCmd)
	rootCmd.AddCommand(courseCmd)
}
