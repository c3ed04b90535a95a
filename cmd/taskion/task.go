package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/taskion/taskion/internal/dates"
	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "records",
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task, optionally attached to a course.

--due takes a date (2024-05-10), an RFC3339 timestamp or an English phrase
such as "tomorrow", "next friday" or "in 3 days". Without it the task is due
today.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		due, _ := flags.GetString("due")
		courseID, _ := flags.GetString("course")
		status, _ := flags.GetString("status")

		dueDate, err := dates.ParseDue(due, time.Now())
		if err != nil {
			return err
		}
		req := &model.NewTask{
			CourseID: courseID,
			Title:    args[0],
			DueDate:  dueDate,
			Status:   status,
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		task, err := db.InsertTask(cmd.Context(), req)
		if err != nil {
			return err
		}
		out.Success("added task %s due %s (%s)", task.Title, task.DueDate, task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		filter := store.TaskFilter{}
		filter.IncludeArchived, _ = flags.GetBool("all")
		filter.CourseID, _ = flags.GetString("course")
		filter.Status, _ = flags.GetString("status")
		filter.Limit, _ = flags.GetInt("limit")

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		tasks, err := db.ListTasks(cmd.Context(), filter)
		if err != nil {
			return err
		}
		out.Tasks(tasks, model.Today())
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		status := model.DoneStatus
		task, err := db.UpdateTask(cmd.Context(), args[0], &model.TaskPatch{Status: &status})
		if err != nil {
			return err
		}
		out.Success("completed %s", task.Title)
		return nil
	},
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return setArchived(cmd, model.KindTask, args[0], !undo)
	},
}

func init() {
	taskAddCmd.Flags().String("due", "", "due date or phrase, e.g. \"next friday\"")
	taskAddCmd.Flags().String("course", "", "course id")
	taskAddCmd.Flags().String("status", "", "status label (default \""+model.DefaultStatus+"\")")

	listFlags := taskListCmd.Flags()
	listFlags.BoolP("all", "a", false, "include archived tasks")
	listFlags.String("course", "", "only tasks of this course id")
	listFlags.String("status", "", "only tasks with this status")
	listFlags.IntP("limit", "n", 0, "maximum number of tasks (0 = all)")

	taskArchiveCmd.Flags().Bool("undo", false, "unarchive instead")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskArchiveCmd)
	rootCmd.AddCommand(taskCmd)
}
