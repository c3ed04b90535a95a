package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskion/taskion/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Write a config file",
	Long: `Ask for the database path, listen port, sync interval and Notion
credentials, then write them to the config file (see --config).

Current values, including environment variables, are offered as defaults.
When stdin is not a terminal, or with --yes, the current values are written
without asking. The file is created readable by the owner only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		path := loader.ConfigFile()

		c := *cfg
		interactive := !yes && term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			if err := runInitForm(path, &c); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					out.Warn("aborted; nothing written")
					return nil
				}
				return err
			}
		} else if _, err := os.Stat(path); err == nil && !yes {
			return fmt.Errorf("%s already exists; pass --yes to overwrite", path)
		}

		if err := config.Save(path, &c); err != nil {
			return err
		}
		out.Success("wrote %s", path)
		if err := c.RemoteConfigured(); err != nil {
			out.Warn("%v; sync stays local until it is set", err)
		}
		return nil
	},
}

func runInitForm(path string, c *config.Config) error {
	port := strconv.Itoa(c.Server.Port)
	interval := strconv.Itoa(c.Sync.IntervalSeconds)
	overwrite := true

	var groups []*huh.Group
	if _, err := os.Stat(path); err == nil {
		groups = append(groups, huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s exists. Overwrite?", path)).
				Value(&overwrite),
		))
	}
	groups = append(groups,
		huh.NewGroup(
			huh.NewInput().Title("Database file").Value(&c.Database.Path).Validate(required),
			huh.NewInput().Title("HTTP port").Value(&port).Validate(portNumber),
			huh.NewInput().Title("Sync interval (seconds)").Value(&interval).Validate(positiveInt),
		).Title("Local"),
		huh.NewGroup(
			huh.NewInput().Title("Integration token").EchoMode(huh.EchoModePassword).Value(&c.Notion.Token),
			huh.NewInput().Title("Courses database id").Value(&c.Notion.CoursesDB),
			huh.NewInput().Title("Tasks database id").Value(&c.Notion.TasksDB),
		).Title("Notion").Description("Leave empty to keep records local."),
	)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}
	if !overwrite {
		return huh.ErrUserAborted
	}

	c.Server.Port, _ = strconv.Atoi(port)
	c.Sync.IntervalSeconds, _ = strconv.Atoi(interval)
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Notion.Token = strings.TrimSpace(c.Notion.Token)
	c.Notion.CoursesDB = strings.TrimSpace(c.Notion.CoursesDB)
	c.Notion.TasksDB = strings.TrimSpace(c.Notion.TasksDB)
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func portNumber(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return errors.New("must be a port number")
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("must be a positive number")
	}
	return nil
}

func init() {
	initCmd.Flags().BoolP("yes", "y", false, "write current values without asking, overwriting any file")
	rootCmd.AddCommand(initCmd)
}
