package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskion/taskion/internal/transfer"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "records",
	Short:   "Export every record as JSONL or YAML",
	Long: `Write all courses and tasks, archived ones included, to stdout or a file.

JSONL output can be read back with 'taskion import'. YAML is for reading.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format, err := transfer.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if output == "" || output == "-" {
			_, err := transfer.Export(cmd.Context(), db, os.Stdout, format)
			return err
		}

		f, err := os.Create(output)
		if err != nil {
			return err
		}
		res, err := transfer.Export(cmd.Context(), db, f, format)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		out.Success("exported %s and %s to %s", plural(res.Courses, "course"), plural(res.Tasks, "task"), output)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "records",
	Short:   "Import records from a JSONL export",
	Long: `Read a JSONL file written by 'taskion export' and store every record.

Existing records with the same id are overwritten. Every imported record is
queued for the next push. Invalid lines are reported and skipped; use
--dry-run to check a file without writing. Use "-" to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := transfer.Import(cmd.Context(), db, r, transfer.ImportOptions{DryRun: dryRun})
		for _, msg := range res.Errors {
			out.Warn("%s", msg)
		}
		if err != nil {
			return fmt.Errorf("import failed after %s and %s: %w", plural(res.Courses, "course"), plural(res.Tasks, "task"), err)
		}

		verb := "imported"
		if dryRun {
			verb = "would import"
		}
		out.Success("%s %s and %s", verb, plural(res.Courses, "course"), plural(res.Tasks, "task"))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "jsonl", "output format: jsonl or yaml")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	importCmd.Flags().Bool("dry-run", false, "validate without writing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
