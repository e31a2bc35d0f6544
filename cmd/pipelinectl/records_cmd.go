package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/app"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Read records from the employees table",
}

var recordsGetCmd = &cobra.Command{
	Use:   "get EMPLOYEE_ID [EMPLOYEE_NAME]",
	Short: "Get one record, or every record under an employee id",
	Long: `With both key parts, get reads a single record with a strongly consistent
read. With only the employee id it queries the whole partition.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		deps, err := app.NewDeps(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = deps.Close() }()

		store := deps.Store()
		if len(args) == 1 {
			recs, err := store.QueryByPartition(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		}

		rec, err := store.Get(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("record %s/%s not found", args[0], args[1])
		}
		return printJSON(cmd, rec)
	},
}

var recordsByIndexCmd = &cobra.Command{
	Use:   "by-index AGE DESIGNATION",
	Short: "Query records through the age/designation index",
	Long: `Index reads are eventually consistent: a record written moments ago may
not be returned yet.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		deps, err := app.NewDeps(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = deps.Close() }()

		recs, err := deps.Store().QueryByIndex(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, recs)
	},
}

func init() {
	recordsCmd.AddCommand(recordsGetCmd, recordsByIndexCmd)
	rootCmd.AddCommand(recordsCmd)
}
