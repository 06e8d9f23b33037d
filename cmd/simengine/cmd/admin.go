package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations on the local data directory",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save",
			Short: "Persist the index to disk now",
			RunE: func(cmd *cobra.Command, args []string) error {
				eng, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer eng.cleanup()
				if err := eng.svc.Save(); err != nil {
					return err
				}
				fmt.Println("index saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the index and the dedup ledger",
			RunE: func(cmd *cobra.Command, args []string) error {
				eng, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer eng.cleanup()
				if err := eng.svc.Clear(cmd.Context()); err != nil {
					return err
				}
				if err := eng.svc.Save(); err != nil {
					return err
				}
				fmt.Println("index cleared")
				return nil
			},
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Copy the index files into a stamped backup directory",
			RunE: func(cmd *cobra.Command, args []string) error {
				eng, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer eng.cleanup()
				dir, err := eng.svc.Backup()
				if err != nil {
					return err
				}
				fmt.Printf("backup written to %s\n", dir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove-duplicates",
			Short: "Sweep the index for papers sharing a content hash",
			RunE: func(cmd *cobra.Command, args []string) error {
				eng, err := bootstrap(cmd.Context())
				if err != nil {
					return err
				}
				defer eng.cleanup()
				removed, err := eng.svc.RemoveDuplicates(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("removed %d duplicates\n", removed)
				return eng.svc.Save()
			},
		},
	)

	return cmd
}
