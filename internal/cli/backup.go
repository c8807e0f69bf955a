package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var errRemoteBackup = errors.New("backup and restore work on the local database; unset --remote")

func newBackupCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write every page and block as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Remote != "" {
				return errRemoteBackup
			}
			db, err := a.openSQL()
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := db.Export(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			a.log.Info().Str("file", output).Int("bytes", len(data)).Msg("backup written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup.json|->",
		Short: "Replace all pages with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store.Remote != "" {
				return errRemoteBackup
			}
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}

			db, err := a.openSQL()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Import(cmd.Context(), data); err != nil {
				return err
			}
			a.log.Info().Str("file", args[0]).Msg("backup restored")
			return nil
		},
	}
}
