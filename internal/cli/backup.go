package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imyousuf/entityquery/internal/graph/embedded"
)

func newBackupCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a rotated backup of the graph database",
		Long: `Write a full backup into graph.backup_dir and remove all but the
graph.backup_keep newest backups there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			path, err := s.store.Backup(s.cfg.Graph.BackupDir, s.cfg.Graph.BackupKeep)
			if err != nil {
				return err
			}
			s.logger.Info("backup written", "path", path, "keep", s.cfg.Graph.BackupKeep)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.AddCommand(newBackupListCmd(opts))
	return cmd
}

func newBackupListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			paths, err := embedded.Backups(s.cfg.Graph.BackupDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(paths) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return nil
			}
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup-file]",
		Short: "Replace the graph with a backup",
		Long:  `Replace the graph with the given backup, or with the newest backup in graph.backup_dir.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				paths, err := embedded.Backups(s.cfg.Graph.BackupDir)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					return fmt.Errorf("no backups in %s", s.cfg.Graph.BackupDir)
				}
				path = paths[0]
			}

			if err := s.store.Restore(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", path)
			return nil
		},
	}
}
