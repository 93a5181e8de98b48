package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appLog "openair/internal/log"
	"openair/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage the stored event packages",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		lib, closeLib, err := openLibrary(cmd.Context())
		if err != nil {
			return err
		}
		defer closeLib()

		list, err := lib.Records.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACTIVE\tVERSION\tNAME\tURI")
		for _, se := range list {
			mark := ""
			if se.Active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", se.ID, mark, se.Version, se.Name, se.URI)
		}
		return tw.Flush()
	},
}

var eventsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a stored event the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecord(cmd.Context(), args[0], func(ctx context.Context, lib *store.Library, se store.StoredEvent) error {
			if err := lib.Records.SetActive(ctx, se.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %d (%s)\n", se.ID, se.Name)
			return nil
		})
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored event and its package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRecord(cmd.Context(), args[0], func(ctx context.Context, lib *store.Library, se store.StoredEvent) error {
			if err := lib.Records.Delete(ctx, se.ID); err != nil {
				return err
			}
			removePackage(se.Path)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d (%s)\n", se.ID, se.Name)
			return nil
		})
	},
}

var eventsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every stored event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		lib, closeLib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer closeLib()

		list, err := lib.Records.List(ctx)
		if err != nil {
			return err
		}
		n, err := lib.Records.DeleteAll(ctx)
		if err != nil {
			return err
		}
		for _, se := range list {
			removePackage(se.Path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", n)
		return nil
	},
}

var eventsInstallCmd = &cobra.Command{
	Use:   "install <package.zip>",
	Short: "Install an event package from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		lib, closeLib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer closeLib()

		activate, _ := cmd.Flags().GetBool("activate")
		se, installed, err := lib.InstallPackage(ctx, data, activate)
		if err != nil {
			return err
		}
		if !installed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %d is already installed\n", se.Name, se.Version)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %d (%s, version %d)\n", se.ID, se.Name, se.Version)
		return nil
	},
}

func init() {
	eventsInstallCmd.Flags().Bool("activate", false, "make the installed event active")
	eventsCmd.AddCommand(eventsListCmd, eventsActivateCmd, eventsDeleteCmd, eventsDeleteAllCmd, eventsInstallCmd)
	rootCmd.AddCommand(eventsCmd)
}

// openLibrary opens the record store and package directory of cfg.
func openLibrary(ctx context.Context) (*store.Library, func(), error) {
	c, err := newCodec()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, err
	}
	records, err := store.OpenRecords(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := records.Close(); err != nil {
			appLog.Warn("close record store", "err", err)
		}
	}
	return store.NewLibrary(records, cfg.PackagesDir(), c), closeFn, nil
}

func withRecord(ctx context.Context, arg string, fn func(context.Context, *store.Library, store.StoredEvent) error) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid event id %q", arg)
	}
	lib, closeLib, err := openLibrary(ctx)
	if err != nil {
		return err
	}
	defer closeLib()

	se, err := lib.Records.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no stored event with id %d", id)
	}
	if err != nil {
		return err
	}
	return fn(ctx, lib, se)
}

func removePackage(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("remove package file", "path", path, "err", err)
	}
}
