package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Prajjawalk/ipc/internal/customkernel"
	"github.com/Prajjawalk/ipc/internal/syscalls"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero/api"
)

func init() {
	rootCmd.AddCommand(newSyscallsCmd())
}

func newSyscallsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "syscalls",
		Short:   "List the linked syscalls",
		Long:    `List every syscall a guest may import, in link order, with its parameter types.`,
		Example: `  ipckernel syscalls`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := customkernel.NewTable()
			if err != nil {
				return fmt.Errorf("failed to link syscalls: %w", err)
			}
			return writeSyscalls(cmd.OutOrStdout(), table)
		},
	}
}

func writeSyscalls[K any](out io.Writer, table *syscalls.Table[K]) error {
	if _, err := fmt.Fprintf(out, "ABI %s, %d syscalls\n\n", table.Version(), table.Len()); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, "MODULE\tNAME\tPARAMS\tRESULT"); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, key := range table.Keys() {
		sc, ok := table.Lookup(key.Module, key.Name)
		if !ok {
			continue
		}
		params := make([]string, len(sc.Params))
		for i, p := range sc.Params {
			params[i] = api.ValueTypeName(p)
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t(%s)\t%s\n", key.Module, key.Name, strings.Join(params, ", "), api.ValueTypeName(api.ValueTypeI32)); err != nil {
			return fmt.Errorf("failed to write syscall: %w", err)
		}
	}
	return w.Flush()
}
