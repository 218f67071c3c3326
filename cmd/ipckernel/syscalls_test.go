package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/customkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyscallsCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newSyscallsCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	table, err := customkernel.NewTable()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "ABI "+abi.Version+", "+strconv.Itoa(table.Len())+" syscalls", lines[0])
	// Header, blank line, column titles, then one row per syscall.
	require.Len(t, lines, table.Len()+3)

	last := strings.Fields(lines[len(lines)-1])
	assert.Equal(t, []string{customkernel.Module, customkernel.SyscallName}, last[:2])
	assert.Contains(t, lines[len(lines)-1], "(i32, i64, i32, i32, i32, i32, i64)")
	assert.Contains(t, out.String(), "gas")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "ipckernel version")
	assert.Contains(t, out.String(), "abi "+abi.Version)
}
