package sdk

import (
	"errors"
	"testing"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImmediateCallerIs(t *testing.T) {
	t.Parallel()

	var logged []string
	rt := NewRuntime(Message{Caller: abi.SystemActorID, Receiver: 100}, func(s string) { logged = append(logged, s) })
	require.NoError(t, rt.ValidateImmediateCallerIs(abi.SystemActorID))
	rt.Log("hi")
	assert.Equal(t, []string{"hi"}, logged)

	rt = NewRuntime(Message{Caller: 101}, nil)
	err := rt.ValidateImmediateCallerIs(abi.SystemActorID)
	assert.Equal(t, abi.UsrForbidden, ExitCodeOf(err))
	rt.Log("dropped")
}

func TestResult(t *testing.T) {
	t.Parallel()

	ok := Result([]byte{1}, nil)
	assert.Equal(t, abi.ExitOK, ok.ExitCode)
	assert.Equal(t, []byte{1}, ok.Data)

	failed := Result(nil, NewActorError(abi.UsrIllegalArgument, "bad %d", 1))
	assert.Equal(t, abi.UsrIllegalArgument, failed.ExitCode)
	assert.Contains(t, failed.Message, "bad 1")

	assert.Equal(t, abi.UsrUnspecified, Result(nil, errors.New("plain")).ExitCode)
	assert.Equal(t, abi.UsrUnspecified, Result(nil, NewActorError(abi.SysErrOutOfGas, "spoofed")).ExitCode)
	assert.Equal(t, abi.UsrUnspecified, Result(nil, NewActorError(abi.ExitOK, "not a failure")).ExitCode)
}
