package machine

import (
	"context"
	"fmt"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/kernel"
)

// MethodBalance is the account actor method returning its balance.
var MethodBalance = abi.MustMethodHash("Balance")

func unhandled(method abi.MethodNum) abi.Return {
	return abi.Return{ExitCode: abi.UsrUnhandledMessage, Message: fmt.Sprintf("unhandled method %d", method)}
}

// SystemActor accepts only its constructor.
func SystemActor[K kernel.Kernel]() Invoker[K] {
	return InvokerFunc[K](func(_ context.Context, k K, method abi.MethodNum, _ *kernel.Block) (abi.Return, error) {
		if method != abi.MethodConstructor {
			return unhandled(method), nil
		}
		if k.MsgContext().Caller != abi.SystemActorID {
			return abi.Return{ExitCode: abi.UsrForbidden, Message: "constructor may only be called by the system actor"}, nil
		}
		return abi.Return{ExitCode: abi.ExitOK}, nil
	})
}

// AccountActor holds funds. Besides plain transfers it answers Balance.
func AccountActor[K kernel.Kernel]() Invoker[K] {
	return InvokerFunc[K](func(_ context.Context, k K, method abi.MethodNum, _ *kernel.Block) (abi.Return, error) {
		switch method {
		case abi.MethodConstructor:
			return abi.Return{ExitCode: abi.ExitOK}, nil
		case MethodBalance:
			bal, err := k.CurrentBalance()
			if n, ok := kernel.ErrorNumberOf(err); ok {
				return abi.Return{ExitCode: abi.ExitCodeForErrno(n), Message: err.Error()}, nil
			}
			if err != nil {
				return abi.Return{}, err
			}
			data, err := abi.Marshal(bal.Bytes())
			if err != nil {
				return abi.Return{}, kernel.NewFatalError("encoding balance", err)
			}
			return abi.Return{ExitCode: abi.ExitOK, Data: data}, nil
		default:
			return unhandled(method), nil
		}
	})
}
