package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/actors/customsyscall"
	"github.com/Prajjawalk/ipc/internal/container"
	"github.com/Prajjawalk/ipc/internal/gas"
	"github.com/Prajjawalk/ipc/internal/machine"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// DefaultGasLimit is the gas limit of an invoke message.
const DefaultGasLimit gas.Gas = 10_000_000_000

// invokeInput is the YAML form of the Invoke parameters.
type invokeInput struct {
	Matrix    [][]int `yaml:"matrix"`
	UserIndex int64   `yaml:"user_index"`
	K         int64   `yaml:"k"`
}

func (in *invokeInput) params() (customsyscall.InvokeParams, error) {
	rows := make([][]uint8, len(in.Matrix))
	for i, row := range in.Matrix {
		rows[i] = make([]uint8, len(row))
		for j, v := range row {
			if v < 0 || v > math.MaxUint8 {
				return customsyscall.InvokeParams{}, fmt.Errorf("matrix[%d][%d]: activity %d out of range 0..255", i, j, v)
			}
			rows[i][j] = uint8(v)
		}
	}
	buf, users, items, err := abi.PackActivity(rows)
	if err != nil {
		return customsyscall.InvokeParams{}, err
	}
	return customsyscall.InvokeParams{
		UserIndex:          in.UserIndex,
		UserActivityMatrix: buf,
		K:                  in.K,
		Users:              users,
		Items:              items,
	}, nil
}

func readInput(r io.Reader) (*invokeInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read params: %w", err)
	}
	var in invokeInput
	if err := yaml.UnmarshalWithOptions(data, &in, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse params: %w", err)
	}
	return &in, nil
}

// chargeView is one traced gas charge.
type chargeView struct {
	Name   string `yaml:"name"`
	Amount int64  `yaml:"amount"`
}

// receiptView is the printable form of a receipt.
type receiptView struct {
	TraceID         string       `yaml:"trace_id"`
	ExitCode        string       `yaml:"exit_code"`
	Message         string       `yaml:"message,omitempty"`
	Recommendations [][]int64    `yaml:"recommendations,omitempty"`
	Trace           []chargeView `yaml:"trace,omitempty"`
	GasUsed         int64        `yaml:"gas_used"`
	Events          int          `yaml:"events,omitempty"`
}

func newReceiptView(r *machine.Receipt) (receiptView, error) {
	v := receiptView{
		TraceID:  r.TraceID.String(),
		ExitCode: r.ExitCode.String(),
		Message:  r.Message,
		GasUsed:  int64(r.GasUsed),
		Events:   len(r.Events),
	}
	if r.ExitCode.IsSuccess() && len(r.Return) > 0 {
		if err := abi.Unmarshal(r.Return, &v.Recommendations); err != nil {
			return v, fmt.Errorf("decoding recommendations: %w", err)
		}
	}
	for _, c := range r.Trace {
		v.Trace = append(v.Trace, chargeView{Name: c.Name, Amount: int64(c.Amount)})
	}
	return v, nil
}

// invokeRequest is one Invoke call on the customsyscall actor.
type invokeRequest struct {
	Input    *invokeInput
	From     abi.ActorID
	Actor    abi.ActorID
	GasLimit gas.Gas
}

// message builds the Invoke message. The nonce is the sender's current
// sequence.
func (req *invokeRequest) message(c *container.Container) (*machine.Message, error) {
	p, err := req.Input.params()
	if err != nil {
		return nil, err
	}
	encoded, err := abi.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}
	sender, err := c.Machine().State().GetActor(req.From)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("sender %d does not exist", req.From)
	}
	return &machine.Message{
		From:     abi.NewIDAddress(req.From),
		To:       abi.NewIDAddress(req.Actor),
		Method:   customsyscall.MethodInvoke,
		Params:   encoded,
		Nonce:    sender.Sequence,
		GasLimit: req.GasLimit,
	}, nil
}

// apply runs the request count times. Read-only runs are applied as one
// concurrent batch; the others are applied in order and committed.
func apply(ctx context.Context, c *container.Container, req *invokeRequest, count int, readOnly bool) ([]*machine.Receipt, error) {
	if count < 1 {
		return nil, errors.New("count must be positive")
	}
	if err := c.InstallActor(req.Actor); err != nil {
		return nil, err
	}

	if readOnly {
		msg, err := req.message(c)
		if err != nil {
			return nil, err
		}
		msgs := make([]*machine.Message, count)
		for i := range msgs {
			msgs[i] = msg
		}
		return c.Machine().ApplyReadOnlyBatch(ctx, msgs, c.Config().Machine.Concurrency)
	}

	receipts := make([]*machine.Receipt, 0, count)
	for range count {
		msg, err := req.message(c)
		if err != nil {
			return nil, err
		}
		r, err := c.Machine().ApplyMessage(ctx, msg)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func writeReceipts(w io.Writer, receipts []*machine.Receipt) error {
	views := make([]receiptView, 0, len(receipts))
	for _, r := range receipts {
		v, err := newReceiptView(r)
		if err != nil {
			return err
		}
		views = append(views, v)
	}
	out, err := yaml.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to encode receipts: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func init() {
	rootCmd.AddCommand(newInvokeCmd())
}

func newInvokeCmd() *cobra.Command {
	var (
		paramsPath string
		from       uint64
		actor      uint64
		gasLimit   int64
		count      int
		readOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Apply an Invoke message to the customsyscall actor",
		Long: `Apply an Invoke message to the customsyscall actor and print the receipts.

The params file is YAML:

  matrix:     # users x items activity counts, 0..255
    - [1, 0, 2]
    - [0, 3, 1]
  user_index: 0
  k: 2`,
		Example: `  ipckernel invoke --params params.yaml
  ipckernel invoke --params params.yaml --wasm customsyscall.wasm
  ipckernel invoke --params params.yaml --read-only --count 8`,
		Args: cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if paramsPath != "-" {
				f, err := os.Open(paramsPath)
				if err != nil {
					return fmt.Errorf("failed to open params: %w", err)
				}
				defer f.Close()
				r = f
			}
			in, err := readInput(r)
			if err != nil {
				return err
			}
			if gasLimit <= 0 {
				return fmt.Errorf("gas limit must be positive, got %d", gasLimit)
			}

			receipts, err := apply(ctx.Context, ctx.Container, &invokeRequest{
				Input:    in,
				From:     abi.ActorID(from),
				Actor:    abi.ActorID(actor),
				GasLimit: gas.Gas(gasLimit),
			}, count, readOnly)
			if err != nil {
				return err
			}
			return writeReceipts(cmd.OutOrStdout(), receipts)
		}),
	}

	cmd.Flags().StringVarP(&paramsPath, "params", "p", "-", "params file (- for stdin)")
	cmd.Flags().Uint64Var(&from, "from", uint64(abi.SystemActorID), "sender actor id")
	cmd.Flags().Uint64Var(&actor, "actor", 1000, "actor id the customsyscall actor is installed at")
	cmd.Flags().Int64Var(&gasLimit, "gas-limit", int64(DefaultGasLimit), "gas limit per message")
	cmd.Flags().IntVar(&count, "count", 1, "number of messages to apply")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "apply as concurrent read-only calls; nothing is committed")
	cmd.Flags().String("wasm", "", "wasm build of the customsyscall actor (default: native)")
	return cmd
}
