package gas

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Charge names used by the kernel.
const (
	OnChainMessage         = "OnChainMessage"
	OnBlockOpen            = "OnBlockOpen"
	OnBlockRead            = "OnBlockRead"
	OnBlockCreate          = "OnBlockCreate"
	OnBlockLink            = "OnBlockLink"
	OnBlockStat            = "OnBlockStat"
	OnHashing              = "OnHashing"
	OnVerifySignature      = "OnVerifySignature"
	OnRecoverSecpPublicKey = "OnRecoverSecpPublicKey"
	OnActorLookup          = "OnActorLookup"
	OnActorCreate          = "OnActorCreate"
	OnMethodInvocation     = "OnMethodInvocation"
	OnValueTransfer        = "OnValueTransfer"
	OnEventEmit            = "OnEventEmit"
	OnSetRoot              = "OnSetRoot"
	OnSelfDestruct         = "OnSelfDestruct"
	OnRandomness           = "OnRandomness"
	OnTipsetCID            = "OnTipsetCID"
	OnDebugArtifact        = "OnDebugArtifact"
	OnCustomSyscall        = "OnCustomSyscall"
	OnCustomSyscallResult  = "OnCustomSyscallResult"
)

// Vars are the inputs a price formula may reference.
type Vars struct {
	Bytes int
	Cells int
	K     int
}

func (v Vars) env() map[string]any {
	return map[string]any{"bytes": v.Bytes, "cells": v.Cells, "k": v.K}
}

// DefaultFormulas prices every charge the kernel makes.
var DefaultFormulas = map[string]string{
	OnChainMessage:         "38863 + bytes * 16",
	OnBlockOpen:            "187440 + bytes * 10",
	OnBlockRead:            "bytes",
	OnBlockCreate:          "1000 + bytes * 2",
	OnBlockLink:            "353640 + bytes * 10",
	OnBlockStat:            "0",
	OnHashing:              "31355 + bytes * 3",
	OnVerifySignature:      "1637292 + bytes * 10",
	OnRecoverSecpPublicKey: "1637292",
	OnActorLookup:          "500000",
	OnActorCreate:          "1108454",
	OnMethodInvocation:     "75000",
	OnValueTransfer:        "6000",
	OnEventEmit:            "2000 + bytes * 10",
	OnSetRoot:              "500000",
	OnSelfDestruct:         "500000",
	OnRandomness:           "21000",
	OnTipsetCID:            "50000",
	OnDebugArtifact:        "0",
	OnCustomSyscall:        "250000 + cells * 400 + k * 1000",
	OnCustomSyscallResult:  "bytes * 100",
}

// PriceList evaluates compiled price formulas. It is immutable after
// construction and safe for concurrent use.
type PriceList struct {
	programs map[string]*vm.Program
}

// NewPriceList compiles formulas over DefaultFormulas; entries in overrides
// replace the defaults of the same name.
func NewPriceList(overrides map[string]string) (*PriceList, error) {
	formulas := make(map[string]string, len(DefaultFormulas)+len(overrides))
	for name, f := range DefaultFormulas {
		formulas[name] = f
	}
	for name, f := range overrides {
		formulas[name] = f
	}

	env := Vars{}.env()
	programs := make(map[string]*vm.Program, len(formulas))
	for name, f := range formulas {
		program, err := expr.Compile(f, expr.Env(env), expr.AsInt64())
		if err != nil {
			return nil, fmt.Errorf("invalid gas formula for %s: %w", name, err)
		}
		programs[name] = program
	}
	return &PriceList{programs: programs}, nil
}

// DefaultPriceList returns the price list built from DefaultFormulas.
func DefaultPriceList() *PriceList {
	p, err := NewPriceList(nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Price evaluates the named formula.
func (p *PriceList) Price(name string, vars Vars) (Gas, error) {
	program, ok := p.programs[name]
	if !ok {
		return 0, fmt.Errorf("no gas price for %s", name)
	}
	out, err := expr.Run(program, vars.env())
	if err != nil {
		return 0, fmt.Errorf("evaluating gas price for %s: %w", name, err)
	}
	v, ok := out.(int64)
	if !ok {
		return 0, fmt.Errorf("gas price for %s evaluated to %T", name, out)
	}
	if v < 0 {
		return 0, fmt.Errorf("gas price for %s is negative: %d", name, v)
	}
	return Gas(v), nil
}

// Names returns the priced charge names in sorted order.
func (p *PriceList) Names() []string {
	names := make([]string, 0, len(p.programs))
	for name := range p.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
