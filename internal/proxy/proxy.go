// Package proxy exposes the functions of a deployed contract as typed read and write methods.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/deployer"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/compose-network/contract-pipeline/internal/sender"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// CallOpts tunes a read. A nil BlockNumber reads the latest state.
	CallOpts struct {
		From        common.Address
		BlockNumber *big.Int
	}

	TransactOpts struct {
		Value    *big.Int
		GasLimit uint64
	}

	Contract struct {
		ref        deployer.DeployedContractRef
		functions  []compiler.FunctionDescriptor
		transactor *transactor.Transactor
		logger     *slog.Logger
	}

	// ReadMethod is bound to a pure or view function.
	ReadMethod struct {
		contract   *Contract
		method     abi.Method
		descriptor compiler.FunctionDescriptor
	}

	// WriteMethod is bound to a nonpayable or payable function.
	WriteMethod struct {
		contract   *Contract
		method     abi.Method
		descriptor compiler.FunctionDescriptor
	}
)

// New binds ref to a transactor. functions lists the descriptors in declaration order; when it is
// empty they are derived from the ABI, sorted by name.
func New(ref deployer.DeployedContractRef, tr *transactor.Transactor, functions ...compiler.FunctionDescriptor) *Contract {
	if len(functions) == 0 {
		functions = describeSorted(ref.ABI)
	}

	return &Contract{
		ref:        ref,
		functions:  functions,
		transactor: tr,
		logger:     logger.Named("contract_proxy").With("contract", ref.ContractName).With("address", ref.Address.Hex()),
	}
}

func (c *Contract) Address() common.Address {
	return c.ref.Address
}

func (c *Contract) Functions() []compiler.FunctionDescriptor {
	return c.functions
}

func (c *Contract) lookup(name string) (abi.Method, compiler.FunctionDescriptor, error) {
	method, ok := c.ref.ABI.Methods[name]
	if !ok {
		return abi.Method{}, compiler.FunctionDescriptor{}, failures.New(failures.KindArtifactNotFound, name,
			fmt.Sprintf("contract %s has no function %s", c.ref.ContractName, name))
	}
	return method, compiler.Describe(method), nil
}

// Reader returns the read method for name. Only pure and view functions qualify.
func (c *Contract) Reader(name string) (*ReadMethod, error) {
	method, descriptor, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	if !descriptor.Mutability.ReadOnly() {
		return nil, failures.New(failures.KindEncoding, name,
			fmt.Sprintf("%s is %s and must be sent as a transaction", descriptor.Signature, descriptor.Mutability))
	}
	return &ReadMethod{contract: c, method: method, descriptor: descriptor}, nil
}

// Writer returns the write method for name. Only nonpayable and payable functions qualify.
func (c *Contract) Writer(name string) (*WriteMethod, error) {
	method, descriptor, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	if descriptor.Mutability.ReadOnly() {
		return nil, failures.New(failures.KindEncoding, name,
			fmt.Sprintf("%s is %s and cannot be sent as a transaction", descriptor.Signature, descriptor.Mutability))
	}
	return &WriteMethod{contract: c, method: method, descriptor: descriptor}, nil
}

// Call is a shorthand for Reader(name).Call with default options.
func (c *Contract) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	reader, err := c.Reader(name)
	if err != nil {
		return nil, err
	}
	return reader.Call(ctx, CallOpts{}, args...)
}

// Transact is a shorthand for Writer(name).Transact.
func (c *Contract) Transact(ctx context.Context, from *sender.Sender, opts TransactOpts, name string, args ...any) (*transactor.Result, error) {
	writer, err := c.Writer(name)
	if err != nil {
		return nil, err
	}
	return writer.Transact(ctx, from, opts, args...)
}

// Fund sends plain value to the contract. The ABI must declare a receive function or a payable
// fallback.
func (c *Contract) Fund(ctx context.Context, from *sender.Sender, value *big.Int) (*transactor.Result, error) {
	const op = "fund"
	if !c.acceptsPlainValue() {
		return nil, failures.New(failures.KindEncoding, op,
			fmt.Sprintf("contract %s has neither a receive function nor a payable fallback", c.ref.ContractName))
	}
	if value == nil || value.Sign() <= 0 {
		return nil, failures.New(failures.KindEncoding, op, "funding value must be positive")
	}

	to := c.ref.Address
	return c.transactor.Execute(ctx, from, transactor.Request{
		Op:    op,
		To:    &to,
		Value: value,
	})
}

func (c *Contract) acceptsPlainValue() bool {
	if c.ref.ABI.HasReceive() {
		return true
	}
	return c.ref.ABI.HasFallback() && c.ref.ABI.Fallback.IsPayable()
}

func (m *ReadMethod) Descriptor() compiler.FunctionDescriptor {
	return m.descriptor
}

func (m *ReadMethod) Method() abi.Method {
	return m.method
}

// Call queries the function without a transaction and decodes the returned values.
func (m *ReadMethod) Call(ctx context.Context, opts CallOpts, args ...any) ([]any, error) {
	op := m.descriptor.Name
	input, err := pack(m.method, args)
	if err != nil {
		return nil, err
	}

	to := m.contract.ref.Address
	out, err := m.contract.transactor.Call(ctx, op, ethereum.CallMsg{
		From: opts.From,
		To:   &to,
		Data: input,
	}, opts.BlockNumber)
	if err != nil {
		return nil, err
	}

	if len(m.method.Outputs) == 0 {
		return []any{}, nil
	}
	if len(out) == 0 {
		return nil, failures.New(failures.KindDecoding, op,
			fmt.Sprintf("empty result for %s (no contract code at %s?)", m.descriptor.Signature, to.Hex()))
	}

	values, err := m.method.Outputs.Unpack(out)
	if err != nil {
		return nil, failures.Wrap(failures.KindDecoding, op, fmt.Errorf("failed to decode result of %s: %w", m.descriptor.Signature, err))
	}

	m.contract.logger.With("function", m.descriptor.Signature).Debug("read call completed")
	return values, nil
}

// CallInto decodes the result into the values pointed to by out.
func (m *ReadMethod) CallInto(ctx context.Context, opts CallOpts, out []any, args ...any) error {
	values, err := m.Call(ctx, opts, args...)
	if err != nil {
		return err
	}
	if len(values) != len(out) {
		return failures.New(failures.KindDecoding, m.descriptor.Name,
			fmt.Sprintf("%s returns %d value(s), %d destination(s) given", m.descriptor.Signature, len(values), len(out)))
	}

	for i := range values {
		if err := m.method.Outputs[i:i+1].Copy(out[i], values[i:i+1]); err != nil {
			return failures.Wrap(failures.KindDecoding, m.descriptor.Name, fmt.Errorf("failed to copy return value %d: %w", i, err))
		}
	}
	return nil
}

func (m *WriteMethod) Descriptor() compiler.FunctionDescriptor {
	return m.descriptor
}

func (m *WriteMethod) Method() abi.Method {
	return m.method
}

// Transact sends the function call as a transaction and waits for its receipt. When the
// transaction is mined but reverts, the result is returned along with the error.
func (m *WriteMethod) Transact(ctx context.Context, from *sender.Sender, opts TransactOpts, args ...any) (*transactor.Result, error) {
	op := m.descriptor.Name
	if opts.Value != nil && opts.Value.Sign() > 0 && m.descriptor.Mutability != compiler.Payable {
		return nil, failures.New(failures.KindEncoding, op,
			fmt.Sprintf("%s is not payable but a value was attached", m.descriptor.Signature))
	}

	input, err := pack(m.method, args)
	if err != nil {
		return nil, err
	}

	to := m.contract.ref.Address
	result, err := m.contract.transactor.Execute(ctx, from, transactor.Request{
		Op:       op,
		To:       &to,
		Data:     input,
		Value:    opts.Value,
		GasLimit: opts.GasLimit,
	})
	if err != nil {
		return result, err
	}

	m.contract.logger.
		With("function", m.descriptor.Signature).
		With("tx_hash", result.TxHash.Hex()).
		With("gas_used", result.GasUsed).
		Info("write call mined")

	return result, nil
}

func pack(method abi.Method, args []any) ([]byte, error) {
	if len(method.Inputs) != len(args) {
		return nil, failures.New(failures.KindEncoding, method.Name,
			fmt.Sprintf("%s expects %d argument(s), got %d", method.Sig, len(method.Inputs), len(args)))
	}

	encoded, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, failures.Wrap(failures.KindEncoding, method.Name, fmt.Errorf("failed to encode arguments of %s: %w", method.Sig, err))
	}

	return append(append([]byte{}, method.ID...), encoded...), nil
}
