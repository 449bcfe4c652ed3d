package proxy

import (
	"fmt"
	"sort"

	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is a log emitted by the contract, decoded against its ABI.
type Event struct {
	Name   string
	Fields map[string]any
	Log    *types.Log
}

// DecodeLogs decodes the logs of receipt emitted by this contract. Logs of other contracts and
// anonymous or unknown events are skipped.
func (c *Contract) DecodeLogs(receipt *types.Receipt) ([]Event, error) {
	const op = "decode_logs"
	if receipt == nil {
		return nil, nil
	}

	events := make([]Event, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if log.Address != c.ref.Address || len(log.Topics) == 0 {
			continue
		}

		event, err := c.ref.ABI.EventByID(log.Topics[0])
		if err != nil {
			continue
		}

		fields := make(map[string]any)
		if len(log.Data) > 0 {
			if err := c.ref.ABI.UnpackIntoMap(fields, event.Name, log.Data); err != nil {
				return nil, failures.Wrap(failures.KindDecoding, op, fmt.Errorf("failed to decode data of %s: %w", event.Sig, err))
			}
		}

		var indexed abi.Arguments
		for _, input := range event.Inputs {
			if input.Indexed {
				indexed = append(indexed, input)
			}
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			return nil, failures.Wrap(failures.KindDecoding, op, fmt.Errorf("failed to decode topics of %s: %w", event.Sig, err))
		}

		events = append(events, Event{Name: event.Name, Fields: fields, Log: log})
	}

	return events, nil
}

func describeSorted(parsed abi.ABI) []compiler.FunctionDescriptor {
	names := make([]string, 0, len(parsed.Methods))
	for name := range parsed.Methods {
		names = append(names, name)
	}
	sort.Strings(names)

	functions := make([]compiler.FunctionDescriptor, 0, len(names))
	for _, name := range names {
		functions = append(functions, compiler.Describe(parsed.Methods[name]))
	}
	return functions
}
