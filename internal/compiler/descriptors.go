package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// describeFunctions walks the raw ABI so that descriptors keep the declaration order, which the
// parsed abi.ABI loses. Overloads are named the way abi.JSON names them (foo, foo0, foo1, ...).
func describeFunctions(parsed abi.ABI, raw json.RawMessage) ([]FunctionDescriptor, error) {
	var entries []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to read ABI entries: %w", err)
	}

	seen := make(map[string]int)
	functions := make([]FunctionDescriptor, 0, len(parsed.Methods))
	for _, entry := range entries {
		// a missing type means function
		if entry.Type != "function" && entry.Type != "" {
			continue
		}

		name := entry.Name
		if n := seen[entry.Name]; n > 0 {
			name = entry.Name + strconv.Itoa(n-1)
		}
		seen[entry.Name]++

		method, ok := parsed.Methods[name]
		if !ok {
			return nil, fmt.Errorf("method %s not found in parsed ABI", name)
		}
		functions = append(functions, Describe(method))
	}

	return functions, nil
}

// Describe converts a parsed ABI method into a descriptor.
func Describe(method abi.Method) FunctionDescriptor {
	var selector [4]byte
	copy(selector[:], method.ID)

	return FunctionDescriptor{
		Name:       method.Name,
		Signature:  method.Sig,
		Selector:   selector,
		Inputs:     params(method.Inputs),
		Outputs:    params(method.Outputs),
		Mutability: mutabilityOf(method),
	}
}

func mutabilityOf(method abi.Method) Mutability {
	switch method.StateMutability {
	case "pure":
		return Pure
	case "view":
		return View
	case "payable":
		return Payable
	case "nonpayable":
		return NonPayable
	}

	// pre-0.4.16 ABIs only carry the constant and payable flags
	switch {
	case method.Constant:
		return View
	case method.Payable:
		return Payable
	default:
		return NonPayable
	}
}

func params(args abi.Arguments) []Param {
	out := make([]Param, 0, len(args))
	for _, arg := range args {
		out = append(out, Param{Name: arg.Name, Type: arg.Type.String()})
	}
	return out
}
