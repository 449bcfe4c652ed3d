package testutil

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/vm"
)

const StorageName = "SimpleStorage"

// WithdrawReason is the revert reason of withdraw when called by anyone but the owner.
const WithdrawReason = "Only the owner can withdraw"

// InitialReason is the revert reason of the constructor when the initial value is zero.
const InitialReason = "Initial value must be positive"

// StorageABI describes a contract holding one number and an owner. set emits ValueChanged,
// withdraw sends the whole balance to the owner and receive accepts plain transfers.
const StorageABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"initial","type":"uint256"}]},
	{"type":"function","name":"set","stateMutability":"nonpayable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"get","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"ValueChanged","anonymous":false,"inputs":[{"name":"by","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"receive","stateMutability":"payable"}
]`

// StorageBytecode returns creation code implementing StorageABI.
func StorageBytecode() []byte {
	parsed, err := abi.JSON(strings.NewReader(StorageABI))
	if err != nil {
		panic(err)
	}

	runtime := storageRuntime(parsed)
	creation := storageInit(0, len(runtime))
	creation = storageInit(len(creation), len(runtime))

	return append(creation, runtime...)
}

// RawStorageABI is StorageABI as a raw message.
func RawStorageABI() json.RawMessage {
	return json.RawMessage(StorageABI)
}

func storageInit(initLen, runtimeLen int) []byte {
	p := newProgram()
	p.op(vm.CALLVALUE)
	p.pushLabel("fail")
	p.op(vm.JUMPI)

	// value = last 32 bytes of the code, the constructor argument
	p.push(0x20)
	p.push(0x20)
	p.op(vm.CODESIZE, vm.SUB)
	p.push(0x00)
	p.op(vm.CODECOPY)
	p.push(0x00)
	p.op(vm.MLOAD, vm.DUP1)
	p.pushLabel("store")
	p.op(vm.JUMPI)
	p.revertWithReason(InitialReason)

	p.label("store")
	p.push(0x00)
	p.op(vm.SSTORE)

	p.op(vm.CALLER)
	p.push(0x01)
	p.op(vm.SSTORE)

	p.pushUint16(runtimeLen)
	p.pushUint16(initLen)
	p.push(0x00)
	p.op(vm.CODECOPY)
	p.pushUint16(runtimeLen)
	p.push(0x00)
	p.op(vm.RETURN)

	p.label("fail")
	p.push(0x00)
	p.op(vm.DUP1, vm.REVERT)

	return p.bytes()
}

func storageRuntime(parsed abi.ABI) []byte {
	p := newProgram()

	p.op(vm.CALLDATASIZE, vm.ISZERO)
	p.pushLabel("receive")
	p.op(vm.JUMPI)

	p.push(0x00)
	p.op(vm.CALLDATALOAD)
	p.push(0xe0)
	p.op(vm.SHR)
	for _, name := range []string{"set", "get", "owner", "withdraw"} {
		p.op(vm.DUP1)
		p.push(parsed.Methods[name].ID...)
		p.op(vm.EQ)
		p.pushLabel(name)
		p.op(vm.JUMPI)
	}
	p.jump("fail")

	p.label("receive")
	p.op(vm.STOP)

	p.label("set")
	p.rejectValue()
	p.push(0x04)
	p.op(vm.CALLDATALOAD, vm.DUP1)
	p.push(0x00)
	p.op(vm.SSTORE)
	p.push(0x00)
	p.op(vm.MSTORE)
	p.op(vm.CALLER)
	p.push(parsed.Events["ValueChanged"].ID.Bytes()...)
	p.push(0x20)
	p.push(0x00)
	p.op(vm.LOG2, vm.STOP)

	p.label("get")
	p.rejectValue()
	p.returnSlot(0x00)

	p.label("owner")
	p.rejectValue()
	p.returnSlot(0x01)

	p.label("withdraw")
	p.rejectValue()
	p.push(0x01)
	p.op(vm.SLOAD, vm.CALLER, vm.EQ)
	p.pushLabel("pay")
	p.op(vm.JUMPI)
	p.revertWithReason(WithdrawReason)

	p.label("pay")
	p.push(0x00)
	p.op(vm.DUP1, vm.DUP1, vm.DUP1, vm.SELFBALANCE, vm.CALLER, vm.GAS, vm.CALL, vm.ISZERO)
	p.pushLabel("fail")
	p.op(vm.JUMPI, vm.STOP)

	p.label("fail")
	p.push(0x00)
	p.op(vm.DUP1, vm.REVERT)

	return p.bytes()
}

// program is a minimal assembler with two byte jump labels.
type program struct {
	code   []byte
	labels map[string]int
	fixups map[int]string
}

func newProgram() *program {
	return &program{labels: map[string]int{}, fixups: map[int]string{}}
}

func (p *program) op(ops ...vm.OpCode) {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}
}

func (p *program) push(data ...byte) {
	p.code = append(p.code, byte(vm.PUSH1)+byte(len(data)-1))
	p.code = append(p.code, data...)
}

func (p *program) pushUint16(v int) {
	p.push(byte(v>>8), byte(v))
}

func (p *program) pushLabel(name string) {
	p.code = append(p.code, byte(vm.PUSH2))
	p.fixups[len(p.code)] = name
	p.code = append(p.code, 0x00, 0x00)
}

func (p *program) jump(name string) {
	p.pushLabel(name)
	p.op(vm.JUMP)
}

func (p *program) label(name string) {
	p.labels[name] = len(p.code)
	p.op(vm.JUMPDEST)
}

func (p *program) rejectValue() {
	p.op(vm.CALLVALUE)
	p.pushLabel("fail")
	p.op(vm.JUMPI)
}

func (p *program) returnSlot(slot byte) {
	p.push(slot)
	p.op(vm.SLOAD)
	p.push(0x00)
	p.op(vm.MSTORE)
	p.push(0x20)
	p.push(0x00)
	p.op(vm.RETURN)
}

// revertWithReason reverts with the standard Error(string) payload.
func (p *program) revertWithReason(reason string) {
	selector := make([]byte, 32)
	copy(selector, []byte{0x08, 0xc3, 0x79, 0xa0})
	p.push(selector...)
	p.push(0x00)
	p.op(vm.MSTORE)

	p.push(0x20)
	p.push(0x04)
	p.op(vm.MSTORE)

	p.push(byte(len(reason)))
	p.push(0x24)
	p.op(vm.MSTORE)

	text := make([]byte, 32)
	copy(text, reason)
	p.push(text...)
	p.push(0x44)
	p.op(vm.MSTORE)

	p.push(0x64)
	p.push(0x00)
	p.op(vm.REVERT)
}

func (p *program) bytes() []byte {
	for at, name := range p.fixups {
		target, ok := p.labels[name]
		if !ok {
			panic("undefined label " + name)
		}
		p.code[at] = byte(target >> 8)
		p.code[at+1] = byte(target)
	}
	return p.code
}
