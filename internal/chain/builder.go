package chain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const txVersion = 1

// GasPolicy computes deterministic gas limits: a fixed base plus a per-byte
// cost over the payload. Both values are policy constants, never negotiated
// with the network, so estimates are reproducible.
type GasPolicy struct {
	BaseCost    uint64
	PerByteCost uint64
}

// Limit returns the gas budget for the given payload.
func (p GasPolicy) Limit(payload []byte) uint64 {
	return p.BaseCost + p.PerByteCost*uint64(len(payload))
}

// Builder converts logical operations into signable transactions. It is pure:
// no network access, no mutable state.
type Builder struct {
	chainID  string
	gasPrice uint64
	gas      GasPolicy
}

func NewBuilder(chainID string, gasPrice uint64, gas GasPolicy) *Builder {
	return &Builder{chainID: chainID, gasPrice: gasPrice, gas: gas}
}

// BuildCall constructs a contract-call transaction. The payload is the
// function name followed by hex-encoded arguments joined with '@'. A zero
// gasLimit means "compute from policy".
func (b *Builder) BuildCall(sender, receiver string, nonce uint64, function string, args [][]byte, value string, gasLimit uint64) (*Transaction, error) {
	if function == "" {
		return nil, fmt.Errorf("function name cannot be empty")
	}
	return b.build(sender, receiver, nonce, EncodeCallData(function, args), value, gasLimit)
}

// BuildAnchor constructs a plain data-anchoring transaction carrying the raw
// payload verbatim, e.g. "certify:<hash>|filename:<name>|author:<name>".
func (b *Builder) BuildAnchor(sender, receiver string, nonce uint64, payload []byte, value string, gasLimit uint64) (*Transaction, error) {
	return b.build(sender, receiver, nonce, payload, value, gasLimit)
}

func (b *Builder) build(sender, receiver string, nonce uint64, payload []byte, value string, gasLimit uint64) (*Transaction, error) {
	if sender == "" || receiver == "" {
		return nil, fmt.Errorf("sender and receiver are required")
	}
	raw, err := nativeAmount(value)
	if err != nil {
		return nil, fmt.Errorf("transaction value: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = b.gas.Limit(payload)
	}
	return &Transaction{
		Nonce:    nonce,
		Value:    raw,
		Receiver: receiver,
		Sender:   sender,
		GasPrice: b.gasPrice,
		GasLimit: gasLimit,
		Data:     payload,
		ChainID:  b.chainID,
		Version:  txVersion,
	}, nil
}

// EncodeCallData encodes a contract call as "<function>@<hexArg1>@<hexArg2>...".
// Arguments are hex-encoded so arbitrary bytes survive the separator.
func EncodeCallData(function string, args [][]byte) []byte {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, function)
	for _, arg := range args {
		parts = append(parts, hex.EncodeToString(arg))
	}
	return []byte(strings.Join(parts, "@"))
}

// AnchorPayload builds the certification anchoring payload.
func AnchorPayload(fileHash, filename, author string) []byte {
	return []byte(fmt.Sprintf("certify:%s|filename:%s|author:%s", fileHash, filename, author))
}
