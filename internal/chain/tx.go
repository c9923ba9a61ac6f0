package chain

import "encoding/json"

// Transaction is the gateway wire form of a ledger transaction. Data marshals
// as base64 (standard encoding/json []byte behaviour), which is what the
// gateway expects. A transaction is immutable once signed; failed submissions
// rebuild from scratch with a fresh nonce instead of reusing a rejected
// object.
type Transaction struct {
	Nonce     uint64 `json:"nonce"`
	Value     string `json:"value"`
	Receiver  string `json:"receiver"`
	Sender    string `json:"sender"`
	GasPrice  uint64 `json:"gasPrice"`
	GasLimit  uint64 `json:"gasLimit"`
	Data      []byte `json:"data,omitempty"`
	ChainID   string `json:"chainID"`
	Version   uint32 `json:"version"`
	Signature string `json:"signature,omitempty"`
}

// SigningBytes returns the canonical byte form the account signs: the JSON
// serialization of the transaction with the signature field absent.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	unsigned := *tx
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}
