package chain

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return NewBuilder("D", 1000000000, GasPolicy{BaseCost: 50000, PerByteCost: 1500})
}

func TestGasLimitFromPayloadLength(t *testing.T) {
	b := testBuilder()

	payload := bytes.Repeat([]byte("a"), 40)
	tx, err := b.BuildAnchor("cert1sender", "cert1receiver", 3, payload, "", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(50000+1500*40), tx.GasLimit)
}

func TestGasLimitOverride(t *testing.T) {
	b := testBuilder()

	tx, err := b.BuildAnchor("cert1sender", "cert1receiver", 0, []byte("x"), "", 75000)
	require.NoError(t, err)
	require.Equal(t, uint64(75000), tx.GasLimit)
}

func TestBuildAnchorCertifyPayload(t *testing.T) {
	b := testBuilder()

	fileHash := strings.Repeat("ab", 32)
	payload := AnchorPayload(fileHash, "report.pdf", "alice")
	require.Equal(t, "certify:"+fileHash+"|filename:report.pdf|author:alice", string(payload))

	tx, err := b.BuildAnchor("cert1sender", "cert1receiver", 7, payload, "", 0)
	require.NoError(t, err)
	require.Equal(t, payload, tx.Data)
	require.Equal(t, uint64(7), tx.Nonce)
	require.Equal(t, "D", tx.ChainID)
	require.Equal(t, "0", tx.Value)
	require.Empty(t, tx.Signature)
}

func TestBuildCallEncodesArguments(t *testing.T) {
	b := testBuilder()

	args := [][]byte{[]byte("job-1"), {0xde, 0xad}}
	tx, err := b.BuildCall("cert1sender", "cert1registry", 0, "initJob", args, "", 0)
	require.NoError(t, err)

	expected := "initJob@" + hex.EncodeToString([]byte("job-1")) + "@dead"
	require.Equal(t, expected, string(tx.Data))
}

func TestBuildCallNoArgs(t *testing.T) {
	require.Equal(t, "getProofCount", string(EncodeCallData("getProofCount", nil)))
}

func TestBuildCallRequiresFunction(t *testing.T) {
	b := testBuilder()

	_, err := b.BuildCall("cert1sender", "cert1registry", 0, "", nil, "", 0)
	require.Error(t, err)
}

func TestBuildRequiresAddresses(t *testing.T) {
	b := testBuilder()

	_, err := b.BuildAnchor("", "cert1receiver", 0, []byte("x"), "", 0)
	require.Error(t, err)

	_, err = b.BuildAnchor("cert1sender", "", 0, []byte("x"), "", 0)
	require.Error(t, err)
}

func TestSigningBytesOmitSignature(t *testing.T) {
	b := testBuilder()

	tx, err := b.BuildAnchor("cert1sender", "cert1receiver", 1, []byte("payload"), "", 0)
	require.NoError(t, err)

	unsigned, err := tx.SigningBytes()
	require.NoError(t, err)
	require.NotContains(t, string(unsigned), "signature")

	tx.Signature = "deadbeef"
	signed, err := tx.SigningBytes()
	require.NoError(t, err)
	require.Equal(t, unsigned, signed)
}
