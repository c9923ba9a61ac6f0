package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	body := []byte(`{"event":"certification.completed","proof_id":"p-1"}`)
	sig := Sign("whsec_test", body)
	require.Len(t, sig, 64)
	require.True(t, VerifySignature("whsec_test", body, sig))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte("payload")
	sig := Sign("secret-a", body)
	require.False(t, VerifySignature("secret-b", body, sig))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	sig := Sign("whsec_test", []byte("original"))
	require.False(t, VerifySignature("whsec_test", []byte("tampered"), sig))
}

func TestVerifySignatureRejectsNonHex(t *testing.T) {
	require.False(t, VerifySignature("whsec_test", []byte("payload"), "not hex at all"))
}

func TestVerifySignatureTrimsWhitespace(t *testing.T) {
	body := []byte("payload")
	sig := Sign("whsec_test", body)
	require.True(t, VerifySignature("whsec_test", body, " "+sig+"\n"))
}
