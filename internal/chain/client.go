package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 15 * time.Second

	// SimulatedHashPrefix marks fabricated transaction hashes produced in
	// degraded mode so they are never mistaken for real ones.
	SimulatedHashPrefix = "sim_"
)

// GatewayClient signs and submits transactions to the ledger gateway and
// issues read-only queries against deployed registries. When constructed
// without key material or a gateway URL it operates in simulation mode:
// every submit returns a clearly prefixed fabricated hash and never fails.
type GatewayClient struct {
	gatewayURL string
	apiURL     string
	key        *SigningKey
	httpClient *http.Client
	logger     *zap.Logger
	simulated  bool
}

type ClientParams struct {
	GatewayURL string
	APIURL     string
	Key        *SigningKey // nil enables simulation mode
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewGatewayClient(p ClientParams) *GatewayClient {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	simulated := p.Key == nil || p.GatewayURL == ""
	if simulated {
		logger.Warn("chain credentials or gateway URL missing; submissions will be simulated")
	}

	return &GatewayClient{
		gatewayURL: strings.TrimRight(p.GatewayURL, "/"),
		apiURL:     strings.TrimRight(p.APIURL, "/"),
		key:        p.Key,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("gateway"),
		simulated:  simulated,
	}
}

// Simulated reports whether the client fabricates transaction hashes.
func (c *GatewayClient) Simulated() bool {
	return c.simulated
}

// SenderAddress returns the signing account's address, or an empty string in
// simulation mode without key material.
func (c *GatewayClient) SenderAddress() string {
	if c.key == nil {
		return ""
	}
	return c.key.Address()
}

// gatewayEnvelope is the generic response wrapper used by every gateway and
// API endpoint.
type gatewayEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// SubmitTx signs the transaction and posts it to the gateway. The input
// transaction is not mutated; signing happens on a copy. Returns the
// gateway-assigned transaction hash.
func (c *GatewayClient) SubmitTx(ctx context.Context, tx *Transaction) (string, error) {
	if c.simulated {
		hash := SimulatedHash(tx)
		c.logger.Info("simulated transaction submission",
			zap.String("tx_hash", hash),
			zap.Uint64("nonce", tx.Nonce))
		return hash, nil
	}

	signingBytes, err := tx.SigningBytes()
	if err != nil {
		return "", fmt.Errorf("serialize transaction for signing: %w", err)
	}
	signed := *tx
	signed.Signature = hex.EncodeToString(c.key.Sign(signingBytes))

	env, err := c.post(ctx, c.gatewayURL+"/transaction/send", &signed)
	if err != nil {
		return "", err
	}

	var payload struct {
		TxHash string `json:"txHash"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.TxHash == "" {
		return "", fmt.Errorf("%w: missing txHash field", ErrMalformedResponse)
	}
	return payload.TxHash, nil
}

// AccountNonce reads the account's current nonce from the API. In simulation
// mode it returns zero so the sequencer can still seed itself.
func (c *GatewayClient) AccountNonce(ctx context.Context, address string) (uint64, error) {
	if c.simulated {
		return 0, nil
	}

	env, err := c.get(ctx, c.apiURL+"/address/"+address)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Account *struct {
			Nonce uint64 `json:"nonce"`
		} `json:"account"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Account == nil {
		return 0, fmt.Errorf("%w: missing account field", ErrMalformedResponse)
	}
	return payload.Account.Nonce, nil
}

// QueryVM issues a read-only call against a deployed registry contract and
// returns the decoded return values. Registry-side validation failures (for
// example "job not found") are surfaced verbatim because they are diagnostic.
func (c *GatewayClient) QueryVM(ctx context.Context, scAddress, funcName string, args [][]byte) ([][]byte, error) {
	if c.apiURL == "" {
		return nil, fmt.Errorf("api URL not configured; registry queries unavailable")
	}

	hexArgs := make([]string, len(args))
	for i, arg := range args {
		hexArgs[i] = hex.EncodeToString(arg)
	}
	request := map[string]any{
		"scAddress": scAddress,
		"funcName":  funcName,
		"args":      hexArgs,
	}

	env, err := c.post(ctx, c.apiURL+"/vm-values/query", request)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			ReturnData    []string `json:"returnData"`
			ReturnCode    string   `json:"returnCode"`
			ReturnMessage string   `json:"returnMessage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Data.ReturnCode != "ok" {
		// Pass the registry's own message through untouched.
		return nil, fmt.Errorf("%s", payload.Data.ReturnMessage)
	}

	values := make([][]byte, len(payload.Data.ReturnData))
	for i, encoded := range payload.Data.ReturnData {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: returnData[%d] is not base64", ErrMalformedResponse, i)
		}
		values[i] = decoded
	}
	return values, nil
}

// TxStatus fetches the gateway's view of a submitted transaction. Used only
// for post-submission logging; failures here never affect job outcomes.
func (c *GatewayClient) TxStatus(ctx context.Context, txHash string) (string, error) {
	if c.simulated {
		return "simulated", nil
	}

	env, err := c.get(ctx, c.gatewayURL+"/transaction/"+txHash+"/status")
	if err != nil {
		return "", err
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Status == "" {
		return "", fmt.Errorf("%w: missing status field", ErrMalformedResponse)
	}
	return payload.Status, nil
}

func (c *GatewayClient) post(ctx context.Context, url string, body any) (*gatewayEnvelope, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *GatewayClient) get(ctx context.Context, url string) (*gatewayEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *GatewayClient) do(req *http.Request) (*gatewayEnvelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	env := &gatewayEnvelope{}
	if err := json.Unmarshal(body, env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || env.Error != "" {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, msg)
	}
	return env, nil
}

// SimulatedHash derives a stable fake hash from the transaction contents so
// repeated simulations of the same operation stay recognizable in logs.
func SimulatedHash(tx *Transaction) string {
	h := sha256.New()
	h.Write([]byte(tx.Sender))
	h.Write([]byte(tx.Receiver))
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	h.Write(nonce[:])
	h.Write(tx.Data)
	return SimulatedHashPrefix + hex.EncodeToString(h.Sum(nil))
}
