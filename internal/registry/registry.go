// Package registry exposes the deployed registry contracts: background
// registration jobs on the write path and read-only state queries.
package registry

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hashproof/chaincore/internal/chain"
	"github.com/hashproof/chaincore/internal/submit"
)

// Contract function names, fixed by the deployed registries.
const (
	fnRegisterAgent     = "registerAgent"
	fnInitJob           = "initJob"
	fnSubmitProof       = "submitProof"
	fnRequestValidation = "requestValidation"
	fnSubmitValidation  = "submitValidation"

	fnGetJobStatus  = "getJobStatus"
	fnGetJobHistory = "getJobHistory"
	fnGetProof      = "getProof"
	fnGetProofCount = "getProofCount"
)

// Querier is the read-only query path into the gateway.
type Querier interface {
	QueryVM(ctx context.Context, scAddress, funcName string, args [][]byte) ([][]byte, error)
}

// Contracts holds the deployed registry addresses. Empty addresses disable
// the corresponding operations: jobs are skipped with a log line, queries
// fail with a clear error.
type Contracts struct {
	Agent      string
	Proof      string
	Validation string
}

type Client struct {
	svc          *submit.Service
	querier      Querier
	contracts    Contracts
	defaultAgent string
	logger       *zap.Logger
}

func NewClient(svc *submit.Service, querier Querier, contracts Contracts, defaultAgent string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		svc:          svc,
		querier:      querier,
		contracts:    contracts,
		defaultAgent: defaultAgent,
		logger:       logger.Named("registry"),
	}
}

// EnqueueRegisterAgent schedules agent registration on the background queue.
func (c *Client) EnqueueRegisterAgent(agentID string) {
	if agentID == "" {
		agentID = c.defaultAgent
	}
	if !c.checkConfigured(c.contracts.Agent, "register-agent") {
		return
	}
	c.svc.EnqueueCall("register-agent", c.contracts.Agent, fnRegisterAgent, [][]byte{[]byte(agentID)})
}

// EnqueueInitJob schedules registration of a new registry job carrying the
// certification payload.
func (c *Client) EnqueueInitJob(jobID string, payload []byte) {
	if !c.checkConfigured(c.contracts.Proof, "init-job") {
		return
	}
	c.svc.EnqueueCall("init-job", c.contracts.Proof, fnInitJob, [][]byte{[]byte(jobID), payload})
}

// EnqueueSubmitProof schedules anchoring of the proof hash under an existing
// registry job.
func (c *Client) EnqueueSubmitProof(jobID, proofHash string) {
	if !c.checkConfigured(c.contracts.Proof, "submit-proof") {
		return
	}
	c.svc.EnqueueCall("submit-proof", c.contracts.Proof, fnSubmitProof, [][]byte{[]byte(jobID), []byte(proofHash)})
}

// EnqueueValidationRequest schedules a validation request against a job.
func (c *Client) EnqueueValidationRequest(jobID, validatorID string) {
	if !c.checkConfigured(c.contracts.Validation, "validation-request") {
		return
	}
	c.svc.EnqueueCall("validation-request", c.contracts.Validation, fnRequestValidation, [][]byte{[]byte(jobID), []byte(validatorID)})
}

// EnqueueValidationResponse schedules a validator's verdict for a job.
func (c *Client) EnqueueValidationResponse(jobID, verdict, notes string) {
	if !c.checkConfigured(c.contracts.Validation, "validation-response") {
		return
	}
	c.svc.EnqueueCall("validation-response", c.contracts.Validation, fnSubmitValidation, [][]byte{[]byte(jobID), []byte(verdict), []byte(notes)})
}

// Call submits an arbitrary contract call synchronously and returns the
// transaction hash.
func (c *Client) Call(ctx context.Context, contract, function string, args [][]byte) (string, error) {
	if contract == "" {
		return "", fmt.Errorf("contract address is required")
	}
	return c.svc.SubmitCall(ctx, contract, function, args, "", 0)
}

// JobStatus reads a registry job's status string. Registry-side failures
// ("job not found", "already verified") come back verbatim.
func (c *Client) JobStatus(ctx context.Context, jobID string) (string, error) {
	values, err := c.query(ctx, c.contracts.Proof, fnGetJobStatus, [][]byte{[]byte(jobID)})
	if err != nil {
		return "", err
	}
	return chain.DecodeString(values[0]), nil
}

// JobHistory reads the ordered status transitions recorded for a job, oldest
// first.
func (c *Client) JobHistory(ctx context.Context, jobID string) ([]string, error) {
	values, err := c.query(ctx, c.contracts.Proof, fnGetJobHistory, [][]byte{[]byte(jobID)})
	if err != nil {
		return nil, err
	}
	return chain.DecodeStrings(values), nil
}

// JobProof reads the proof hash anchored under a job, rendered as hex.
func (c *Client) JobProof(ctx context.Context, jobID string) (string, error) {
	values, err := c.query(ctx, c.contracts.Proof, fnGetProof, [][]byte{[]byte(jobID)})
	if err != nil {
		return "", err
	}
	return chain.DecodeHex(values[0]), nil
}

// ProofCount reads the registry's total anchored-proof counter.
func (c *Client) ProofCount(ctx context.Context) (uint64, error) {
	values, err := c.query(ctx, c.contracts.Proof, fnGetProofCount, nil)
	if err != nil {
		return 0, err
	}
	return chain.DecodeUint(values[0])
}

func (c *Client) query(ctx context.Context, contract, function string, args [][]byte) ([][]byte, error) {
	if contract == "" {
		return nil, fmt.Errorf("registry contract for %s not configured", function)
	}
	values, err := c.querier.QueryVM(ctx, contract, function, args)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", function)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("query %s returned no values", function)
	}
	return values, nil
}

func (c *Client) checkConfigured(contract, job string) bool {
	if contract != "" {
		return true
	}
	c.logger.Info("registry contract not configured; skipping job", zap.String("job", job))
	return false
}
