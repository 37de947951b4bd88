package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"time"
)

// TxRequest describes a contract call to submit to the ledger.
type TxRequest struct {
	ContractAddress string
	FunctionName    string
	Parameters      []any
	GasLimit        int
	Value           string
}

// TxReceipt is the receipt-shaped result of a submitted transaction.
type TxReceipt struct {
	TransactionHash   string           `json:"transactionHash"`
	BlockNumber       int64            `json:"blockNumber"`
	GasUsed           int              `json:"gasUsed"`
	CumulativeGasUsed int              `json:"cumulativeGasUsed"`
	EffectiveGasPrice string           `json:"effectiveGasPrice"`
	Status            string           `json:"status"`
	Logs              []map[string]any `json:"logs"`
}

// ChainClient submits transactions to an external ledger.
type ChainClient interface {
	SubmitTransaction(ctx context.Context, req TxRequest) (*TxReceipt, error)
}

var contractAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ChainSubmitExecutor submits one transaction per input item and records the
// receipt on that item.
type ChainSubmitExecutor struct {
	client ChainClient
}

func (e *ChainSubmitExecutor) Inputs() []string  { return []string{PortMain} }
func (e *ChainSubmitExecutor) Outputs() []string { return []string{PortMain} }

func (e *ChainSubmitExecutor) Execute(ctx context.Context, ec *ExecContext) ([][]Item, error) {
	params := ec.Node.Parameters

	items := ec.inputItems(0)
	results := make([]Item, 0, len(items))

	for i := range items {
		item := &items[i]

		req := TxRequest{
			ContractAddress: resolveString(params["contractAddress"], ec, item),
			FunctionName:    resolveString(params["functionName"], ec, item),
			GasLimit:        intParam(params, "gasLimit", 0),
			Value:           "0",
		}
		if v := resolveString(params["value"], ec, item); v != "" {
			req.Value = v
		}
		for _, p := range sliceParam(params, "parameters") {
			req.Parameters = append(req.Parameters, resolveParameter(p, ec, item))
		}

		receipt, err := e.submit(ctx, req)
		if err != nil {
			if !ec.ContinueOnFail {
				return nil, fmt.Errorf("chain submit failed: %w", err)
			}
			out := cloneJSON(item.JSON)
			out["chainSubmit"] = map[string]any{
				"contractAddress": req.ContractAddress,
				"functionName":    req.FunctionName,
				"error":           err.Error(),
				"status":          "failed",
			}
			results = append(results, itemFor(out, i))
			continue
		}

		out := cloneJSON(item.JSON)
		out["chainSubmit"] = map[string]any{
			"contractAddress": req.ContractAddress,
			"functionName":    req.FunctionName,
			"parameters":      req.Parameters,
			"transactionHash": receipt.TransactionHash,
			"blockNumber":     receipt.BlockNumber,
			"gasUsed":         receipt.GasUsed,
			"status":          receipt.Status,
			"receipt":         receipt,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		}
		results = append(results, itemFor(out, i))
	}

	return [][]Item{results}, nil
}

// submit fails fast on a malformed address before touching the client.
func (e *ChainSubmitExecutor) submit(ctx context.Context, req TxRequest) (*TxReceipt, error) {
	if !contractAddressRe.MatchString(req.ContractAddress) {
		return nil, fmt.Errorf("Invalid contract address: %s", req.ContractAddress)
	}
	return e.client.SubmitTransaction(ctx, req)
}

// SimulatedChainClient stands in for a real RPC client, producing
// receipt-shaped mock results.
type SimulatedChainClient struct {
	// Latency is added to every call to mimic network time.
	Latency time.Duration
}

func (c *SimulatedChainClient) SubmitTransaction(ctx context.Context, req TxRequest) (*TxReceipt, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	gasUsed := rand.Intn(100000) + 21000
	if req.GasLimit > 0 {
		gasUsed = int(float64(req.GasLimit) * (0.7 + rand.Float64()*0.3))
	}

	receipt := &TxReceipt{
		TransactionHash:   randomHex(64),
		BlockNumber:       time.Now().Unix()/15 + 18000000,
		GasUsed:           gasUsed,
		CumulativeGasUsed: gasUsed + rand.Intn(50000),
		EffectiveGasPrice: "20000000000",
		Status:            "success",
		Logs:              []map[string]any{},
	}

	switch req.FunctionName {
	case "submitResult":
		var taskID any
		if len(req.Parameters) > 0 {
			taskID = req.Parameters[0]
		}
		receipt.Logs = append(receipt.Logs, map[string]any{
			"address": req.ContractAddress,
			"event":   "ResultSubmitted",
			"taskId":  taskID,
		})
	case "registerAgent":
		var name any
		if len(req.Parameters) > 0 {
			name = req.Parameters[0]
		}
		receipt.Logs = append(receipt.Logs, map[string]any{
			"address": req.ContractAddress,
			"event":   "AgentRegistered",
			"name":    name,
		})
	}

	return receipt, nil
}
