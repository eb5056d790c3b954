package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/agentpay/types"
)

// EVMBackend broadcasts pre-signed transactions to an EVM network. The
// payment's metadata must carry the hex-encoded signed raw transaction;
// signing stays with the caller, this backend only transports.
type EVMBackend struct {
	rpcURL  string
	eth     *ethclient.Client
	timeout time.Duration
}

// NewEVMBackend dials the given JSON-RPC endpoint. timeout bounds each
// Execute call on top of the caller's context; zero means 30s.
func NewEVMBackend(rpcURL string, timeout time.Duration) (*EVMBackend, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &EVMBackend{
		rpcURL:  rpcURL,
		eth:     eth,
		timeout: timeout,
	}, nil
}

func (b *EVMBackend) Execute(ctx context.Context, payment *types.PaymentRequest) (bool, error) {
	if !types.IsEVMChain(payment.Chain) {
		return false, types.NewError(types.ErrInvalidArgument,
			"chain %s is not an EVM network", payment.Chain)
	}

	raw, err := hexutil.Decode(strings.TrimSpace(payment.Metadata))
	if err != nil {
		return false, types.NewError(types.ErrInvalidArgument,
			"payment %s metadata is not a hex raw transaction: %v", payment.ID, err)
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return false, types.NewError(types.ErrInvalidArgument,
			"payment %s carries an undecodable transaction: %v", payment.ID, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.eth.SendTransaction(execCtx, tx); err != nil {
		// Broadcast rejection is an attempt outcome, not a transport fault.
		return false, nil
	}

	return b.waitMined(execCtx, tx.Hash())
}

// waitMined polls for the receipt until the context expires. An unmined
// transaction counts as a failed attempt; the caller's retry policy decides
// whether to try again.
func (b *EVMBackend) waitMined(ctx context.Context, hash common.Hash) (bool, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := b.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt.Status == ethtypes.ReceiptStatusSuccessful, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

func (b *EVMBackend) Close() {
	b.eth.Close()
}
