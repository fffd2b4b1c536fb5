package engine

import "context"

// gasBurned totals the gas consumed by a transaction and every receipt it
// induced. Gas accounting is best-effort: any failure to retrieve status
// degrades to zero instead of failing the outer call.
func (e *Engine) gasBurned(ctx context.Context, txRef string) uint64 {
	if txRef == "" {
		return 0
	}
	status, err := e.client.TxStatus(ctx, txRef, e.signer)
	if err != nil {
		e.log.Debug("gas accounting unavailable", "tx", txRef, "err", err)
		return 0
	}
	total := status.TransactionGasBurnt
	for _, gas := range status.ReceiptGasBurnt {
		total += gas
	}
	return total
}
