package jungledb

import (
	"context"

	"github.com/jungledb/jungledb/pkg/jlog"
	"github.com/jungledb/jungledb/pkg/jmetrics"
)

// CombinedTransaction atomically commits several root transactions, each
// against a different ObjectStore of the same JungleDB instance, as a
// single all-or-nothing step. It requires:
//  1. at least one member transaction,
//  2. every member TxOpen and a root (not nested),
//  3. no two members on the same ObjectStore.
type CombinedTransaction struct {
	transactions []*Transaction
}

// NewCombinedTransaction validates the preconditions above and returns the
// combined handle, or a UsageError describing the first violation found. A
// failed precondition aborts every member still TxOpen before returning:
// a transaction that cannot join a combined commit does not stay open to
// be committed standalone instead.
func NewCombinedTransaction(txs ...*Transaction) (*CombinedTransaction, error) {
	if len(txs) == 0 {
		return nil, usageErrorf("NewCombinedTransaction", "at least one transaction is required")
	}
	seenStores := make(map[*ObjectStore]bool, len(txs))
	for _, t := range txs {
		if t.nested {
			abortOpenMembers(txs)
			return nil, usageErrorf("NewCombinedTransaction", "nested transactions cannot be combined")
		}
		if t.State() != TxOpen {
			abortOpenMembers(txs)
			return nil, usageErrorf("NewCombinedTransaction", "transaction on store %q is %s, not open", t.store.Name(), t.State())
		}
		if seenStores[t.store] {
			abortOpenMembers(txs)
			return nil, usageErrorf("NewCombinedTransaction", "two transactions on store %q", t.store.Name())
		}
		seenStores[t.store] = true
	}
	return &CombinedTransaction{transactions: txs}, nil
}

// abortOpenMembers aborts every transaction in txs still TxOpen, used
// whenever a combined commit fails so no member is left open afterward.
func abortOpenMembers(txs []*Transaction) {
	for _, t := range txs {
		if t.State() == TxOpen {
			_ = t.Abort()
		}
	}
}

// Commit runs the commit protocol on the shared Synchronizer lane:
//
//  1. confirm every member is still TxOpen (a member could have been
//     individually aborted since the CombinedTransaction was built),
//  2. validate every member against its own store's committed stack,
//     exactly as a standalone root commit would,
//  3. if any member fails validation, abort every member uniformly and
//     return that error — no member survives a failed combined commit
//     still open, so none can be retried or committed standalone,
//  4. otherwise push every member onto its store's committed stack,
//  5. each push updates that store's read cache,
//  6. return nil once every member is TxCommitted.
//
// Because steps 1-4 run as one Synchronizer job, no other commit — root,
// nested-into-root, or combined — can interleave between validation and
// push for any of the participating stores.
func (ct *CombinedTransaction) Commit(ctx context.Context) error {
	timer := jmetrics.NewTimer()
	storeNames := make([]string, len(ct.transactions))
	txIDs := make([]string, len(ct.transactions))
	for i, t := range ct.transactions {
		storeNames[i] = t.store.Name()
		txIDs[i] = t.ID()
	}

	sync := ct.transactions[0].store.sync
	err := sync.Execute(func() error {
		for _, t := range ct.transactions {
			if t.State() != TxOpen {
				abortOpenMembers(ct.transactions)
				return usageErrorf("Commit", "a member of this combined transaction is no longer open")
			}
		}
		for _, t := range ct.transactions {
			if err := t.store.validateRoot(t); err != nil {
				abortOpenMembers(ct.transactions)
				return err
			}
		}
		for _, t := range ct.transactions {
			t.store.pushRoot(t)
		}
		return nil
	})
	timer.ObserveDuration(jmetrics.CombinedCommitDuration)
	if err != nil {
		jmetrics.CombinedCommitFailuresTotal.Inc()
		jlog.Logger.Debug().Err(err).Strs("stores", storeNames).Strs("tx_ids", txIDs).Msg("combined transaction commit rejected")
		return err
	}
	jlog.Logger.Debug().Strs("stores", storeNames).Strs("tx_ids", txIDs).Msg("combined transaction committed")
	return nil
}

// Abort discards every member transaction's writes.
func (ct *CombinedTransaction) Abort() error {
	for _, t := range ct.transactions {
		if err := t.Abort(); err != nil {
			return err
		}
	}
	return nil
}
