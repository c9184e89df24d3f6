package transfer

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// LinkAsTransfer links an outgoing debit to an incoming credit. Both sides
// get the other's id as LinkedTransferID and are reclassified into the
// transfer category. The write is one atomic group over both records, and
// the "not yet linked" precondition is re-checked inside that write, so a
// concurrent pass that linked either side first fails this call with
// ledger.ErrConflict.
func (d *Detector) LinkAsTransfer(ctx context.Context, outID, inID string) error {
	if outID == inID {
		return fmt.Errorf("LinkAsTransfer: cannot link a transaction to itself")
	}

	out, err := d.store.GetTransaction(ctx, outID)
	if err != nil {
		return fmt.Errorf("LinkAsTransfer: get outgoing %s: %w", outID, err)
	}
	in, err := d.store.GetTransaction(ctx, inID)
	if err != nil {
		return fmt.Errorf("LinkAsTransfer: get incoming %s: %w", inID, err)
	}
	if out.AccountID == in.AccountID {
		return fmt.Errorf("LinkAsTransfer: both transactions belong to account %s", out.AccountID)
	}

	category := d.cfg.TransferCategory
	linkOut := in.ID
	linkIn := out.ID
	patchOut := ledger.TransactionPatch{
		LinkedTransferID: &linkOut,
		Category:         &category,
		RequireUnlinked:  true,
	}
	patchIn := ledger.TransactionPatch{
		LinkedTransferID: &linkIn,
		Category:         &category,
		RequireUnlinked:  true,
	}

	if err := d.store.UpdateTransactionPair(ctx, outID, inID, patchOut, patchIn); err != nil {
		return fmt.Errorf("LinkAsTransfer: link %s <-> %s: %w", outID, inID, err)
	}

	d.log.Info().
		Str("outgoing", outID).
		Str("incoming", inID).
		Msg("Linked transfer pair")
	return nil
}

// UnlinkTransfer clears a transfer link symmetrically. A transaction without
// a link is a no-op.
func (d *Detector) UnlinkTransfer(ctx context.Context, id string) error {
	tx, err := d.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("UnlinkTransfer: get transaction %s: %w", id, err)
	}
	if !tx.IsLinked() {
		return nil
	}

	empty := ""
	clear := ledger.TransactionPatch{LinkedTransferID: &empty}
	if err := d.store.UpdateTransactionPair(ctx, id, tx.LinkedTransferID, clear, clear); err != nil {
		return fmt.Errorf("UnlinkTransfer: clear %s <-> %s: %w", id, tx.LinkedTransferID, err)
	}

	d.log.Info().
		Str("outgoing", id).
		Str("incoming", tx.LinkedTransferID).
		Msg("Unlinked transfer pair")
	return nil
}
