/*
Package notify is the outbound notification collaborator.

PURPOSE:
  Receipts and funding confirmations are sent to users out-of-band.
  The engine never awaits a notification on a money-movement path:
  callers invoke the Notifier from a goroutine after the settle unit
  commits and ignore failures.

  The real mail transport lives outside this module; LogNotifier is
  the default wiring and simply records what would have been sent.
*/
package notify

import (
	"context"
	"log"

	"github.com/geovend/wallet-engine/ledger"
)

// Notifier delivers user-facing notifications. Implementations must
// tolerate being called concurrently and should bound their own
// latency; callers neither retry nor await.
type Notifier interface {
	// EntrySettled notifies the account owner about a settled entry
	// (purchase receipt, funding confirmation).
	EntrySettled(ctx context.Context, e ledger.Entry)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) EntrySettled(_ context.Context, e ledger.Entry) {
	log.Printf("notify: account=%s kind=%s status=%s amount=%d entry=%s",
		e.AccountID, e.Kind, e.Status, e.Amount, e.ID)
}

// NopNotifier drops notifications. Used in tests.
type NopNotifier struct{}

func (NopNotifier) EntrySettled(context.Context, ledger.Entry) {}
