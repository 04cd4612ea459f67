package live

import (
	"context"
	"encoding/json"
	"fmt"

	"paygate/internal/auth"
	"paygate/internal/broker"
	"paygate/internal/commerce"
)

// Prepared is the outcome of a successful policy check. A non-empty Greeting
// is sent before relaying; Terminal means the entity can never change again,
// so the session closes after the greeting without opening a subscription.
type Prepared struct {
	Greeting json.RawMessage
	Terminal bool
}

// Policy parameterizes the session state machine. The wallet and invoice
// endpoints share the whole lifecycle and differ only in what Prepare
// demands: wallet sessions require a credential, the wallet-management
// scope and ownership; invoice sessions require only that the invoice
// exists, so any holder of a payment link can track it.
type Policy struct {
	// Kind labels sessions in logs and metrics ("wallet", "invoice").
	Kind string
	// Topic names the broker channel for an entity id.
	Topic func(id int64) string
	// Prepare authenticates, authorizes and inspects the entity. Any error
	// closes the connection with a policy-violation code before a
	// subscription is ever created.
	Prepare func(ctx context.Context, credential string, id int64) (Prepared, error)
}

// WalletPolicy gates wallet notification sessions: credential required,
// wallet_management scope, and the wallet must belong to the caller (or the
// caller is a superuser). Ownership is checked once, at subscribe time; a
// transfer of the wallet mid-session does not interrupt an open stream.
func WalletPolicy(eval *auth.Service, entities commerce.Service) Policy {
	return Policy{
		Kind:  "wallet",
		Topic: broker.WalletTopic,
		Prepare: func(ctx context.Context, credential string, id int64) (Prepared, error) {
			principal, err := eval.Authenticate(ctx, credential)
			if err != nil {
				return Prepared{}, err
			}
			if err := eval.Authorize(principal, auth.ScopeWalletManagement); err != nil {
				return Prepared{}, err
			}
			owner, err := entities.OwnerOfWallet(ctx, id)
			if err != nil {
				return Prepared{}, err
			}
			if owner != principal.User.ID && !principal.User.IsSuperuser {
				return Prepared{}, auth.ErrForbidden
			}
			return Prepared{}, nil
		},
	}
}

// InvoicePolicy gates invoice tracking sessions: no credential, existence
// only. An invoice already in a terminal status yields a single status
// message and no subscription, since no further events can follow.
func InvoicePolicy(entities commerce.Service) Policy {
	return Policy{
		Kind:  "invoice",
		Topic: broker.InvoiceTopic,
		Prepare: func(ctx context.Context, _ string, id int64) (Prepared, error) {
			inv, err := entities.GetInvoice(ctx, id)
			if err != nil {
				return Prepared{}, err
			}
			if commerce.IsTerminalStatus(inv.Status) {
				greeting, err := json.Marshal(map[string]string{"status": inv.Status})
				if err != nil {
					return Prepared{}, fmt.Errorf("live: marshal greeting: %w", err)
				}
				return Prepared{Greeting: greeting, Terminal: true}, nil
			}
			return Prepared{}, nil
		},
	}
}
