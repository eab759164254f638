/*
gateway.go - Payment gateway collaborator contract and HTTP client

PURPOSE:
  The gateway is the authoritative source for whether a customer's
  card/bank payment actually happened. The reconciler never trusts a
  client-supplied "it worked": it always re-verifies the reference
  against the gateway before crediting.

  HTTPGateway speaks the Paystack-style REST shape the platform uses:
    POST /transaction/initialize          -> authorization_url
    GET  /transaction/verify/{reference}  -> status, amount, metadata

AMOUNTS:
  The gateway already operates in the smallest currency unit, the same
  unit the ledger uses. No conversion happens here.

SEE ALSO:
  - funding.go: the reconciler consuming this contract
*/
package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geovend/wallet-engine/ledger"
)

// ErrGatewayUnavailable is returned when the gateway cannot be
// reached or answers with an unusable body.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Verification is the gateway's authoritative view of one payment.
type Verification struct {
	Reference string
	// Status is the gateway's own status string; only "success"
	// proceeds to a credit.
	Status string
	// Amount paid, smallest currency unit.
	Amount    int64
	AccountID ledger.AccountID
	Raw       json.RawMessage
}

// Succeeded reports whether the payment is definitively settled on
// the gateway side.
func (v *Verification) Succeeded() bool {
	return v.Status == "success"
}

// Gateway verifies external payments.
type Gateway interface {
	// Initialize starts a hosted checkout and returns the URL the user
	// completes payment on.
	Initialize(ctx context.Context, accountID ledger.AccountID, amount int64) (authorizationURL string, err error)

	// Verify fetches the authoritative status of a payment reference.
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// HTTPGateway is the production Gateway implementation.
type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPGateway creates a gateway client with an explicit timeout.
func NewHTTPGateway(baseURL, secretKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

// Initialize starts a hosted checkout session.
func (g *HTTPGateway) Initialize(ctx context.Context, accountID ledger.AccountID, amount int64) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"amount": amount,
		"metadata": map[string]string{
			"account_id": string(accountID),
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/transaction/initialize", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data struct {
			AuthorizationURL string `json:"authorization_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if parsed.Data.AuthorizationURL == "" {
		return "", fmt.Errorf("%w: no authorization url in response", ErrGatewayUnavailable)
	}
	return parsed.Data.AuthorizationURL, nil
}

// Verify fetches the authoritative payment status.
func (g *HTTPGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var parsed struct {
		Data struct {
			Status   string `json:"status"`
			Amount   int64  `json:"amount"`
			Metadata struct {
				AccountID string `json:"account_id"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &Verification{
		Reference: reference,
		Status:    parsed.Data.Status,
		Amount:    parsed.Data.Amount,
		AccountID: ledger.AccountID(parsed.Data.Metadata.AccountID),
		Raw:       raw,
	}, nil
}
