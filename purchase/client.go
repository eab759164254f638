/*
client.go - HTTP client for the fulfillment provider

PURPOSE:
  Speaks the provider's REST API (token auth, one endpoint per
  service) and feeds every response through the mapper. The provider
  call is the only unbounded-latency operation in a purchase, so the
  client carries an explicit timeout; a timeout IS an ambiguous
  outcome, never a silent success and never an error the orchestrator
  has to interpret.

ENDPOINTS:
  data        POST {base}/api/data/
  airtime     POST {base}/api/topup/
  electricity POST {base}/api/billpayment/
  cable       POST {base}/api/cablesub/
  meter check GET  {base}/api/validatemeter?...
*/
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geovend/wallet-engine/catalog"
)

// DefaultProviderTimeout bounds one provider round-trip.
const DefaultProviderTimeout = 30 * time.Second

// Client is the production Provider implementation.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient creates a provider client with an explicit timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

var endpoints = map[catalog.ServiceType]string{
	catalog.ServiceData:        "/api/data/",
	catalog.ServiceAirtime:     "/api/topup/",
	catalog.ServiceElectricity: "/api/billpayment/",
	catalog.ServiceCable:       "/api/cablesub/",
}

// SubmitOrder places one order. Transport failures and timeouts come
// back as OutcomeAmbiguous - the order may or may not have been
// fulfilled and only the reconciliation job can find out.
func (c *Client) SubmitOrder(ctx context.Context, o Order) *Result {
	endpoint, ok := endpoints[o.ServiceType]
	if !ok {
		return &Result{
			Outcome: OutcomeFailure,
			Message: fmt.Sprintf("unsupported service type %q", o.ServiceType),
			Raw:     synthesizeRaw(nil),
		}
	}

	body, _ := json.Marshal(c.orderBody(o))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+endpoint, strings.NewReader(string(body)))
	if err != nil {
		return ambiguousResult(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return ambiguousResult(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ambiguousResult(err)
	}

	// The body decides, whatever the HTTP status: some rejections
	// arrive as non-2xx with a parseable error payload (failure), and
	// a non-2xx with nothing parseable classifies as ambiguous.
	return Classify(raw)
}

func (c *Client) orderBody(o Order) map[string]any {
	switch o.ServiceType {
	case catalog.ServiceAirtime:
		return map[string]any{
			"network":       o.ProviderNetworkID,
			"amount":        o.Amount,
			"mobile_number": o.Phone,
			"airtime_type":  "VTU",
			"Ported_number": o.Ported,
		}
	case catalog.ServiceElectricity:
		return map[string]any{
			"disco_name":   o.DiscoName,
			"amount":       o.Amount,
			"meter_number": o.MeterNumber,
			"MeterType":    o.MeterType,
		}
	case catalog.ServiceCable:
		return map[string]any{
			"cablename":         o.CableName,
			"cableplan":         o.ProviderPlanID,
			"smart_card_number": o.SmartCardNumber,
		}
	default: // data
		return map[string]any{
			"network":       o.ProviderNetworkID,
			"mobile_number": o.Phone,
			"plan":          o.ProviderPlanID,
			"Ported_number": o.Ported,
		}
	}
}

// MeterCheck is the provider's meter validation result.
type MeterCheck struct {
	Valid bool            `json:"valid"`
	Name  string          `json:"name,omitempty"`
	Raw   json.RawMessage `json:"raw"`
}

// ValidateMeter checks a meter number before an electricity purchase.
// No money moves here.
func (c *Client) ValidateMeter(ctx context.Context, meterNumber, discoName, meterType string) (*MeterCheck, error) {
	q := url.Values{}
	q.Set("meternumber", meterNumber)
	q.Set("disconame", discoName)
	q.Set("mtype", meterType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/validatemeter?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meter validation: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("meter validation: %w", err)
	}

	var parsed struct {
		Invalid bool   `json:"invalid"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.New("meter validation: provider returned non-JSON response")
	}

	return &MeterCheck{Valid: !parsed.Invalid, Name: parsed.Name, Raw: raw}, nil
}

func ambiguousResult(err error) *Result {
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"time":  time.Now().UTC().Format(time.RFC3339),
	})
	return &Result{
		Outcome: OutcomeAmbiguous,
		Message: err.Error(),
		Raw:     payload,
	}
}
