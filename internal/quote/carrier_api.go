package quote

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"

    "shipflow/internal/assign"
    "shipflow/internal/model"
    "shipflow/internal/payload"
)

// QuoteResponse is the carrier's synchronous answer to a quote request.
type QuoteResponse struct {
    Accepted      bool    `json:"accepted"`
    Price         float64 `json:"price"`
    Currency      string  `json:"currency"`
    EstimatedDays int     `json:"estimatedDays"`
    Reason        string  `json:"reason"`
}

// CarrierAPI is the outbound quote call. Swapped for a fake in tests.
type CarrierAPI interface {
    RequestQuote(ctx context.Context, carrier model.Carrier, req payload.RequestPayload) (QuoteResponse, error)
}

// HTTPCarrierAPI posts the request payload to the carrier's endpoint
// and decodes the quote response. The caller bounds the call with its
// context; no timeout lives here.
type HTTPCarrierAPI struct {
    Client *http.Client
}

func NewHTTPCarrierAPI() *HTTPCarrierAPI {
    // No client timeout: the per-carrier race owns the deadline.
    return &HTTPCarrierAPI{Client: &http.Client{}}
}

func (h *HTTPCarrierAPI) RequestQuote(ctx context.Context, carrier model.Carrier, req payload.RequestPayload) (QuoteResponse, error) {
    body, _ := json.Marshal(req)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, carrier.Endpoint, bytes.NewReader(body))
    if err != nil { return QuoteResponse{}, err }
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("X-Event-Type", "quote.requested")
    if carrier.Secret != "" {
        httpReq.Header.Set("X-Signature", assign.SignHMAC(carrier.Secret, body))
    }
    resp, err := h.Client.Do(httpReq)
    if err != nil { return QuoteResponse{}, err }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return QuoteResponse{}, fmt.Errorf("carrier %s quote endpoint returned %d", carrier.Code, resp.StatusCode)
    }
    var out QuoteResponse
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return QuoteResponse{}, err
    }
    return out, nil
}
