package engine

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ftops/internal/domain"
	"ftops/internal/repo"
)

// Webhook is one inbound provider delivery as received.
type Webhook struct {
	Provider    string
	Environment string
	Header      http.Header
	Body        []byte
}

// webhookFacts are the routing fields read from a delivery.
type webhookFacts struct {
	account   string
	topic     string
	shop      string
	webhookID string
	signature string
	secretKey string
}

func readWebhook(w Webhook) webhookFacts {
	switch w.Provider {
	case "shopify":
		shop := w.Header.Get("X-Shopify-Shop-Domain")
		return webhookFacts{
			account:   shop,
			topic:     w.Header.Get("X-Shopify-Topic"),
			shop:      shop,
			webhookID: w.Header.Get("X-Shopify-Webhook-Id"),
			signature: w.Header.Get("X-Shopify-Hmac-Sha256"),
			secretKey: "webhookSecret",
		}
	default:
		f := webhookFacts{signature: w.Header.Get("Intuit-Signature"), secretKey: "webhookVerifierToken"}
		var body struct {
			EventNotifications []struct {
				RealmID string `json:"realmId"`
			} `json:"eventNotifications"`
		}
		if json.Unmarshal(w.Body, &body) == nil && len(body.EventNotifications) > 0 {
			f.account = body.EventNotifications[0].RealmID
			f.topic = "dataChangeEvent"
		}
		return f
	}
}

// Sign computes the base64 HMAC-SHA256 signature providers attach to deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ReceiveWebhook records a delivery, resolving its integration and verifying the signature.
// Unverifiable deliveries are still recorded, with verify_error set.
func (e Engine) ReceiveWebhook(ctx context.Context, w Webhook) (domain.IngestRequest, error) {
	if !contains(domain.Providers, w.Provider) {
		return domain.IngestRequest{}, notFound("unknown_provider", nil)
	}
	f := readWebhook(w)
	headers, err := json.Marshal(w.Header)
	if err != nil {
		return domain.IngestRequest{}, err
	}
	req := repo.StoredIngest{
		IngestRequest: domain.IngestRequest{
			ID:                newID(),
			Provider:          w.Provider,
			ReceivedAt:        e.stamp(),
			Environment:       w.Environment,
			ExternalAccountID: f.account,
			Topic:             f.topic,
			ShopDomain:        f.shop,
			WebhookID:         f.webhookID,
		},
		HeadersJSON: string(headers),
		BodyText:    string(w.Body),
	}
	req.VerifyError = e.verify(ctx, w, f, &req.IngestRequest)
	req.SignatureVerified = req.VerifyError == ""
	if err := e.Repo.InsertIngestRequest(ctx, req); err != nil {
		return domain.IngestRequest{}, err
	}
	e.Logger.Info("webhook received",
		zap.String("provider", w.Provider), zap.String("account", f.account),
		zap.Bool("verified", bool(req.SignatureVerified)), zap.String("verify_error", req.VerifyError))
	return req.IngestRequest, nil
}

func (e Engine) verify(ctx context.Context, w Webhook, f webhookFacts, out *domain.IngestRequest) string {
	if f.account == "" {
		return "missing_account"
	}
	it, err := e.Repo.IntegrationByAccount(ctx, w.Provider, f.account)
	if errors.Is(err, repo.ErrNotFound) {
		return "integration_not_found"
	}
	if err != nil {
		return err.Error()
	}
	out.IntegrationID = it.ID
	out.IntegrationDisplayName = it.DisplayName
	out.WorkspaceID = it.WorkspaceID
	if out.Environment == "" {
		out.Environment = it.Environment
	}
	if !it.IsActive {
		return "integration_inactive"
	}
	if f.signature == "" {
		return "missing_signature"
	}
	secrets, err := e.Repo.IntegrationSecrets(ctx, it.ID)
	if err != nil {
		return err.Error()
	}
	secret := secrets[f.secretKey]
	if secret == "" {
		return "missing_secret"
	}
	if !hmac.Equal([]byte(Sign(secret, w.Body)), []byte(strings.TrimSpace(f.signature))) {
		return "signature_mismatch"
	}
	return ""
}

// IngestDetail returns one ingest request with decoded headers and body.
func (e Engine) IngestDetail(ctx context.Context, id string) (domain.IngestRequest, error) {
	s, err := e.Repo.GetIngestRequest(ctx, id)
	if err != nil {
		return domain.IngestRequest{}, orNotFound(err, "ingest_request_not_found")
	}
	out := s.IngestRequest
	if s.HeadersJSON != "" {
		var h any
		if json.Unmarshal([]byte(s.HeadersJSON), &h) == nil {
			out.Headers = h
		}
	}
	if s.BodyText != "" {
		var b any
		if json.Unmarshal([]byte(s.BodyText), &b) == nil {
			out.Body = b
		} else {
			out.Body = s.BodyText
		}
	}
	return out, nil
}
