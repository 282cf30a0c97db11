package ingest

import (
	"context"
	"log/slog"

	"github.com/vitrina-app/vitrina/internal/mercadopago"
)

// PaymentLinkGenerator wraps the payment-provider collaborator. Preferences
// are created with the seller's own credential (marketplace pattern). A
// seller without a connected merchant is an expected, non-exceptional
// outcome: the stage returns "" and the listing simply carries no link.
type PaymentLinkGenerator struct {
	merchants      MerchantStore
	preferences    PreferenceCreator
	currency       string
	marketplaceFee float64
}

func NewPaymentLinkGenerator(merchants MerchantStore, preferences PreferenceCreator, currency string, marketplaceFee float64) *PaymentLinkGenerator {
	if currency == "" {
		currency = "CLP"
	}
	return &PaymentLinkGenerator{
		merchants:      merchants,
		preferences:    preferences,
		currency:       currency,
		marketplaceFee: marketplaceFee,
	}
}

// CreateLink returns a checkout URL for the product, or "" when no link
// could be created. Provider errors are logged and degrade to ""; a payment
// failure never blocks the rest of the pipeline.
func (g *PaymentLinkGenerator) CreateLink(ctx context.Context, handle, title string, price float64, imageURL string) string {
	if price <= 0 || title == "" {
		return ""
	}

	merchant, err := g.merchants.Get(ctx, handle)
	if err != nil {
		slog.Error("Merchant lookup failed", "handle", handle, "error", err)
		return ""
	}
	if merchant == nil {
		slog.Warn("No merchant connected for handle, skipping payment link.", "handle", handle)
		return ""
	}

	link, err := g.preferences.CreatePreference(ctx, merchant.AccessToken, mercadopago.PreferenceRequest{
		ItemID:         "product-1",
		Title:          title,
		UnitPrice:      price,
		CurrencyID:     g.currency,
		PictureURL:     imageURL,
		MarketplaceFee: g.marketplaceFee,
	})
	if err != nil {
		slog.Error("Failed to create payment preference", "handle", handle, "title", title, "error", err)
		return ""
	}
	return link
}
