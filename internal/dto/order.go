package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderhub/internal/entity"
	"github.com/Additional-Code/orderhub/internal/pricing"
)

// Money renders a decimal amount as a JSON number with two fractional digits.
type Money decimal.Decimal

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(pricing.Places)), nil
}

// OrderItemResponse is the public projection of a line item.
type OrderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	VendorID    string `json:"vendorId"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku"`
	VariantID   string `json:"variantId,omitempty"`
	VariantName string `json:"variantName,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       Money  `json:"price"`
	Discount    Money  `json:"discount"`
	Tax         Money  `json:"tax"`
	Subtotal    Money  `json:"subtotal"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID                string              `json:"id"`
	TenantID          string              `json:"tenantId"`
	UserID            string              `json:"userId"`
	OrderNumber       string              `json:"orderNumber"`
	Status            string              `json:"status"`
	Subtotal          Money               `json:"subtotal"`
	ShippingCost      Money               `json:"shippingCost"`
	Tax               Money               `json:"tax"`
	Discount          Money               `json:"discount"`
	Total             Money               `json:"total"`
	Currency          string              `json:"currency"`
	PaymentMethod     string              `json:"paymentMethod"`
	PaymentStatus     string              `json:"paymentStatus"`
	FulfillmentStatus string              `json:"fulfillmentStatus"`
	PaymentID         string              `json:"paymentId,omitempty"`
	TrackingNumber    string              `json:"trackingNumber,omitempty"`
	ShippingAddress   json.RawMessage     `json:"shippingAddress"`
	BillingAddress    json.RawMessage     `json:"billingAddress"`
	Notes             string              `json:"notes"`
	Items             []OrderItemResponse `json:"items"`
	CancelledAt       *time.Time          `json:"cancelledAt,omitempty"`
	CancelledReason   string              `json:"cancelledReason,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// FromOrder projects an order onto its public representation.
func FromOrder(o *entity.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			VariantID:   it.VariantID,
			VariantName: it.VariantName,
			Quantity:    it.Quantity,
			Price:       Money(it.Price),
			Discount:    Money(it.Discount),
			Tax:         Money(it.Tax),
			Subtotal:    Money(it.Subtotal),
			ImageURL:    it.ImageURL,
		}
	}

	return OrderResponse{
		ID:                o.ID,
		TenantID:          o.TenantID,
		UserID:            o.UserID,
		OrderNumber:       o.OrderNumber,
		Status:            string(o.Status),
		Subtotal:          Money(o.Subtotal),
		ShippingCost:      Money(o.ShippingCost),
		Tax:               Money(o.Tax),
		Discount:          Money(o.Discount),
		Total:             Money(o.Total),
		Currency:          o.Currency,
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		PaymentID:         o.PaymentID,
		TrackingNumber:    o.TrackingNumber,
		ShippingAddress:   rawAddress(o.ShippingAddress),
		BillingAddress:    rawAddress(o.BillingAddress),
		Notes:             o.Notes,
		Items:             items,
		CancelledAt:       o.CancelledAt,
		CancelledReason:   o.CancelledReason,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// FromOrders projects a list of orders.
func FromOrders(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i := range orders {
		out[i] = FromOrder(&orders[i])
	}
	return out
}

// Stored addresses are already JSON text; anything unparseable is rendered as null.
func rawAddress(stored string) json.RawMessage {
	if stored == "" || !json.Valid([]byte(stored)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(stored)
}
