package dto

import (
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderhub/internal/entity"
)

// CreateOrderItemRequest is one requested line item.
type CreateOrderItemRequest struct {
	ProductID   string          `json:"productId" validate:"required"`
	VendorID    string          `json:"vendorId"`
	VariantID   string          `json:"variantId"`
	ProductName string          `json:"productName"`
	SKU         string          `json:"sku"`
	VariantName string          `json:"variantName"`
	ImageURL    string          `json:"imageUrl"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	UserID          string                   `json:"userId"`
	Items           []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *entity.Address          `json:"shippingAddress"`
	BillingAddress  *entity.Address          `json:"billingAddress"`
	PaymentMethod   string                   `json:"paymentMethod" validate:"max=64"`
	Notes           string                   `json:"notes" validate:"max=2000"`
	Currency        string                   `json:"currency" validate:"omitempty,len=3,alpha"`
	ShippingCost    decimal.Decimal          `json:"shippingCost"`
	Tax             decimal.Decimal          `json:"tax"`
	Discount        decimal.Decimal          `json:"discount"`
}

// UpdateStatusRequest is the body of PUT /orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// ProcessPaymentRequest is the body of POST /orders/:id/payment.
type ProcessPaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
}

// ConfirmShipmentRequest is the body of POST /orders/:id/shipment.
type ConfirmShipmentRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"required"`
}
