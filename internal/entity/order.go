package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order is the aggregate root stored in the orders table. Items are owned by value
// and ordered by Position.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                string            `bun:"id,pk" json:"id"`
	TenantID          string            `bun:"tenant_id,notnull" json:"tenant_id"`
	UserID            string            `bun:"user_id,notnull" json:"user_id"`
	OrderNumber       string            `bun:"order_number,notnull,unique" json:"order_number"`
	Status            OrderStatus       `bun:"status,notnull" json:"status"`
	PaymentStatus     PaymentStatus     `bun:"payment_status,notnull" json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `bun:"fulfillment_status,notnull" json:"fulfillment_status"`

	Subtotal     decimal.Decimal `bun:"subtotal,type:numeric(12,2),notnull" json:"subtotal"`
	ShippingCost decimal.Decimal `bun:"shipping_cost,type:numeric(12,2),notnull" json:"shipping_cost"`
	Tax          decimal.Decimal `bun:"tax,type:numeric(12,2),notnull" json:"tax"`
	Discount     decimal.Decimal `bun:"discount,type:numeric(12,2),notnull" json:"discount"`
	Total        decimal.Decimal `bun:"total,type:numeric(12,2),notnull" json:"total"`
	Currency     string          `bun:"currency,notnull" json:"currency"`

	PaymentMethod  string `bun:"payment_method" json:"payment_method"`
	PaymentID      string `bun:"payment_id" json:"payment_id"`
	TrackingNumber string `bun:"tracking_number" json:"tracking_number"`

	ShippingAddress string `bun:"shipping_address" json:"shipping_address"`
	BillingAddress  string `bun:"billing_address" json:"billing_address"`
	Notes           string `bun:"notes" json:"notes"`

	CancelledAt     *time.Time `bun:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledReason string     `bun:"cancelled_reason" json:"cancelled_reason"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items"`
}

// OrderItem is a single product line owned by an Order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID          string          `bun:"id,pk" json:"id"`
	OrderID     string          `bun:"order_id,notnull" json:"order_id"`
	TenantID    string          `bun:"tenant_id,notnull" json:"tenant_id"`
	Position    int             `bun:"position,notnull" json:"position"`
	ProductID   string          `bun:"product_id,notnull" json:"product_id"`
	VendorID    string          `bun:"vendor_id" json:"vendor_id"`
	VariantID   string          `bun:"variant_id" json:"variant_id"`
	ProductName string          `bun:"product_name" json:"product_name"`
	SKU         string          `bun:"sku" json:"sku"`
	VariantName string          `bun:"variant_name" json:"variant_name"`
	ImageURL    string          `bun:"image_url" json:"image_url"`
	Quantity    int             `bun:"quantity,notnull" json:"quantity"`
	Price       decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
	Discount    decimal.Decimal `bun:"discount,type:numeric(12,2),notnull" json:"discount"`
	Tax         decimal.Decimal `bun:"tax,type:numeric(12,2),notnull" json:"tax"`
	Subtotal    decimal.Decimal `bun:"subtotal,type:numeric(12,2),notnull" json:"subtotal"`
}

// Clone returns a deep copy of o, including its items.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		cp.CancelledAt = &at
	}
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		copy(cp.Items, o.Items)
	}
	return &cp
}

// Touch bumps UpdatedAt so it never moves backwards.
func (o *Order) Touch(now time.Time) {
	if now.After(o.UpdatedAt) {
		o.UpdatedAt = now
		return
	}
	o.UpdatedAt = o.UpdatedAt.Add(time.Microsecond)
}

// MarkCancelled moves the order into CANCELLED and records when and why.
func (o *Order) MarkCancelled(now time.Time, reason string) {
	o.Status = OrderStatusCancelled
	at := now
	o.CancelledAt = &at
	o.CancelledReason = reason
}
