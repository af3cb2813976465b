package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderTicket struct {
	TicketID int64 `json:"ticketId"`
	Quantity int   `json:"quantity"`
}

type OrderLine struct {
	TicketGroupID int64         `json:"ticketGroupId"`
	Date          string        `json:"date"`
	Tickets       []OrderTicket `json:"tickets"`
}

type Guest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// FreeOrderRequest places an order whose total is zero.
type FreeOrderRequest struct {
	Lines []OrderLine `json:"items"`
	Guest *Guest      `json:"guest,omitempty"`
}

// PaidOrderRequest places an order that must be settled at the gateway.
type PaidOrderRequest struct {
	Lines         []OrderLine     `json:"items"`
	Guest         *Guest          `json:"guest,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	BankCode      string          `json:"bankCode,omitempty"`
	PaymentMode   string          `json:"paymentMode,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
}

type OrderPlacement struct {
	OrderID    int64  `json:"orderTicketGroupId"`
	OrderNo    string `json:"orderNo"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

type OrderItem struct {
	TicketID  int64           `json:"ticketId"`
	Category  string          `json:"ticketType"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type Order struct {
	ID            int64           `json:"orderTicketGroupId"`
	OrderNo       string          `json:"orderNo"`
	TicketGroupID int64           `json:"ticketGroupId"`
	GroupName     string          `json:"groupName"`
	VisitDate     string          `json:"visitDate"`
	Status        string          `json:"orderStatus"`
	PaymentStatus string          `json:"paymentStatus"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
}
