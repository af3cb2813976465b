package models

type Bank struct {
	Code   string `json:"bankCode"`
	Name   string `json:"bankName"`
	Active bool   `json:"active"`
}

type BankListRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

// PaymentNotification is pushed by the payment gateway once an order is
// settled or rejected.
type PaymentNotification struct {
	OrderID       int64  `json:"orderTicketGroupId"`
	OrderNo       string `json:"orderNo"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}
