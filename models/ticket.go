package models

import (
	"github.com/shopspring/decimal"
)

type TicketGroup struct {
	ID          int64           `json:"ticketGroupId"`
	Name        string          `json:"groupName"`
	Description string          `json:"groupDesc"`
	Location    string          `json:"location"`
	ImageURL    string          `json:"imageUrl"`
	FromPrice   decimal.Decimal `json:"fromPrice"`
	Active      bool            `json:"isActive"`
}

type TicketProfile struct {
	TicketGroup
	Gallery     []string `json:"gallery"`
	OpeningTime string   `json:"openingTime"`
	Terms       string   `json:"termsAndConditions"`
	Categories  []string `json:"categories"`
}

// TicketVariant is one priced category of a ticket group on a given date.
type TicketVariant struct {
	ID        int64           `json:"ticketId"`
	Category  string          `json:"ticketType"`
	Price     decimal.Decimal `json:"unitPrice"`
	Available int             `json:"available"`
	Date      string          `json:"date"`
}
