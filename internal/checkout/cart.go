package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ticket-storefront/internal/status"
)

// Ticket is one category line inside a cart item.
type Ticket struct {
	ID       int64           `json:"id"`
	Category string          `json:"category"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Item is a ticket group on a visit date with its ticket quantities.
type Item struct {
	ID            string   `json:"id"`
	TicketGroupID int64    `json:"ticketGroupId"`
	Name          string   `json:"name"`
	Date          string   `json:"date"`
	Tickets       []Ticket `json:"tickets"`
}

func (it *Item) subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range it.Tickets {
		sum = sum.Add(t.Price.Mul(decimal.NewFromInt(int64(t.Quantity))))
	}
	return sum
}

func (it *Item) hasTickets() bool {
	for _, t := range it.Tickets {
		if t.Quantity > 0 {
			return true
		}
	}
	return false
}

// Cart holds items and the subset selected for purchase. Selection never
// touches stored quantities.
type Cart struct {
	Items    []Item          `json:"items"`
	Selected map[string]bool `json:"selected"`
	Discount decimal.Decimal `json:"discount"`
}

func (c *Cart) find(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func validTickets(tickets []Ticket) error {
	for _, t := range tickets {
		if t.Quantity < 0 {
			return fmt.Errorf("ticket %d: %w", t.ID, status.ErrInvalidQuantity)
		}
		if t.Price.IsNegative() {
			return fmt.Errorf("ticket %d: %w", t.ID, status.ErrInvalidPrice)
		}
	}
	return nil
}

// AddItem puts item in the cart and selects it. Adding an item id that is
// already present adds the quantities ticket by ticket.
func (c *Cart) AddItem(item Item) error {
	if err := validTickets(item.Tickets); err != nil {
		return err
	}
	if c.Selected == nil {
		c.Selected = make(map[string]bool)
	}

	i := c.find(item.ID)
	if i < 0 {
		item.Tickets = append([]Ticket(nil), item.Tickets...)
		c.Items = append(c.Items, item)
		c.Selected[item.ID] = true
		return nil
	}

	existing := &c.Items[i]
next:
	for _, t := range item.Tickets {
		for j := range existing.Tickets {
			if existing.Tickets[j].ID == t.ID {
				existing.Tickets[j].Quantity += t.Quantity
				existing.Tickets[j].Price = t.Price
				continue next
			}
		}
		existing.Tickets = append(existing.Tickets, t)
	}
	c.Selected[item.ID] = true
	return nil
}

// SetQuantity replaces one ticket's quantity. Zero keeps the item in the cart.
func (c *Cart) SetQuantity(itemID string, ticketID int64, quantity int) error {
	if quantity < 0 {
		return status.ErrInvalidQuantity
	}
	i := c.find(itemID)
	if i < 0 {
		return fmt.Errorf("item %s: %w", itemID, status.ErrItemNotFound)
	}
	for j := range c.Items[i].Tickets {
		if c.Items[i].Tickets[j].ID == ticketID {
			c.Items[i].Tickets[j].Quantity = quantity
			return nil
		}
	}
	return fmt.Errorf("item %s ticket %d: %w", itemID, ticketID, status.ErrItemNotFound)
}

func (c *Cart) RemoveItem(itemID string) error {
	i := c.find(itemID)
	if i < 0 {
		return fmt.Errorf("item %s: %w", itemID, status.ErrItemNotFound)
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	delete(c.Selected, itemID)
	return nil
}

func (c *Cart) Select(itemID string, selected bool) error {
	if c.find(itemID) < 0 {
		return fmt.Errorf("item %s: %w", itemID, status.ErrItemNotFound)
	}
	if c.Selected == nil {
		c.Selected = make(map[string]bool)
	}
	if selected {
		c.Selected[itemID] = true
	} else {
		delete(c.Selected, itemID)
	}
	return nil
}

func (c *Cart) SelectAll(selected bool) {
	c.Selected = make(map[string]bool, len(c.Items))
	if !selected {
		return
	}
	for _, it := range c.Items {
		c.Selected[it.ID] = true
	}
}

func (c *Cart) SetDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return status.ErrInvalidDiscount
	}
	c.Discount = amount
	return nil
}

// SelectedItems returns the selected items in cart order.
func (c *Cart) SelectedItems() []Item {
	var items []Item
	for _, it := range c.Items {
		if c.Selected[it.ID] {
			items = append(items, it)
		}
	}
	return items
}

// Subtotal sums price times quantity over selected items only.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		if c.Selected[it.ID] {
			sum = sum.Add(it.subtotal())
		}
	}
	return sum
}

// Total is the subtotal less the discount, never below zero.
func (c *Cart) Total() decimal.Decimal {
	total := c.Subtotal().Sub(c.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (c *Cart) Free() bool {
	return c.Total().IsZero()
}

// HasSelectedTickets reports whether any selected item has a nonzero
// quantity.
func (c *Cart) HasSelectedTickets() bool {
	for _, it := range c.Items {
		if c.Selected[it.ID] && it.hasTickets() {
			return true
		}
	}
	return false
}

// removePurchased drops the selected items.
func (c *Cart) removePurchased() {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if !c.Selected[it.ID] {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	c.Selected = make(map[string]bool)
	c.Discount = decimal.Zero
}
