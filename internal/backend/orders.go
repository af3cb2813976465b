package backend

import (
	"context"
	"net/url"
	"strconv"

	"ticket-storefront/models"
)

// PlaceOrder creates a paid order. The call is never retried here.
func (a *API) PlaceOrder(ctx context.Context, req *models.PaidOrderRequest) (*models.OrderPlacement, error) {
	var placement models.OrderPlacement
	if err := a.post(ctx, "/api/orderTicketGroup", req, &placement); err != nil {
		return nil, err
	}
	return &placement, nil
}

// PlaceFreeOrder creates an order whose total is zero.
func (a *API) PlaceFreeOrder(ctx context.Context, req *models.FreeOrderRequest) (*models.OrderPlacement, error) {
	var placement models.OrderPlacement
	if err := a.post(ctx, "/api/orderTicketGroup/free", req, &placement); err != nil {
		return nil, err
	}
	return &placement, nil
}

func (a *API) Order(ctx context.Context, orderID int64) (*models.Order, error) {
	query := url.Values{"orderTicketGroupId": {strconv.FormatInt(orderID, 10)}}

	var order models.Order
	if err := a.get(ctx, "/api/orderTicketGroup", query, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (a *API) Orders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := a.get(ctx, "/api/orderTicketGroups", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// NonMemberInquiry looks an order up by number and email, without login.
func (a *API) NonMemberInquiry(ctx context.Context, orderNo, email string) (*models.Order, error) {
	query := url.Values{"orderNo": {orderNo}, "email": {email}}

	var order models.Order
	if err := a.get(ctx, "/api/orderNonMemberInquiry", query, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
