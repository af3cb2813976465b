package backend

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"ticket-storefront/models"
)

// DateLayout is the yyyy-MM-dd format the backend expects for dates.
const DateLayout = "2006-01-02"

func (a *API) TicketGroups(ctx context.Context) ([]models.TicketGroup, error) {
	var groups []models.TicketGroup
	if err := a.get(ctx, "/api/ticketGroups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (a *API) TicketProfile(ctx context.Context, ticketGroupID int64) (*models.TicketProfile, error) {
	query := url.Values{"ticketGroupId": {strconv.FormatInt(ticketGroupID, 10)}}

	var profile models.TicketProfile
	if err := a.get(ctx, "/api/ticketGroups/ticketProfile", query, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// TicketVariants lists the priced categories of a ticket group on date.
func (a *API) TicketVariants(ctx context.Context, ticketGroupID int64, date time.Time) ([]models.TicketVariant, error) {
	query := url.Values{
		"ticketGroupId": {strconv.FormatInt(ticketGroupID, 10)},
		"date":          {date.Format(DateLayout)},
	}

	var variants []models.TicketVariant
	if err := a.get(ctx, "/api/ticketGroups/ticketVariants", query, &variants); err != nil {
		return nil, err
	}
	return variants, nil
}
