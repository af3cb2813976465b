package backend

import (
	"context"

	"ticket-storefront/models"
)

func (a *API) BankList(ctx context.Context, paymentMethod string) ([]models.Bank, error) {
	var banks []models.Bank
	if err := a.post(ctx, "/payment/bankList", models.BankListRequest{PaymentMethod: paymentMethod}, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}
