package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

type MockPlacer struct {
	mock.Mock
}

func (m *MockPlacer) PlaceOrder(ctx context.Context, req *models.PaidOrderRequest) (*models.OrderPlacement, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*models.OrderPlacement); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlacer) PlaceFreeOrder(ctx context.Context, req *models.FreeOrderRequest) (*models.OrderPlacement, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*models.OrderPlacement); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func aquarium(adults int) Item {
	return Item{
		ID:            "aquarium-2026-10-20",
		TicketGroupID: 3,
		Name:          "Aquarium",
		Date:          "2026-10-20",
		Tickets: []Ticket{
			{ID: 9, Category: "Adult", Quantity: adults, Price: dec("25.10")},
			{ID: 10, Category: "Child", Quantity: 0, Price: dec("12.00")},
		},
	}
}

func freePark() Item {
	return Item{
		ID:            "park-2026-10-21",
		TicketGroupID: 4,
		Name:          "City Park",
		Date:          "2026-10-21",
		Tickets:       []Ticket{{ID: 20, Category: "Entry", Quantity: 2, Price: decimal.Zero}},
	}
}

var guest = models.Guest{FirstName: "Noi", LastName: "Sy", Email: "noi@example.com", PhoneNumber: "+60123456789"}

func TestActiveSteps(t *testing.T) {
	tests := []struct {
		isMember bool
		free     bool
		want     []Step
	}{
		{false, false, []Step{StepItems, StepGuestInfo, StepPayment, StepReview}},
		{false, true, []Step{StepItems, StepGuestInfo, StepReview}},
		{true, false, []Step{StepItems, StepPayment, StepReview}},
		{true, true, []Step{StepItems, StepReview}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("member=%v free=%v", tt.isMember, tt.free), func(t *testing.T) {
			got := ActiveSteps(tt.isMember, tt.free)
			assert.Equal(t, tt.want, got)

			assert.Equal(t, !tt.isMember, contains(got, StepGuestInfo))
			assert.Equal(t, !tt.free, contains(got, StepPayment))
		})
	}
}

func contains(steps []Step, s Step) bool {
	for _, step := range steps {
		if step == s {
			return true
		}
	}
	return false
}

// Walking Next from items visits exactly the active steps and walking Prev
// from review visits them backwards, for every input combination.
func TestTransitions_FollowActiveSteps(t *testing.T) {
	for _, isMember := range []bool{false, true} {
		for _, free := range []bool{false, true} {
			want := ActiveSteps(isMember, free)

			var forward []Step
			for step := StepItems; step != ""; {
				forward = append(forward, step)
				tr, ok := Lookup(step, isMember, free)
				require.True(t, ok)
				step = tr.Next
			}
			assert.Equal(t, want, forward, "member=%v free=%v", isMember, free)

			var backward []Step
			for step := StepReview; step != ""; {
				backward = append([]Step{step}, backward...)
				tr, _ := Lookup(step, isMember, free)
				step = tr.Prev
			}
			assert.Equal(t, want, backward, "member=%v free=%v", isMember, free)
		}
	}
}

func TestTransitions_InactiveStepMovesToNeighbours(t *testing.T) {
	tr, ok := Lookup(StepPayment, true, true)
	require.True(t, ok)
	assert.Equal(t, StepReview, tr.Next)
	assert.Equal(t, StepItems, tr.Prev)

	tr, _ = Lookup(StepGuestInfo, true, false)
	assert.Equal(t, StepPayment, tr.Next)
	assert.Equal(t, StepItems, tr.Prev)

	_, ok = Lookup(Step("done"), false, false)
	assert.False(t, ok)
}

func TestCart_TotalsUseSelectedItemsOnly(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.AddItem(aquarium(3)))
	require.NoError(t, cart.AddItem(Item{
		ID: "zoo", TicketGroupID: 5, Date: "2026-10-20",
		Tickets: []Ticket{{ID: 30, Quantity: 1, Price: dec("40.00")}},
	}))

	assert.Equal(t, "115.30", cart.Subtotal().StringFixed(2))

	require.NoError(t, cart.Select("zoo", false))
	assert.Equal(t, "75.30", cart.Subtotal().StringFixed(2))
	assert.Equal(t, 1, cart.Items[1].Tickets[0].Quantity, "deselecting keeps quantities")

	require.NoError(t, cart.Select("zoo", true))
	assert.Equal(t, "115.30", cart.Subtotal().StringFixed(2))

	cart.SelectAll(false)
	assert.True(t, cart.Subtotal().IsZero())
	assert.Len(t, cart.Items, 2)
}

func TestCart_TotalNeverNegative(t *testing.T) {
	discounts := []string{"0", "10", "75.30", "75.31", "1000"}

	for _, d := range discounts {
		var cart Cart
		require.NoError(t, cart.AddItem(aquarium(3)))
		require.NoError(t, cart.SetDiscount(dec(d)))

		total := cart.Total()
		assert.False(t, total.IsNegative(), "discount %s", d)
		want := decimal.Max(decimal.Zero, dec("75.30").Sub(dec(d)))
		assert.True(t, total.Equal(want), "discount %s: got %s", d, total)
	}

	var cart Cart
	assert.ErrorIs(t, cart.SetDiscount(dec("-1")), status.ErrInvalidDiscount)
}

func TestCart_AddItemMergesQuantities(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.AddItem(aquarium(1)))

	again := aquarium(2)
	again.Tickets = append(again.Tickets, Ticket{ID: 11, Category: "Senior", Quantity: 1, Price: dec("10.00")})
	require.NoError(t, cart.AddItem(again))

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Tickets[0].Quantity)
	assert.Len(t, cart.Items[0].Tickets, 3)
	assert.Equal(t, "85.30", cart.Subtotal().StringFixed(2))
}

func TestCart_QuantityRules(t *testing.T) {
	var cart Cart

	bad := aquarium(1)
	bad.Tickets[0].Quantity = -1
	assert.ErrorIs(t, cart.AddItem(bad), status.ErrInvalidQuantity)
	assert.Empty(t, cart.Items)

	require.NoError(t, cart.AddItem(aquarium(2)))
	assert.ErrorIs(t, cart.SetQuantity("aquarium-2026-10-20", 9, -2), status.ErrInvalidQuantity)
	assert.ErrorIs(t, cart.SetQuantity("nope", 9, 1), status.ErrItemNotFound)
	assert.ErrorIs(t, cart.SetQuantity("aquarium-2026-10-20", 99, 1), status.ErrItemNotFound)

	// All-zero items stay in the cart and contribute nothing.
	require.NoError(t, cart.SetQuantity("aquarium-2026-10-20", 9, 0))
	assert.Len(t, cart.Items, 1)
	assert.True(t, cart.Subtotal().IsZero())
	assert.False(t, cart.HasSelectedTickets())
}

func TestCart_RejectsNegativePrice(t *testing.T) {
	var cart Cart

	bad := aquarium(2)
	bad.Tickets[0].Price = dec("-25.10")
	assert.ErrorIs(t, cart.AddItem(bad), status.ErrInvalidPrice)
	assert.Empty(t, cart.Items)

	// Merging into an existing item is checked the same way.
	require.NoError(t, cart.AddItem(aquarium(1)))
	assert.ErrorIs(t, cart.AddItem(bad), status.ErrInvalidPrice)
	assert.Equal(t, "25.10", cart.Subtotal().StringFixed(2))
}

func TestCart_RemoveItemDropsSelection(t *testing.T) {
	var cart Cart
	require.NoError(t, cart.AddItem(aquarium(1)))

	require.NoError(t, cart.RemoveItem("aquarium-2026-10-20"))
	assert.Empty(t, cart.Items)
	assert.Empty(t, cart.Selected)
	assert.ErrorIs(t, cart.RemoveItem("aquarium-2026-10-20"), status.ErrItemNotFound)
	assert.ErrorIs(t, cart.Select("aquarium-2026-10-20", true), status.ErrItemNotFound)
}

func TestCheckout_Guards(t *testing.T) {
	c := New()

	assert.ErrorIs(t, c.Continue(false), status.ErrNoTicketsSelected)
	assert.Equal(t, StepItems, c.Step)

	require.NoError(t, c.Cart.AddItem(aquarium(2)))
	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepGuestInfo, c.Step)

	c.Guest = models.Guest{FirstName: "Noi", LastName: " ", Email: "noi@example.com", PhoneNumber: "1"}
	assert.ErrorIs(t, c.Continue(false), status.ErrGuestInfoIncomplete)
	c.Guest = guest
	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepPayment, c.Step)

	assert.ErrorIs(t, c.Continue(false), status.ErrPaymentRequired)
	c.Payment = Payment{Method: "fpx"}
	assert.ErrorIs(t, c.Continue(false), status.ErrBankRequired)
	c.Payment.Bank = "MBB0228"
	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepReview, c.Step)

	// Continue on review does not place anything.
	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepReview, c.Step)

	c.Back(false)
	assert.Equal(t, StepPayment, c.Step)
	c.Back(false)
	c.Back(false)
	assert.Equal(t, StepItems, c.Step)
	c.Back(false)
	assert.Equal(t, StepItems, c.Step)
}

func TestCheckout_CardNeedsNoBank(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(aquarium(1)))
	c.Step = StepPayment
	c.Payment = Payment{Method: "card"}

	require.NoError(t, c.Continue(true))
	assert.Equal(t, StepReview, c.Step)
}

func TestCheckout_FreeGuestSkipsPayment(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(freePark()))
	c.Guest = guest

	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepGuestInfo, c.Step)
	require.NoError(t, c.Continue(false))
	assert.Equal(t, StepReview, c.Step)
	assert.NotContains(t, c.ActiveSteps(false), StepPayment)

	placer := new(MockPlacer)
	placer.On("PlaceFreeOrder", mock.Anything, mock.MatchedBy(func(req *models.FreeOrderRequest) bool {
		return req.Guest != nil && req.Guest.Email == guest.Email &&
			len(req.Lines) == 1 && req.Lines[0].Tickets[0].Quantity == 2
	})).Return(&models.OrderPlacement{OrderID: 77, OrderNo: "ORD-77"}, nil)

	c.TermsAccepted = true
	done, err := c.Complete(context.Background(), false, placer)
	require.NoError(t, err)

	assert.Equal(t, ModeFree, done.Mode)
	assert.Equal(t, int64(77), done.Placement.OrderID)
	assert.Equal(t, StepItems, c.Step)
	assert.Empty(t, c.Cart.Items)
	placer.AssertExpectations(t)
	placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestCheckout_FreeMemberReachesReviewFromItems(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(freePark()))

	require.NoError(t, c.Continue(true))
	assert.Equal(t, StepReview, c.Step)

	placer := new(MockPlacer)
	placer.On("PlaceFreeOrder", mock.Anything, mock.MatchedBy(func(req *models.FreeOrderRequest) bool {
		return req.Guest == nil
	})).Return(&models.OrderPlacement{OrderID: 78}, nil)

	c.TermsAccepted = true
	_, err := c.Complete(context.Background(), true, placer)
	require.NoError(t, err)
	placer.AssertExpectations(t)
}

func TestCheckout_PaidOrderCarriesPaymentChoice(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(aquarium(3)))
	require.NoError(t, c.Cart.AddItem(freePark()))
	require.NoError(t, c.Cart.Select("park-2026-10-21", false))
	require.NoError(t, c.Cart.SetDiscount(dec("5.30")))
	c.Step = StepReview
	c.TermsAccepted = true
	c.Payment = Payment{Method: "fpx", Bank: "MBB0228", Mode: "redirect"}

	placer := new(MockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req *models.PaidOrderRequest) bool {
		return req.PaymentMethod == "fpx" && req.BankCode == "MBB0228" && req.PaymentMode == "redirect" &&
			req.Amount.Equal(dec("70.00")) && len(req.Lines) == 1 && req.Guest == nil
	})).Return(&models.OrderPlacement{OrderID: 80, PaymentURL: "https://pay.example.com/s/80"}, nil)

	done, err := c.Complete(context.Background(), true, placer)
	require.NoError(t, err)

	assert.Equal(t, ModePaid, done.Mode)
	assert.True(t, done.Amount.Equal(dec("70.00")))
	require.Len(t, c.Cart.Items, 1, "unselected items stay")
	assert.Equal(t, "park-2026-10-21", c.Cart.Items[0].ID)
	assert.True(t, c.Cart.Discount.IsZero())
	placer.AssertExpectations(t)
}

func TestCheckout_CompleteFailureStaysOnReview(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(aquarium(1)))
	c.Step = StepReview
	c.TermsAccepted = true
	c.Payment = Payment{Method: "card"}

	placer := new(MockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil, errors.New("respCode 5001: sold out")).Once()

	_, err := c.Complete(context.Background(), true, placer)

	assert.ErrorContains(t, err, "sold out")
	assert.Equal(t, StepReview, c.Step)
	assert.Contains(t, c.LastError, "sold out")
	assert.Len(t, c.Cart.Items, 1)
	placer.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestCheckout_CompleteGuards(t *testing.T) {
	placer := new(MockPlacer)

	c := New()
	require.NoError(t, c.Cart.AddItem(aquarium(1)))
	_, err := c.Complete(context.Background(), true, placer)
	assert.ErrorIs(t, err, status.ErrNotOnReview)

	c.Step = StepReview
	_, err = c.Complete(context.Background(), true, placer)
	assert.ErrorIs(t, err, status.ErrTermsNotAccepted)

	c.TermsAccepted = true
	require.NoError(t, c.Cart.Select("aquarium-2026-10-20", false))
	_, err = c.Complete(context.Background(), true, placer)
	assert.ErrorIs(t, err, status.ErrNoTicketsSelected)

	placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	placer.AssertNotCalled(t, "PlaceFreeOrder", mock.Anything, mock.Anything)
}

func TestCheckout_CompleteRechecksEarlierSteps(t *testing.T) {
	t.Run("paid item added after reaching review", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Cart.AddItem(freePark()))
		require.NoError(t, c.Continue(true))
		require.Equal(t, StepReview, c.Step)

		require.NoError(t, c.Cart.AddItem(aquarium(1)))
		c.TermsAccepted = true
		placer := new(MockPlacer)

		_, err := c.Complete(context.Background(), true, placer)

		assert.ErrorIs(t, err, status.ErrPaymentRequired)
		assert.Equal(t, StepPayment, c.Step)
		assert.NotEmpty(t, c.LastError)
		placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
		placer.AssertNotCalled(t, "PlaceFreeOrder", mock.Anything, mock.Anything)
	})

	t.Run("guest details cleared on review", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Cart.AddItem(freePark()))
		c.Guest = guest
		require.NoError(t, c.Continue(false))
		require.NoError(t, c.Continue(false))
		require.Equal(t, StepReview, c.Step)

		c.Guest.Email = ""
		c.TermsAccepted = true
		placer := new(MockPlacer)

		_, err := c.Complete(context.Background(), false, placer)

		assert.ErrorIs(t, err, status.ErrGuestInfoIncomplete)
		assert.Equal(t, StepGuestInfo, c.Step)
		placer.AssertNotCalled(t, "PlaceFreeOrder", mock.Anything, mock.Anything)
	})

	t.Run("online banking without a bank", func(t *testing.T) {
		c := New()
		require.NoError(t, c.Cart.AddItem(aquarium(1)))
		c.Step = StepReview
		c.TermsAccepted = true
		c.Payment = Payment{Method: "fpx"}
		placer := new(MockPlacer)

		_, err := c.Complete(context.Background(), true, placer)

		assert.ErrorIs(t, err, status.ErrBankRequired)
		assert.Equal(t, StepPayment, c.Step)
		placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})
}

func TestCheckout_View(t *testing.T) {
	c := New()
	require.NoError(t, c.Cart.AddItem(aquarium(3)))
	require.NoError(t, c.Cart.SetDiscount(dec("0.3")))

	v := c.View(false)

	assert.Equal(t, "75.30", v.Subtotal)
	assert.Equal(t, "0.30", v.Discount)
	assert.Equal(t, "75.00", v.Total)
	assert.Equal(t, StepGuestInfo, v.Next)
	assert.Empty(t, v.Prev)
	assert.False(t, v.Free)
	assert.Len(t, v.Steps, 4)
}

func TestService_CompleteRedirects(t *testing.T) {
	tests := []struct {
		name       string
		gateway    string
		paymentURL string
		want       string
	}{
		{"absolute gateway url", "https://gw.example.com", "https://pay.example.com/s/1", "https://pay.example.com/s/1"},
		{"relative gateway path", "https://gw.example.com/", "/session/1", "https://gw.example.com/session/1"},
		{"no gateway url", "https://gw.example.com", "", "/orders/1/confirmation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(NewMemoryStore(), tt.gateway, nil)

			_, err := svc.Update(ctx, "v1", func(c *Checkout) error {
				c.Step = StepReview
				c.TermsAccepted = true
				c.Payment = Payment{Method: "card"}
				return c.Cart.AddItem(aquarium(1))
			})
			require.NoError(t, err)

			placer := new(MockPlacer)
			placer.On("PlaceOrder", mock.Anything, mock.Anything).
				Return(&models.OrderPlacement{OrderID: 1, PaymentURL: tt.paymentURL}, nil)

			done, c, err := svc.Complete(ctx, "v1", true, placer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, done.Redirect)
			assert.Equal(t, StepItems, c.Step)

			saved, err := svc.Get(ctx, "v1")
			require.NoError(t, err)
			assert.Empty(t, saved.Cart.Items)
		})
	}
}

func TestService_FailedCompletionIsSaved(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), "", nil)

	_, err := svc.Update(ctx, "v1", func(c *Checkout) error {
		c.Step = StepReview
		c.TermsAccepted = true
		c.Payment = Payment{Method: "card"}
		return c.Cart.AddItem(aquarium(1))
	})
	require.NoError(t, err)

	placer := new(MockPlacer)
	placer.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down"))

	_, _, err = svc.Complete(ctx, "v1", true, placer)
	require.Error(t, err)

	saved, err := svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StepReview, saved.Step)
	assert.Contains(t, saved.LastError, "gateway down")
}

func TestService_CompleteSavesStepSentBack(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), "", nil)

	_, err := svc.Update(ctx, "v1", func(c *Checkout) error {
		c.Step = StepReview
		c.TermsAccepted = true
		return c.Cart.AddItem(aquarium(1))
	})
	require.NoError(t, err)

	placer := new(MockPlacer)
	_, c, err := svc.Complete(ctx, "v1", true, placer)
	assert.ErrorIs(t, err, status.ErrPaymentRequired)
	assert.Equal(t, StepPayment, c.Step)

	saved, err := svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StepPayment, saved.Step)
	placer.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestVisitorLocks(t *testing.T) {
	var locks visitorLocks

	unlockA := locks.lock("a")

	acquired := make(chan struct{})
	go func() {
		locks.lock("b")()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("visitor b waited on visitor a")
	}

	second := make(chan struct{})
	go func() {
		locks.lock("a")()
		close(second)
	}()
	select {
	case <-second:
		t.Fatal("visitor a locked twice")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-second
	assert.Zero(t, locks.len())
}

func TestService_UpdateErrorDoesNotSave(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), "", nil)

	_, err := svc.Update(ctx, "v1", func(c *Checkout) error {
		require.NoError(t, c.Cart.AddItem(aquarium(1)))
		return status.ErrInvalidQuantity
	})
	assert.ErrorIs(t, err, status.ErrInvalidQuantity)

	saved, err := svc.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, saved.Cart.Items)
}

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()
	store := NewRedisStore(db, time.Hour)

	mock.ExpectGet("checkout:v1").RedisNil()
	c, err := store.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StepItems, c.Step)

	mock.ExpectGet("checkout:v2").SetVal(`{"step":"review","cart":{"items":[],"discount":"2.50"},"termsAccepted":true}`)
	c, err = store.Load(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, StepReview, c.Step)
	assert.True(t, c.TermsAccepted)
	assert.NotNil(t, c.Cart.Selected)
	assert.Equal(t, "2.50", c.Cart.Discount.StringFixed(2))

	mock.ExpectGet("checkout:v3").SetVal(`{"step":"shipping"}`)
	c, err = store.Load(ctx, "v3")
	require.NoError(t, err)
	assert.Equal(t, StepItems, c.Step)

	mock.ExpectGet("checkout:v4").SetErr(errors.New("connection refused"))
	_, err = store.Load(ctx, "v4")
	assert.ErrorContains(t, err, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
