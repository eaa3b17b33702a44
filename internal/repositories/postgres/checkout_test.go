package postgres

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/services"
)

func (s *PostgresSuite) TestCheckout_ConcurrentBuyersNeverOversell() {
	const (
		buyers = 20
		stock  = 5
	)

	logger := zap.NewNop()
	carts := services.NewCartManager(s.store, logger)
	checkout := services.NewOrderAssembler(s.store, logger)
	ticket := s.seedItem(models.ItemTicket, 100, stock, 0)

	userIDs := make([]int64, buyers)
	for i := range userIDs {
		userIDs[i] = s.seedUser(fmt.Sprintf("buyer%d@example.com", i), 0)
		_, err := carts.AddItem(s.ctx, userIDs[i], ticket, 1)
		s.Require().NoError(err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortfall int
		other     []error
	)
	start := make(chan struct{})
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			_, err := checkout.Checkout(s.ctx, userID, services.CheckoutRequest{Method: "card"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientStock):
				shortfall++
			default:
				other = append(other, err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	s.Empty(other)
	s.Equal(stock, succeeded)
	s.Equal(buyers-stock, shortfall)

	item := s.stock(ticket)
	s.Equal(0, item.QuantityAvailable)
	s.Equal(stock, item.QuantitySold)

	var orders int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	s.Equal(stock, orders)
}

func (s *PostgresSuite) TestConfirm_AccruesPointsOnce() {
	logger := zap.NewNop()
	carts := services.NewCartManager(s.store, logger)
	checkout := services.NewOrderAssembler(s.store, logger)
	payments := services.NewPaymentReconciler(s.store, nil, logger)

	userID := s.seedUser("loyal@example.com", 10)
	ticket := s.seedItem(models.ItemTicket, 100, 10, 5)
	product := s.seedItem(models.ItemProduct, 50, 10, 2)

	_, err := carts.AddItem(s.ctx, userID, ticket, 2)
	s.Require().NoError(err)
	_, err = carts.AddItem(s.ctx, userID, product, 3)
	s.Require().NoError(err)

	result, err := checkout.Checkout(s.ctx, userID, services.CheckoutRequest{Method: "card"})
	s.Require().NoError(err)
	s.Equal(int64(350), result.TotalAmount)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = payments.Confirm(s.ctx, userID, result.PaymentID, services.ConfirmRequest{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	s.Equal(int64(26), s.balance(userID))

	var entries int
	s.Require().NoError(s.db.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM loyalty_entries WHERE user_id = $1`, userID).Scan(&entries))
	s.Equal(1, entries)
}

func (s *PostgresSuite) TestRedeem_NeverOverdraws() {
	logger := zap.NewNop()
	engine := services.NewRedemptionEngine(s.store, logger)

	userID := s.seedUser("redeemer@example.com", 500)
	rewardID := s.seedReward("Backstage tour", 300)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Redeem(s.ctx, userID, rewardID)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrInsufficientPoints):
			insufficient++
		}
	}
	s.Equal(1, ok)
	s.Equal(1, insufficient)
	s.Equal(int64(200), s.balance(userID))
}
