package postgres

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

func (s *PostgresSuite) TestWithTx_RollsBackOnError() {
	ticket := s.seedItem(models.ItemTicket, 100, 5, 0)
	boom := errors.New("boom")

	err := s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		if _, err := tx.Inventory().Reserve(s.ctx, ticket, 4); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	item := s.stock(ticket)
	s.Equal(5, item.QuantityAvailable)
	s.Equal(0, item.QuantitySold)
}

func (s *PostgresSuite) TestCart_MoveToOrder() {
	userID := s.seedUser("cart@example.com", 0)
	ticket := s.seedItem(models.ItemTicket, 100, 5, 0)

	var (
		cartID int64
		line   *models.CartItem
	)
	err := s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		cart, err := tx.Carts().GetOrCreate(s.ctx, userID)
		if err != nil {
			return err
		}
		again, err := tx.Carts().GetOrCreate(s.ctx, userID)
		if err != nil {
			return err
		}
		s.Equal(cart.ID, again.ID)
		cartID = cart.ID

		line = &models.CartItem{CartID: &cart.ID, Item: ticket, Quantity: 2, UnitPrice: 100}
		return tx.Carts().AddItem(s.ctx, line)
	})
	s.Require().NoError(err)

	var orderID int64
	err = s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		order := &models.Order{
			UserID:      userID,
			OrderNumber: models.GenerateOrderNumber(time.Now()),
			TotalAmount: 200,
		}
		if err := tx.Orders().Create(s.ctx, order); err != nil {
			return err
		}
		orderID = order.ID
		line.PointsPerUnit = 7
		return tx.Carts().MoveToOrder(s.ctx, cartID, []models.CartItem{*line}, order.ID)
	})
	s.Require().NoError(err)

	err = s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		active, err := tx.Carts().ActiveItems(s.ctx, cartID)
		s.Require().NoError(err)
		s.Empty(active)

		order, err := tx.Orders().GetByID(s.ctx, orderID)
		s.Require().NoError(err)
		s.Require().Len(order.Items, 1)
		s.True(order.Items[0].InOrder())
		s.Equal(7, order.Items[0].PointsPerUnit)
		s.Equal(int64(14), order.PointsEarned())

		// a second move finds nothing left in the cart
		return tx.Carts().MoveToOrder(s.ctx, cartID, []models.CartItem{*line}, orderID)
	})
	s.ErrorIs(err, models.ErrConcurrentModification)
}

func (s *PostgresSuite) TestLoyalty_Debits() {
	userID := s.seedUser("points@example.com", 20)
	repo := NewLoyaltyRepository(s.db)

	debited, balance, err := repo.DebitClamped(s.ctx, userID, 50)
	s.Require().NoError(err)
	s.Equal(int64(20), debited)
	s.Equal(int64(0), balance)

	_, err = repo.Credit(s.ctx, userID, 100)
	s.Require().NoError(err)

	_, err = repo.DebitExact(s.ctx, userID, 150)
	s.ErrorIs(err, models.ErrInsufficientPoints)
	s.Equal(int64(100), s.balance(userID))

	balance, err = repo.DebitExact(s.ctx, userID, 100)
	s.Require().NoError(err)
	s.Equal(int64(0), balance)
}

func (s *PostgresSuite) TestLoyalty_JournalKeyIsUnique() {
	userID := s.seedUser("journal@example.com", 0)
	repo := NewLoyaltyRepository(s.db)
	key := models.AccrualKey(42)

	first := &models.LoyaltyEntry{UserID: userID, Delta: 10, BalanceAfter: 10, Reason: models.ReasonAccrual, IdempotencyKey: &key}
	s.Require().NoError(repo.AppendEntry(s.ctx, first))

	dup := &models.LoyaltyEntry{UserID: userID, Delta: 10, BalanceAfter: 20, Reason: models.ReasonAccrual, IdempotencyKey: &key}
	s.ErrorIs(repo.AppendEntry(s.ctx, dup), models.ErrDuplicateEntry)

	found, err := repo.FindEntry(s.ctx, key)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(first.ID, found.ID)

	missing, err := repo.FindEntry(s.ctx, models.RefundKey(42))
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *PostgresSuite) TestOutbox_ClaimLeaseAndPublish() {
	repo := NewOutboxRepository(s.db)
	for i := 0; i < 3; i++ {
		s.Require().NoError(repo.Append(s.ctx, &models.OutboxEvent{
			AggregateType: models.AggregateOrder,
			AggregateID:   "1",
			EventType:     models.EventOrderCreated,
			Payload:       json.RawMessage(`{"order_id":1}`),
			Headers:       map[string]string{"request_id": "abc"},
		}))
	}

	now := time.Now()
	claimed, err := repo.Claim(s.ctx, 2, 10, now, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(claimed, 2)
	s.Equal("abc", claimed[0].Headers["request_id"])

	// leased rows are skipped by the next claim
	next, err := repo.Claim(s.ctx, 10, 10, now, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(next, 1)
	s.Greater(next[0].ID, claimed[1].ID)

	s.Require().NoError(repo.MarkPublished(s.ctx, claimed[0].ID, now))
	s.Require().NoError(repo.MarkFailed(s.ctx, claimed[1].ID, "broker down"))

	// after the lease expires only the failed and unpublished events come back
	later := now.Add(2 * time.Minute)
	retried, err := repo.Claim(s.ctx, 10, 10, later, later.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().Len(retried, 2)
	s.Equal(1, retried[0].Attempts)
	s.Require().NotNil(retried[0].LastError)
	s.Equal("broker down", *retried[0].LastError)
}

func (s *PostgresSuite) TestPayment_GatewayReferenceIsUnique() {
	userID := s.seedUser("gateway@example.com", 0)

	newPayment := func(tx repositories.Tx) (*models.Payment, error) {
		order := &models.Order{
			UserID:      userID,
			OrderNumber: models.GenerateOrderNumber(time.Now()),
			TotalAmount: 100,
		}
		if err := tx.Orders().Create(s.ctx, order); err != nil {
			return nil, err
		}
		payment := &models.Payment{OrderID: order.ID, Method: "card"}
		return payment, tx.Payments().Create(s.ctx, payment)
	}

	var firstID int64
	err := s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		payment, err := newPayment(tx)
		if err != nil {
			return err
		}
		firstID = payment.ID
		payment.GatewayReference = "PSK-123"
		return tx.Payments().Update(s.ctx, payment)
	})
	s.Require().NoError(err)

	err = s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		bound, err := tx.Payments().GetByGatewayReference(s.ctx, "PSK-123")
		s.Require().NoError(err)
		s.Equal(firstID, bound.ID)

		_, err = tx.Payments().GetByGatewayReference(s.ctx, "PSK-999")
		s.ErrorIs(err, models.ErrPaymentNotFound)
		return nil
	})
	s.Require().NoError(err)

	err = s.store.WithTx(s.ctx, func(tx repositories.Tx) error {
		payment, err := newPayment(tx)
		if err != nil {
			return err
		}
		payment.GatewayReference = "PSK-123"
		return tx.Payments().Update(s.ctx, payment)
	})
	s.ErrorIs(err, models.ErrReferenceInUse)
}
