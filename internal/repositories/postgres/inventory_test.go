package postgres

import (
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

func (s *PostgresSuite) TestInventory_ReserveAndRelease() {
	ticket := s.seedItem(models.ItemTicket, 100, 5, 0)
	repo := NewInventoryRepository(s.db)

	item, err := repo.Reserve(s.ctx, ticket, 3)
	s.Require().NoError(err)
	s.Equal(2, item.QuantityAvailable)
	s.Equal(3, item.QuantitySold)
	s.Equal(5, item.OriginalTotal())

	_, err = repo.Reserve(s.ctx, ticket, 3)
	s.Require().ErrorIs(err, models.ErrInsufficientStock)
	var shortfall *models.InsufficientStockError
	s.Require().ErrorAs(err, &shortfall)
	s.Equal(3, shortfall.Requested)
	s.Equal(2, shortfall.Available)

	// the failed reservation changed nothing
	s.Equal(2, s.stock(ticket).QuantityAvailable)

	item, err = repo.Release(s.ctx, ticket, 10)
	s.Require().NoError(err)
	s.Equal(5, item.QuantityAvailable)
	s.Equal(0, item.QuantitySold)
}

func (s *PostgresSuite) TestInventory_MissingAndDeleted() {
	product := s.seedItem(models.ItemProduct, 50, 5, 0)
	repo := NewInventoryRepository(s.db)

	_, err := repo.Get(s.ctx, models.ProductRef(product.ID+100))
	s.ErrorIs(err, models.ErrItemNotFound)

	_, err = s.db.ExecContext(s.ctx, `UPDATE products SET is_deleted = TRUE WHERE id = $1`, product.ID)
	s.Require().NoError(err)

	_, err = repo.Get(s.ctx, product)
	s.ErrorIs(err, models.ErrItemNotFound)

	_, err = repo.Reserve(s.ctx, product, 1)
	s.ErrorIs(err, models.ErrItemNotFound)

	_, err = repo.Reserve(s.ctx, product, 0)
	s.ErrorIs(err, models.ErrInvalidQuantity)
}
