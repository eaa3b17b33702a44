package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

type inventoryRepo struct{ *txRepos }

func (r *inventoryRepo) Get(_ context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	item, ok := r.st.catalog(ref.Type)[ref.ID]
	if !ok || item.Deleted {
		return nil, models.ErrItemNotFound
	}
	return &item, nil
}

func (r *inventoryRepo) Reserve(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	item, err := r.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	if item.QuantityAvailable < quantity {
		return nil, &models.InsufficientStockError{Item: ref, Requested: quantity, Available: item.QuantityAvailable}
	}

	item.QuantityAvailable -= quantity
	item.QuantitySold += quantity
	r.st.catalog(ref.Type)[ref.ID] = *item

	return item, nil
}

func (r *inventoryRepo) Release(_ context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	item, ok := r.st.catalog(ref.Type)[ref.ID]
	if !ok {
		return nil, models.ErrItemNotFound
	}

	released := min(quantity, item.QuantitySold)
	item.QuantityAvailable += released
	item.QuantitySold -= released
	r.st.catalog(ref.Type)[ref.ID] = item

	return &item, nil
}

type cartRepo struct{ *txRepos }

func (r *cartRepo) GetOrCreate(_ context.Context, userID int64) (*models.Cart, error) {
	if id, ok := r.st.cartByUser[userID]; ok {
		cart := r.st.carts[id]
		return &cart, nil
	}

	if _, ok := r.st.users[userID]; !ok {
		return nil, models.ErrUserNotFound
	}

	cart := models.Cart{ID: r.st.nextID("carts"), UserID: userID, CreatedAt: r.now()}
	r.st.carts[cart.ID] = cart
	r.st.cartByUser[userID] = cart.ID

	return &cart, nil
}

func (r *cartRepo) activeItems(match func(models.CartItem) bool) []models.CartItem {
	var items []models.CartItem
	for _, item := range r.st.items {
		if !item.Deleted && match(item) {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b models.CartItem) int { return int(a.ID - b.ID) })
	return items
}

func (r *cartRepo) ActiveItems(_ context.Context, cartID int64) ([]models.CartItem, error) {
	return r.activeItems(func(item models.CartItem) bool {
		return item.CartID != nil && *item.CartID == cartID
	}), nil
}

func (r *cartRepo) FindActiveItem(_ context.Context, cartID int64, ref models.ItemRef) (*models.CartItem, error) {
	items := r.activeItems(func(item models.CartItem) bool {
		return item.CartID != nil && *item.CartID == cartID && item.Item == ref
	})
	if len(items) == 0 {
		return nil, models.ErrCartItemNotFound
	}
	return &items[0], nil
}

func (r *cartRepo) GetActiveItem(_ context.Context, cartID, itemID int64) (*models.CartItem, error) {
	item, ok := r.st.items[itemID]
	if !ok || item.Deleted || item.CartID == nil || *item.CartID != cartID {
		return nil, models.ErrCartItemNotFound
	}
	return &item, nil
}

func (r *cartRepo) AddItem(_ context.Context, item *models.CartItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := r.now()
	item.ID = r.st.nextID("cart_items")
	item.CreatedAt = now
	item.UpdatedAt = now
	r.st.items[item.ID] = *item

	return nil
}

func (r *cartRepo) liveCartItem(itemID int64) (models.CartItem, error) {
	item, ok := r.st.items[itemID]
	if !ok || item.Deleted || item.CartID == nil {
		return models.CartItem{}, models.ErrCartItemNotFound
	}
	return item, nil
}

func (r *cartRepo) UpdateQuantity(_ context.Context, itemID int64, quantity int) error {
	if err := models.ValidateQuantity(quantity); err != nil {
		return err
	}

	item, err := r.liveCartItem(itemID)
	if err != nil {
		return err
	}

	item.Quantity = quantity
	item.UpdatedAt = r.now()
	r.st.items[itemID] = item

	return nil
}

func (r *cartRepo) SoftDelete(_ context.Context, itemID int64) error {
	item, err := r.liveCartItem(itemID)
	if err != nil {
		return err
	}

	item.Deleted = true
	item.UpdatedAt = r.now()
	r.st.items[itemID] = item

	return nil
}

func (r *cartRepo) Clear(ctx context.Context, cartID int64) (int, error) {
	items, _ := r.ActiveItems(ctx, cartID)
	now := r.now()
	for _, item := range items {
		item.Deleted = true
		item.UpdatedAt = now
		r.st.items[item.ID] = item
	}
	return len(items), nil
}

func (r *cartRepo) MoveToOrder(_ context.Context, cartID int64, lines []models.CartItem, orderID int64) error {
	now := r.now()
	for _, line := range lines {
		item, ok := r.st.items[line.ID]
		if !ok || item.Deleted || item.CartID == nil || *item.CartID != cartID {
			return fmt.Errorf("%w: cart item %d is no longer in cart %d", models.ErrConcurrentModification, line.ID, cartID)
		}

		oid := orderID
		item.CartID = nil
		item.OrderID = &oid
		item.PointsPerUnit = line.PointsPerUnit
		item.UpdatedAt = now
		r.st.items[line.ID] = item
	}
	return nil
}

type orderRepo struct{ *txRepos }

func (r *orderRepo) Create(_ context.Context, order *models.Order) error {
	now := r.now()
	if order.OrderNumber == "" {
		order.OrderNumber = models.GenerateOrderNumber(now)
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	if err := order.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, ok := r.st.users[order.UserID]; !ok {
		return models.ErrUserNotFound
	}

	order.ID = r.st.nextID("orders")
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := *order
	stored.Items = nil
	r.st.orders[order.ID] = stored

	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := r.st.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}

	for _, item := range r.st.items {
		if item.OrderID != nil && *item.OrderID == id && !item.Deleted {
			order.Items = append(order.Items, item)
		}
	}
	slices.SortFunc(order.Items, func(a, b models.CartItem) int { return int(a.ID - b.ID) })

	return &order, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id int64, from, to models.OrderStatus) error {
	if err := models.ValidateOrderStatus(to); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	order, ok := r.st.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	if order.Status != from {
		return fmt.Errorf("%w: order %d is not %s", models.ErrInvalidTransition, id, from)
	}

	order.Status = to
	order.UpdatedAt = r.now()
	r.st.orders[id] = order

	return nil
}

type paymentRepo struct{ *txRepos }

func (r *paymentRepo) Create(_ context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}
	if err := payment.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	for _, p := range r.st.payments {
		if p.OrderID == payment.OrderID {
			return fmt.Errorf("%w: order %d already has a payment", models.ErrDuplicateEntry, payment.OrderID)
		}
	}

	now := r.now()
	payment.ID = r.st.nextID("payments")
	payment.CreatedAt = now
	payment.UpdatedAt = now
	r.st.payments[payment.ID] = *payment

	return nil
}

func (r *paymentRepo) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *paymentRepo) GetByOrder(_ context.Context, orderID int64) (*models.Payment, error) {
	for _, p := range r.st.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, models.ErrPaymentNotFound
}

func (r *paymentRepo) GetByGatewayReference(_ context.Context, reference string) (*models.Payment, error) {
	for _, p := range r.st.payments {
		if reference != "" && p.GatewayReference == reference {
			return &p, nil
		}
	}
	return nil, models.ErrPaymentNotFound
}

// GetForUpdate needs no row lock: the store lock is already exclusive.
func (r *paymentRepo) GetForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) Update(_ context.Context, payment *models.Payment) error {
	if err := payment.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, ok := r.st.payments[payment.ID]; !ok {
		return models.ErrPaymentNotFound
	}
	if payment.GatewayReference != "" {
		for _, p := range r.st.payments {
			if p.ID != payment.ID && p.GatewayReference == payment.GatewayReference {
				return fmt.Errorf("%w: %s", models.ErrReferenceInUse, models.MaskReference(payment.GatewayReference))
			}
		}
	}

	payment.UpdatedAt = r.now()
	r.st.payments[payment.ID] = *payment

	return nil
}

type loyaltyRepo struct{ *txRepos }

func (r *loyaltyRepo) GetUser(_ context.Context, userID int64) (*models.User, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (r *loyaltyRepo) Credit(ctx context.Context, userID, points int64) (int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, err
	}

	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	u.LoyaltyPoints += points
	r.st.users[userID] = *u

	return u.LoyaltyPoints, nil
}

func (r *loyaltyRepo) DebitClamped(ctx context.Context, userID, points int64) (int64, int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, 0, err
	}

	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	debited := min(points, u.LoyaltyPoints)
	u.LoyaltyPoints -= debited
	r.st.users[userID] = *u

	return debited, u.LoyaltyPoints, nil
}

func (r *loyaltyRepo) DebitExact(ctx context.Context, userID, points int64) (int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, err
	}

	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if u.LoyaltyPoints < points {
		return 0, models.ErrInsufficientPoints
	}

	u.LoyaltyPoints -= points
	r.st.users[userID] = *u

	return u.LoyaltyPoints, nil
}

func (r *loyaltyRepo) AppendEntry(_ context.Context, entry *models.LoyaltyEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if entry.IdempotencyKey != nil {
		if _, ok := r.st.entryKeys[*entry.IdempotencyKey]; ok {
			return fmt.Errorf("%w: loyalty entry %s", models.ErrDuplicateEntry, *entry.IdempotencyKey)
		}
		r.st.entryKeys[*entry.IdempotencyKey] = struct{}{}
	}

	entry.ID = r.st.nextID("loyalty_entries")
	entry.CreatedAt = r.now()
	r.st.entries = append(r.st.entries, *entry)

	return nil
}

func (r *loyaltyRepo) FindEntry(_ context.Context, idempotencyKey string) (*models.LoyaltyEntry, error) {
	if _, ok := r.st.entryKeys[idempotencyKey]; !ok {
		return nil, nil
	}
	for _, e := range r.st.entries {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == idempotencyKey {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *loyaltyRepo) Entries(_ context.Context, userID int64, limit int) ([]models.LoyaltyEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []models.LoyaltyEntry
	for i := len(r.st.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.st.entries[i].UserID == userID {
			entries = append(entries, r.st.entries[i])
		}
	}
	return entries, nil
}

type rewardRepo struct{ *txRepos }

func (r *rewardRepo) GetReward(_ context.Context, id int64) (*models.Reward, error) {
	reward, ok := r.st.rewards[id]
	if !ok {
		return nil, models.ErrRewardNotFound
	}
	return &reward, nil
}

func (r *rewardRepo) CreateRedemption(_ context.Context, redemption *models.Redemption) error {
	if redemption.Status == "" {
		redemption.Status = models.RedemptionPending
	}
	if _, ok := r.st.users[redemption.UserID]; !ok {
		return fmt.Errorf("%w: redemption references a missing user or reward", models.ErrInvalidInput)
	}
	if _, ok := r.st.rewards[redemption.RewardID]; !ok {
		return fmt.Errorf("%w: redemption references a missing user or reward", models.ErrInvalidInput)
	}

	now := r.now()
	redemption.ID = r.st.nextID("redemptions")
	redemption.CreatedAt = now
	redemption.UpdatedAt = now
	r.st.redemptions[redemption.ID] = *redemption

	return nil
}

func (r *rewardRepo) GetRedemption(_ context.Context, id int64) (*models.Redemption, error) {
	red, ok := r.st.redemptions[id]
	if !ok {
		return nil, models.ErrRedemptionNotFound
	}
	return &red, nil
}

func (r *rewardRepo) UpdateRedemptionStatus(_ context.Context, id int64, from, to models.RedemptionStatus) error {
	red, ok := r.st.redemptions[id]
	if !ok {
		return models.ErrRedemptionNotFound
	}
	if red.Status != from {
		return fmt.Errorf("%w: redemption %d is not %s", models.ErrInvalidTransition, id, from)
	}

	red.Status = to
	red.UpdatedAt = r.now()
	r.st.redemptions[id] = red

	return nil
}

func (r *rewardRepo) ListRedemptions(_ context.Context, userID int64) ([]models.Redemption, error) {
	var out []models.Redemption
	for _, red := range r.st.redemptions {
		if red.UserID == userID {
			out = append(out, red)
		}
	}
	slices.SortFunc(out, func(a, b models.Redemption) int { return int(b.ID - a.ID) })
	return out, nil
}

type outboxRepo struct{ *txRepos }

func (r *outboxRepo) Append(_ context.Context, event *models.OutboxEvent) error {
	event.ID = r.st.nextID("outbox_events")
	event.CreatedAt = r.now()
	if event.Headers != nil {
		event.Headers = maps.Clone(event.Headers)
	}
	r.st.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepo) Claim(_ context.Context, limit, maxAttempts int, now, leaseUntil time.Time) ([]models.OutboxEvent, error) {
	ids := slices.Sorted(maps.Keys(r.st.outbox))

	var claimed []models.OutboxEvent
	for _, id := range ids {
		if len(claimed) >= limit {
			break
		}
		e := r.st.outbox[id]
		if e.PublishedAt != nil || e.Attempts >= maxAttempts {
			continue
		}
		if e.LockedUntil != nil && !e.LockedUntil.Before(now) {
			continue
		}
		lease := leaseUntil
		e.LockedUntil = &lease
		r.st.outbox[id] = e
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (r *outboxRepo) MarkPublished(_ context.Context, id int64, at time.Time) error {
	e, ok := r.st.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event %d not found", id)
	}
	published := at
	e.PublishedAt = &published
	e.LockedUntil = nil
	e.LastError = nil
	r.st.outbox[id] = e
	return nil
}

func (r *outboxRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	e, ok := r.st.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event %d not found", id)
	}
	msg := reason
	e.Attempts++
	e.LastError = &msg
	e.LockedUntil = nil
	r.st.outbox[id] = e
	return nil
}
