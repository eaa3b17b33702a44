package main

import (
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories/memory"
)

// seedDemoData gives the in-memory store enough catalog to try the API
func seedDemoData(store *memory.Store) {
	store.SeedUser(models.User{Email: "buyer@example.com", LoyaltyPoints: 500})
	store.SeedUser(models.User{Email: "operator@example.com"})

	store.SeedCatalogItem(models.CatalogItem{
		Ref:                 models.ItemRef{Type: models.ItemTicket},
		Name:                "General Admission",
		UnitPrice:           2500,
		QuantityAvailable:   200,
		LimitPerUser:        6,
		PointsEarnedPerUnit: 25,
	})
	store.SeedCatalogItem(models.CatalogItem{
		Ref:                 models.ItemRef{Type: models.ItemTicket},
		Name:                "VIP",
		UnitPrice:           12000,
		QuantityAvailable:   20,
		LimitPerUser:        2,
		PointsEarnedPerUnit: 120,
	})
	shirt := store.SeedCatalogItem(models.CatalogItem{
		Ref:                 models.ItemRef{Type: models.ItemProduct},
		Name:                "Tour T-Shirt",
		UnitPrice:           1800,
		QuantityAvailable:   50,
		PointsEarnedPerUnit: 10,
	})

	store.SeedReward(models.Reward{
		Name:           "Free T-Shirt",
		PointsRequired: 300,
		ProductID:      &shirt.Ref.ID,
		Status:         models.RewardActive,
	})
	store.SeedReward(models.Reward{
		Name:           "Backstage Tour",
		PointsRequired: 1000,
		Status:         models.RewardActive,
	})
}
