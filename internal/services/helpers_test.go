package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

var adminActor = Actor{ID: uuid.New(), Role: ActorAdmin}

func storeActor(id uuid.UUID) Actor {
	return Actor{ID: uuid.New(), Role: ActorStore, StoreID: &id}
}

func newTestDeps(t *testing.T) (Deps, *repositories.MemoryRepository) {
	t.Helper()
	repo := repositories.NewMemoryRepository()
	cfg := config.DefaultDispatchConfig()
	cfg.Location = time.UTC
	return NewDeps(repo, cfg), repo
}

func seedStore(t *testing.T, repo repositories.Repository, name string, areas ...string) models.Store {
	t.Helper()
	store := models.Store{
		BusinessName: name,
		ServiceAreas: areas,
		Status:       models.StoreStatusActive,
		IsOpen:       true,
	}
	require.NoError(t, repo.CreateStore(context.Background(), &store))
	return store
}

func seedOrder(t *testing.T, repo repositories.Repository, sender uuid.UUID, subtotal int64) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:     "B-" + uuid.NewString()[:8],
		SenderStoreID:   sender,
		ProductID:       "wreath-3",
		ProductType:     "축하화환",
		ProductName:     "3단 축하화환",
		ProductPrice:    subtotal,
		Quantity:        1,
		Subtotal:        subtotal,
		TotalAmount:     subtotal,
		DeliveryAddress: "서울 강남구 테헤란로 152 역삼동",
		Status:          models.StatusPending,
	}
	require.NoError(t, repo.CreateOrder(context.Background(), &order))
	return order
}

func seedCustomerOrder(t *testing.T, repo repositories.Repository, customerID uuid.UUID) models.CustomerOrder {
	t.Helper()
	order := models.CustomerOrder{
		OrderNumber:      "H-" + uuid.NewString()[:8],
		CustomerID:       &customerID,
		CustomerName:     "홍길동",
		CustomerPhone:    "010-1234-5678",
		RecipientName:    "김영희",
		RecipientPhone:   "010-8765-4321",
		ProductID:        "funeral-1",
		ProductCategory:  "근조화환",
		ProductName:      "근조 3단",
		CatalogPrice:     120000,
		FulfillmentPrice: 100000,
		Quantity:         1,
		RibbonText:       "삼가 고인의 명복을 빕니다/홍길동",
		PaidAmount:       120000,
		Address:          "서울특별시 종로구 대학로 101 연건동",
		Sido:             "서울특별시",
		Sigungu:          "종로구",
		DesiredDate:      "2026-10-14",
		DesiredTime:      "14:00",
		OrderSource:      "funeral",
		OrderStatus:      models.StatusPending,
	}
	require.NoError(t, repo.CreateCustomerOrder(context.Background(), &order))
	return order
}
