package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
)

type CartRepositorySuite struct {
	suite.Suite
	client *mongo.Client
	db     *mongo.Database
	repo   *CartRepository
	ctx    context.Context
}

func TestCartRepositorySuite(t *testing.T) {
	suite.Run(t, new(CartRepositorySuite))
}

func (s *CartRepositorySuite) SetupSuite() {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017/?serverSelectionTimeoutMS=2000"
	}
	s.ctx = context.Background()
	ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		s.T().Skipf("MongoDB not available: %v", err)
	}
	s.client = client
	s.db = client.Database("carts_test_" + uuid.NewString()[:8])
	s.repo, err = NewCartRepository(s.ctx, s.db)
	s.Require().NoError(err)
}

func (s *CartRepositorySuite) TearDownSuite() {
	if s.client == nil {
		return
	}
	_ = s.db.Drop(s.ctx)
	_ = s.client.Disconnect(s.ctx)
}

func (s *CartRepositorySuite) cart(userID string, products ...string) *domain.Cart {
	c, err := domain.New(userID)
	s.Require().NoError(err)
	for _, p := range products {
		s.Require().NoError(c.AddItem(p, 2, decimal.RequireFromString("19.99")))
	}
	return c
}

func (s *CartRepositorySuite) TestSaveGetDelete() {
	c := s.cart("u1", "p1")
	s.Require().NoError(s.repo.Save(s.ctx, c))

	got, err := s.repo.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got.Items, 1)
	s.True(decimal.RequireFromString("19.99").Equal(got.Items[0].Price))

	s.Require().NoError(s.repo.Delete(s.ctx, "u1"))
	s.Require().NoError(s.repo.Delete(s.ctx, "u1"))
	_, err = s.repo.Get(s.ctx, "u1")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *CartRepositorySuite) TestFindByProduct() {
	s.Require().NoError(s.repo.Save(s.ctx, s.cart("a", "shared", "x")))
	s.Require().NoError(s.repo.Save(s.ctx, s.cart("b", "shared")))
	s.Require().NoError(s.repo.Save(s.ctx, s.cart("c", "x")))

	carts, err := s.repo.FindByProduct(s.ctx, "shared")
	s.Require().NoError(err)
	s.Require().Len(carts, 2)
	s.Equal("a", carts[0].UserID)
	s.Equal("b", carts[1].UserID)
}
