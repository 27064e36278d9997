// Package mongo stores carts as one MongoDB document per user.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartCollection = "carts"

type cartDoc struct {
	UserID    string    `bson:"_id"`
	Items     []itemDoc `bson:"items"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Prices are kept as strings so no precision is lost to float64.
type itemDoc struct {
	ProductID string `bson:"productId"`
	Quantity  int    `bson:"quantity"`
	Price     string `bson:"price"`
}

// Connect opens a client for uri and checks it answers.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

type CartRepository struct {
	Collection *mongo.Collection
}

var _ domain.Repository = (*CartRepository)(nil)

// NewCartRepository uses the carts collection of db and makes sure the
// product lookup index exists.
func NewCartRepository(ctx context.Context, db *mongo.Database) (*CartRepository, error) {
	coll := db.Collection(cartCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "items.productId", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: cart index: %w", err)
	}
	return &CartRepository{Collection: coll}, nil
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDoc
	err := r.Collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(doc)
}

func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	if c == nil || c.UserID == "" {
		return fmt.Errorf("cart repository: user id is required")
	}
	_, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": c.UserID}, toDoc(c), options.Replace().SetUpsert(true))
	return err
}

func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.Collection.DeleteOne(ctx, bson.M{"_id": userID})
	return err
}

func (r *CartRepository) FindByProduct(ctx context.Context, productID string) ([]*domain.Cart, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, bson.M{"items.productId": productID}, opts)
	if err != nil {
		return nil, err
	}

	var docs []cartDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Cart, 0, len(docs))
	for _, doc := range docs {
		c, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toDoc(c *domain.Cart) cartDoc {
	doc := cartDoc{UserID: c.UserID, UpdatedAt: c.UpdatedAt, Items: make([]itemDoc, 0, len(c.Items))}
	for _, it := range c.Items {
		doc.Items = append(doc.Items, itemDoc{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price.String()})
	}
	return doc
}

func fromDoc(doc cartDoc) (*domain.Cart, error) {
	c := &domain.Cart{UserID: doc.UserID, UpdatedAt: doc.UpdatedAt}
	for _, it := range doc.Items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return nil, fmt.Errorf("mongo: cart %s: price of %s: %w", doc.UserID, it.ProductID, err)
		}
		c.Items = append(c.Items, domain.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: price})
	}
	return c, nil
}
