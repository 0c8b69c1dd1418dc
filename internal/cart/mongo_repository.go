package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	CartID    string             `bson:"cart_id"`
	Items     []lineDocument     `bson:"items"`
	Coupon    *couponDocument    `bson:"coupon,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type lineDocument struct {
	ProductID  int64                 `bson:"product_id"`
	Name       string                `bson:"name"`
	Price      primitive.Decimal128  `bson:"price"`
	SalePrice  *primitive.Decimal128 `bson:"sale_price,omitempty"`
	Quantity   int                   `bson:"quantity"`
	FirstImage string                `bson:"first_image,omitempty"`
	AddedAt    time.Time             `bson:"added_at"`
}

type couponDocument struct {
	Code              string               `bson:"code"`
	DiscountAmount    primitive.Decimal128 `bson:"discount_amount"`
	FinalAmount       primitive.Decimal128 `bson:"final_amount"`
	ValidatedSubtotal primitive.Decimal128 `bson:"validated_subtotal"`
	ValidatedAt       time.Time            `bson:"validated_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"cart_id": cartID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

// AddItem appends the line, or adds its quantity to an existing line for the
// same product, capped at the line maximum. Name and prices are refreshed.
func (m *MongoRepository) AddItem(ctx context.Context, cartID string, item domain.CartLineItem) error {
	now := time.Now()
	item.AddedAt = now

	line, err := toLineDocument(item)
	if err != nil {
		return err
	}

	filter := bson.M{"cart_id": cartID}

	var existing cartDocument
	err = m.collection.FindOne(ctx, filter).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		doc := cartDocument{
			CartID:    cartID,
			Items:     []lineDocument{line},
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = m.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			// created concurrently; merge into it instead
			return m.AddItem(ctx, cartID, item)
		}
		if err != nil {
			return fmt.Errorf("failed to create cart with item: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check existing cart: %w", err)
	}

	current := -1
	for i, l := range existing.Items {
		if l.ProductID == item.ProductID {
			current = i
			break
		}
	}

	if current < 0 {
		update := bson.M{
			"$push": bson.M{"items": line},
			"$set":  bson.M{"updated_at": now},
		}
		if _, err = m.collection.UpdateOne(ctx, filter, update); err != nil {
			return fmt.Errorf("failed to add new item: %w", err)
		}
		return nil
	}

	quantity := min(existing.Items[current].Quantity+item.Quantity, domain.MaxLineQuantity)
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity":    quantity,
			"items.$[elem].name":        line.Name,
			"items.$[elem].price":       line.Price,
			"items.$[elem].sale_price":  line.SalePrice,
			"items.$[elem].first_image": line.FirstImage,
			"items.$[elem].added_at":    now,
			"updated_at":                now,
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": item.ProductID},
		},
	})

	if _, err = m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to update existing item: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpdateItemQuantity(ctx context.Context, cartID string, productID int64, quantity int) error {
	filter := bson.M{
		"cart_id":          cartID,
		"items.product_id": productID,
	}
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now(),
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, cartID string, productID int64) error {
	filter := bson.M{
		"cart_id":          cartID,
		"items.product_id": productID,
	}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID}},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SetCoupon stores the coupon on the cart; nil removes it.
func (m *MongoRepository) SetCoupon(ctx context.Context, cartID string, coupon *domain.AppliedCoupon) error {
	now := time.Now()
	var update bson.M
	if coupon == nil {
		update = bson.M{
			"$unset": bson.M{"coupon": ""},
			"$set":   bson.M{"updated_at": now},
		}
	} else {
		doc, err := toCouponDocument(coupon)
		if err != nil {
			return err
		}
		update = bson.M{"$set": bson.M{"coupon": doc, "updated_at": now}}
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"cart_id": cartID}, update)
	if err != nil {
		return fmt.Errorf("failed to set coupon: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, cartID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"cart_id": cartID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cart_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	c := &domain.Cart{
		ID:        d.CartID,
		Items:     make([]domain.CartLineItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, l := range d.Items {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return nil, err
		}
		item := domain.CartLineItem{
			ProductID:  l.ProductID,
			Name:       l.Name,
			Price:      price,
			Quantity:   l.Quantity,
			FirstImage: l.FirstImage,
			AddedAt:    l.AddedAt,
		}
		if l.SalePrice != nil {
			sale, err := fromDecimal128(*l.SalePrice)
			if err != nil {
				return nil, err
			}
			item.SalePrice = &sale
		}
		c.Items = append(c.Items, item)
	}

	if d.Coupon != nil {
		discount, err := fromDecimal128(d.Coupon.DiscountAmount)
		if err != nil {
			return nil, err
		}
		final, err := fromDecimal128(d.Coupon.FinalAmount)
		if err != nil {
			return nil, err
		}
		subtotal, err := fromDecimal128(d.Coupon.ValidatedSubtotal)
		if err != nil {
			return nil, err
		}
		c.Coupon = &domain.AppliedCoupon{
			Code:              d.Coupon.Code,
			DiscountAmount:    discount,
			FinalAmount:       final,
			ValidatedSubtotal: subtotal,
			ValidatedAt:       d.Coupon.ValidatedAt,
		}
	}
	return c, nil
}

func toLineDocument(item domain.CartLineItem) (lineDocument, error) {
	price, err := toDecimal128(item.Price)
	if err != nil {
		return lineDocument{}, err
	}
	line := lineDocument{
		ProductID:  item.ProductID,
		Name:       item.Name,
		Price:      price,
		Quantity:   item.Quantity,
		FirstImage: item.FirstImage,
		AddedAt:    item.AddedAt,
	}
	if item.SalePrice != nil {
		sale, err := toDecimal128(*item.SalePrice)
		if err != nil {
			return lineDocument{}, err
		}
		line.SalePrice = &sale
	}
	return line, nil
}

func toCouponDocument(c *domain.AppliedCoupon) (*couponDocument, error) {
	discount, err := toDecimal128(c.DiscountAmount)
	if err != nil {
		return nil, err
	}
	final, err := toDecimal128(c.FinalAmount)
	if err != nil {
		return nil, err
	}
	subtotal, err := toDecimal128(c.ValidatedSubtotal)
	if err != nil {
		return nil, err
	}
	return &couponDocument{
		Code:              c.Code,
		DiscountAmount:    discount,
		FinalAmount:       final,
		ValidatedSubtotal: subtotal,
		ValidatedAt:       c.ValidatedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}
