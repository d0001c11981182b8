package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

const (
	floristsCollection    = "florists"
	promotionsCollection  = "promotions"
	subscribersCollection = "subscribers"
)

// Gateway implements storage.Gateway using Google Cloud Firestore.
// Promotions and subscribers are root collections filtered on florist_id.
type Gateway struct {
	client *firestore.Client
}

func NewGateway(client *firestore.Client) *Gateway {
	return &Gateway{client: client}
}

// --- Florists ---

func (g *Gateway) ListFlorists(ctx context.Context) ([]florist.Florist, error) {
	iter := g.client.Collection(floristsCollection).OrderBy("created_at", firestore.Desc).Documents(ctx)
	return drain(iter, func(id string, f florist.Florist) (florist.Florist, error) {
		f.ID = id
		return f, nil
	})
}

func (g *Gateway) GetFlorist(ctx context.Context, id string) (florist.Florist, error) {
	doc, err := g.client.Collection(floristsCollection).Doc(id).Get(ctx)
	if err != nil {
		return florist.Florist{}, translate(err, "florist", id)
	}
	var f florist.Florist
	if err := doc.DataTo(&f); err != nil {
		return florist.Florist{}, fmt.Errorf("failed to decode florist %s: %w", id, err)
	}
	f.ID = doc.Ref.ID
	return f, nil
}

func (g *Gateway) InsertFlorist(ctx context.Context, f florist.Florist) (florist.Florist, error) {
	ref := g.client.Collection(floristsCollection).NewDoc()
	if _, err := ref.Set(ctx, f); err != nil {
		return florist.Florist{}, fmt.Errorf("failed to insert florist: %w", err)
	}
	f.ID = ref.ID
	return f, nil
}

func (g *Gateway) UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	fields := patch.Fields()
	if len(fields) > 0 {
		updates := make([]firestore.Update, 0, len(fields))
		for _, k := range florist.SortedKeys(fields) {
			updates = append(updates, firestore.Update{Path: k, Value: fields[k]})
		}
		if _, err := g.client.Collection(floristsCollection).Doc(id).Update(ctx, updates); err != nil {
			return florist.Florist{}, translate(err, "florist", id)
		}
	}
	return g.GetFlorist(ctx, id)
}

// DeleteFlorist removes the florist with its promotions and subscribers.
// Deleting an absent florist is not an error.
func (g *Gateway) DeleteFlorist(ctx context.Context, id string) error {
	var refs []*firestore.DocumentRef
	for _, coll := range []string{promotionsCollection, subscribersCollection} {
		docs, err := g.client.Collection(coll).Where("florist_id", "==", id).Documents(ctx).GetAll()
		if err != nil {
			return fmt.Errorf("failed to list %s of florist %s: %w", coll, id, err)
		}
		for _, doc := range docs {
			refs = append(refs, doc.Ref)
		}
	}
	refs = append(refs, g.client.Collection(floristsCollection).Doc(id))

	bw := g.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete of %s: %w", ref.Path, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to delete florist %s: %w", id, err)
		}
	}
	return nil
}

// --- Promotions ---

func (g *Gateway) ListPromotions(ctx context.Context, floristID string) ([]florist.Promotion, error) {
	iter := g.client.Collection(promotionsCollection).
		Where("florist_id", "==", floristID).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	return drain(iter, func(id string, d promotionDoc) (florist.Promotion, error) { return d.promotion(id) })
}

func (g *Gateway) InsertPromotion(ctx context.Context, p florist.Promotion) (florist.Promotion, error) {
	p.Reprice()
	ref := g.client.Collection(promotionsCollection).NewDoc()
	if _, err := ref.Set(ctx, newPromotionDoc(p)); err != nil {
		return florist.Promotion{}, fmt.Errorf("failed to insert promotion: %w", err)
	}
	p.ID = ref.ID
	return p, nil
}

// UpdatePromotion applies patch inside a transaction so the stored final
// price always matches the stored price and discount.
func (g *Gateway) UpdatePromotion(ctx context.Context, floristID, id string, patch florist.PromotionPatch) (florist.Promotion, error) {
	ref := g.client.Collection(promotionsCollection).Doc(id)
	var updated florist.Promotion

	err := g.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, err := getOwnedPromotion(tx, ref, floristID)
		if err != nil {
			return err
		}
		patch.Apply(&p)
		updated = p
		return tx.Set(ref, newPromotionDoc(p))
	})
	if err != nil {
		return florist.Promotion{}, translate(err, "promotion", id)
	}
	return updated, nil
}

// DeletePromotion removes the promotion if it belongs to floristID. Deleting
// an absent promotion is not an error.
func (g *Gateway) DeletePromotion(ctx context.Context, floristID, id string) error {
	ref := g.client.Collection(promotionsCollection).Doc(id)
	err := g.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := getOwnedPromotion(tx, ref, floristID); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if errors.Is(translate(err, "promotion", id), storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete promotion %s: %w", id, err)
	}
	return nil
}

func getOwnedPromotion(tx *firestore.Transaction, ref *firestore.DocumentRef, floristID string) (florist.Promotion, error) {
	doc, err := tx.Get(ref)
	if err != nil {
		return florist.Promotion{}, err
	}
	var d promotionDoc
	if err := doc.DataTo(&d); err != nil {
		return florist.Promotion{}, fmt.Errorf("failed to decode promotion %s: %w", ref.ID, err)
	}
	if d.FloristID != floristID {
		return florist.Promotion{}, storage.ErrNotFound
	}
	return d.promotion(ref.ID)
}

// promotionDoc is the stored shape of a promotion. Prices are decimal
// strings so cents survive the round trip.
type promotionDoc struct {
	FloristID     string           `firestore:"florist_id"`
	Title         string           `firestore:"title"`
	Description   string           `firestore:"description,omitempty"`
	OriginalPrice string           `firestore:"original_price"`
	Discount      int              `firestore:"discount"`
	FinalPrice    string           `firestore:"final_price"`
	EndDate       time.Time        `firestore:"end_date"`
	Image         string           `firestore:"image,omitempty"`
	Contact       *florist.Contact `firestore:"contact,omitempty"`
	Active        bool             `firestore:"is_active"`
	CreatedAt     time.Time        `firestore:"created_at"`
}

func newPromotionDoc(p florist.Promotion) promotionDoc {
	return promotionDoc{
		FloristID:     p.FloristID,
		Title:         p.Title,
		Description:   p.Description,
		OriginalPrice: p.OriginalPrice.StringFixed(2),
		Discount:      p.Discount,
		FinalPrice:    p.FinalPrice.StringFixed(2),
		EndDate:       p.EndDate,
		Image:         p.Image,
		Contact:       p.Contact,
		Active:        p.Active,
		CreatedAt:     p.CreatedAt,
	}
}

func (d promotionDoc) promotion(id string) (florist.Promotion, error) {
	original, err := decimal.NewFromString(d.OriginalPrice)
	if err != nil {
		return florist.Promotion{}, fmt.Errorf("promotion %s has a malformed original_price: %w", id, err)
	}
	final, err := decimal.NewFromString(d.FinalPrice)
	if err != nil {
		return florist.Promotion{}, fmt.Errorf("promotion %s has a malformed final_price: %w", id, err)
	}
	return florist.Promotion{
		ID:            id,
		FloristID:     d.FloristID,
		Title:         d.Title,
		Description:   d.Description,
		OriginalPrice: original,
		Discount:      d.Discount,
		FinalPrice:    final,
		EndDate:       d.EndDate,
		Image:         d.Image,
		Contact:       d.Contact,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
	}, nil
}

// --- Subscribers ---

func (g *Gateway) ListSubscribers(ctx context.Context, floristID string) ([]florist.Subscriber, error) {
	iter := g.client.Collection(subscribersCollection).
		Where("florist_id", "==", floristID).
		OrderBy("subscribed_at", firestore.Desc).
		Documents(ctx)
	return drain(iter, func(id string, s florist.Subscriber) (florist.Subscriber, error) {
		s.ID = id
		return s, nil
	})
}

func (g *Gateway) InsertSubscriber(ctx context.Context, s florist.Subscriber) (florist.Subscriber, error) {
	ref := g.client.Collection(subscribersCollection).NewDoc()
	if _, err := ref.Set(ctx, s); err != nil {
		return florist.Subscriber{}, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	s.ID = ref.ID
	return s, nil
}

// --- Helpers ---

// drain decodes every document of iter into D and builds a T from it and the
// document id.
func drain[D, T any](iter *firestore.DocumentIterator, build func(id string, d D) (T, error)) ([]T, error) {
	defer iter.Stop()

	out := make([]T, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var d D
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", doc.Ref.Path, err)
		}
		v, err := build(doc.Ref.ID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// translate maps Firestore's NotFound onto storage.ErrNotFound.
func translate(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) || status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}
