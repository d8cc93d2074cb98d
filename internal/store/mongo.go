package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

// DefaultMongoDatabase is the database holding the platform collections.
const DefaultMongoDatabase = "datashop"

// MongoStore keeps one collection per platform plus the review collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo dials uri and returns a store on database name.
func ConnectMongo(ctx context.Context, uri, name string) (*MongoStore, error) {
	if name == "" {
		name = DefaultMongoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.NewStoreFault("", "connect mongo", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.NewStoreFault("", "ping mongo", err)
	}
	return &MongoStore{client: client, db: client.Database(name)}, nil
}

// NewMongoStore wraps an existing database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{client: db.Client(), db: db}
}

func (s *MongoStore) collection(p platform.Platform) *mongo.Collection {
	return s.db.Collection(p.Collection())
}

func (s *MongoStore) Save(ctx context.Context, c *capture.Capture) (string, error) {
	if c == nil || c.ItemID == "" {
		return "", errors.NewWrite("", "capture has no item id", nil)
	}
	res, err := s.collection(c.Platform).InsertOne(ctx, map[string]any(c.Document))
	if err != nil {
		return "", errors.NewWrite(c.Platform.String(), "insert capture", err)
	}
	id := fmt.Sprint(res.InsertedID)
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		id = oid.Hex()
	}
	return fmt.Sprintf("mongodb://%s/%s/%s", s.db.Name(), c.Platform.Collection(), id), nil
}

func (s *MongoStore) DistinctIDs(ctx context.Context, p platform.Platform) ([]string, error) {
	values, err := s.collection(p).Distinct(ctx, p.IDPath(), bson.D{})
	if err != nil {
		return nil, errors.NewStoreFault(p.String(), "distinct "+p.IDPath(), err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id := capture.FormatID(fromBSON(v)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// idFilter matches the id in both its numeric and string forms, so documents written
// by older scrapers with string ids are found too.
func idFilter(path, id string) bson.D {
	q := capture.QueryID(id)
	if _, numeric := q.(int64); numeric {
		return bson.D{{Key: path, Value: bson.D{{Key: "$in", Value: bson.A{q, id}}}}}
	}
	return bson.D{{Key: path, Value: id}}
}

func (s *MongoStore) Captures(ctx context.Context, p platform.Platform, itemID string) ([]capture.Capture, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.collection(p).Find(ctx, idFilter(p.IDPath(), itemID), opts)
	if err != nil {
		return nil, errors.NewStoreFault(p.String(), "find captures", err)
	}
	defer cur.Close(ctx)

	out := []capture.Capture{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, errors.NewStoreFault(p.String(), "decode capture", err)
		}
		doc, _ := fromBSON(raw).(map[string]any)
		c, err := capture.FromDocument(p, capture.Document(doc))
		if err != nil {
			return nil, errors.NewStoreFault(p.String(), "decode capture", err)
		}
		out = append(out, c)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewStoreFault(p.String(), "iterate captures", err)
	}
	return out, nil
}

func (s *MongoStore) Review(ctx context.Context, productID string) (capture.Document, error) {
	productID = capture.CanonicalID(productID)
	var raw bson.M
	err := s.db.Collection(ReviewCollection).FindOne(ctx, bson.D{{Key: "id", Value: productID}}).Decode(&raw)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFound("", "no review for "+productID)
	}
	if err != nil {
		return nil, errors.NewStoreFault("", "find review", err)
	}
	doc, _ := fromBSON(raw).(map[string]any)
	return capture.Document(doc), nil
}

func (s *MongoStore) SaveReview(ctx context.Context, productID string, doc capture.Document) error {
	productID = capture.CanonicalID(productID)
	body := doc.Clone()
	body["id"] = productID
	delete(body, "_id")
	_, err := s.db.Collection(ReviewCollection).ReplaceOne(ctx,
		bson.D{{Key: "id", Value: productID}},
		map[string]any(body),
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.NewWrite("", "upsert review", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// fromBSON converts decoded BSON values into the plain JSON shapes the rest of the
// code works with. ObjectIDs become hex strings and small integers widen to int64.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = fromBSON(inner)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = fromBSON(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = fromBSON(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = fromBSON(inner)
		}
		return out
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}
