package analytic

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/itskum47/dnsblsentry/internal/errs"
)

// MongoStore upserts promoted rows into a MongoDB collection, the
// alternate analytic sink selected when MONGO_URL is set and
// POSTGRES_HOST is not, per original_source's mongoDB.py handler.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to url and targets dbName.blacklisted_tasks.
func NewMongoStore(ctx context.Context, url, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, &errs.LedgerError{Op: "mongo_connect", Err: err}
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection("blacklisted_tasks"),
	}, nil
}

// EnsureTable creates the unique index backing (ip, dns, check_date)
// uniqueness; MongoDB has no CREATE TABLE equivalent, so this is the
// closest analogue to the Postgres store's schema bootstrap.
func (s *MongoStore) EnsureTable(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ip_address", Value: 1}, {Key: "dns", Value: 1}, {Key: "check_date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return &errs.LedgerError{Op: "ensure_table", Err: err}
	}
	return nil
}

func (s *MongoStore) Upsert(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		filter := bson.M{"ip_address": r.IP, "dns": r.DNS, "check_date": r.CheckDate}
		update := bson.M{"$set": bson.M{
			"status":       r.Status,
			"result":       r.Result,
			"last_updated": r.LastUpdated,
		}}
		opts := options.Update().SetUpsert(true)
		if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
			return &errs.LedgerError{Op: "upsert", Err: err}
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
