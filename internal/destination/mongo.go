package destination

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// MongoClient loads each table into a collection of the dataset's database.
type MongoClient struct {
	Client   *mongo.Client
	Database string
}

func NewMongoClient(client *mongo.Client, dataset string) *MongoClient {
	return &MongoClient{Client: client, Database: dataset}
}

func (m *MongoClient) collection(t *models.TableSchema) *mongo.Collection {
	return m.Client.Database(m.Database).Collection(t.Name)
}

// EnsureTable adds a unique index on the primary key of merge tables.
// Collections need no column definitions.
func (m *MongoClient) EnsureTable(ctx context.Context, t *models.TableSchema) error {
	if !t.IsMerge() {
		return nil
	}
	keys := bson.D{}
	for _, k := range t.PrimaryKey {
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	_, err := m.collection(t).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrapf(err, "creating key index on %s", t.Name)
	}
	return nil
}

func (m *MongoClient) Truncate(ctx context.Context, t *models.TableSchema) error {
	if _, err := m.collection(t).DeleteMany(ctx, bson.M{}); err != nil {
		return errors.Wrapf(err, "truncating %s", t.Name)
	}
	return nil
}

func (m *MongoClient) Load(ctx context.Context, t *models.TableSchema, rows []models.Record) error {
	if len(rows) == 0 {
		return nil
	}
	coll := m.collection(t)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if !t.IsMerge() {
		docs := make([]interface{}, len(rows))
		for i, row := range rows {
			docs[i] = bson.M(row)
		}
		res, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return errors.Wrapf(err, "inserting into %s", t.Name)
		}
		logger.Infof("Mongo InsertMany into %s: %d docs", t.Name, len(res.InsertedIDs))
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		filter := bson.M{}
		for _, k := range t.PrimaryKey {
			filter[k] = row[k]
		}
		update := bson.M{"$set": bson.M(row)}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	res, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return errors.Wrapf(err, "upserting into %s", t.Name)
	}
	logger.Infof("Mongo BulkWrite %s: Match %d, Mod %d, Upsert %d", t.Name, res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
