package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dataproduct/journeys/pkg/api"
)

// MongoDefinitionStore is a DefinitionStore backed by MongoDB.
type MongoDefinitionStore struct {
	coll *mongo.Collection
}

// Ensure it implements DefinitionStore.
var _ DefinitionStore = (*MongoDefinitionStore)(nil)

// NewMongoDefinitionStore creates a Mongo-backed definition store.
// dbName defaults to "journeys" if empty, collName defaults to "definitions".
func NewMongoDefinitionStore(client *mongo.Client, dbName, collName string) *MongoDefinitionStore {
	if dbName == "" {
		dbName = "journeys"
	}
	if collName == "" {
		collName = "definitions"
	}

	return &MongoDefinitionStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoDefinitionDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Version     string    `bson:"version"`
	Fingerprint string    `bson:"fingerprint"`
	Document    []byte    `bson:"document"`
	SavedAt     time.Time `bson:"saved_at"`
	Seq         int64     `bson:"seq"`
}

func mongoID(name, version string) string {
	return name + "@" + version
}

func (s *MongoDefinitionStore) SaveDefinition(doc api.Document) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc.Version = versionOrDefault(doc.Version)
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	row := mongoDefinitionDoc{
		ID:          mongoID(doc.Name, doc.Version),
		Name:        doc.Name,
		Version:     doc.Version,
		Fingerprint: doc.Fingerprint,
		Document:    data,
		SavedAt:     now,
		Seq:         now.UnixNano(),
	}

	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": row.ID}, row, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoDefinitionStore) GetDefinition(name, version string) (api.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var row mongoDefinitionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": mongoID(name, versionOrDefault(version))}).Decode(&row)
	return decodeMongoRow(row, err)
}

func (s *MongoDefinitionStore) GetLatestDefinition(name string) (api.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var row mongoDefinitionDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := s.coll.FindOne(ctx, bson.M{"name": name}, opts).Decode(&row)
	return decodeMongoRow(row, err)
}

func decodeMongoRow(row mongoDefinitionDoc, err error) (api.Document, error) {
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.Document{}, ErrDefinitionNotFound
		}
		return api.Document{}, err
	}
	return DecodeDocument(row.Document)
}

func (s *MongoDefinitionStore) ListDefinitionVersions(name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"name": name}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var row mongoDefinitionDoc
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.Version)
	}
	return out, cur.Err()
}

func (s *MongoDefinitionStore) ListDefinitionNames() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := s.coll.Distinct(ctx, "name", bson.M{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
