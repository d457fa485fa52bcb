// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Mahadi1000/taskmanager-server/src/model"
)

// MongoStore keeps tasks in a single MongoDB collection keyed by ObjectID.
type MongoStore struct {
	coll       *mongo.Collection
	ownsClient bool
}

// NewMongoStore wraps an existing collection. The caller keeps ownership of
// the client behind it.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// ConnectMongo dials uri with the stable server API and verifies the
// deployment answers a ping before returning.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	s := &MongoStore{
		coll:       client.Database(database).Collection(collection),
		ownsClient: true,
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (s *MongoStore) objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

func (s *MongoStore) Insert(ctx context.Context, fields map[string]any) (string, error) {
	doc := make(bson.M, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	oid := primitive.NewObjectID()
	doc[model.IDField] = oid

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) FindAll(ctx context.Context) ([]model.Task, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, taskFromBSON(doc))
	}
	return tasks, nil
}

func (s *MongoStore) FindAndUpdate(ctx context.Context, id string, patch map[string]any) (model.Task, error) {
	oid, err := s.objectID(id)
	if err != nil {
		return nil, err
	}
	filter := bson.M{model.IDField: oid}

	var res *mongo.SingleResult
	if len(patch) == 0 {
		res = s.coll.FindOne(ctx, filter)
	} else {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		res = s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": patch}, opts)
	}

	var doc bson.M
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find and update task %s: %w", id, err)
	}
	return taskFromBSON(doc), nil
}

func (s *MongoStore) Update(ctx context.Context, id string, patch map[string]any) (int64, error) {
	oid, err := s.objectID(id)
	if err != nil {
		return 0, err
	}
	filter := bson.M{model.IDField: oid}

	// $set with an empty document is rejected by older servers.
	if len(patch) == 0 {
		n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
		if err != nil {
			return 0, fmt.Errorf("count task %s: %w", id, err)
		}
		return n, nil
	}

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": patch})
	if err != nil {
		return 0, fmt.Errorf("update task %s: %w", id, err)
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) (int64, error) {
	oid, err := s.objectID(id)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{model.IDField: oid})
	if err != nil {
		return 0, fmt.Errorf("delete task %s: %w", id, err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	admin := s.coll.Database().Client().Database("admin")
	if err := admin.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	return s.coll.Database().Client().Disconnect(ctx)
}

func taskFromBSON(doc bson.M) model.Task {
	task := make(model.Task, len(doc))
	for k, v := range doc {
		task[k] = normalizeBSON(v)
	}
	return task
}

// normalizeBSON converts driver types into plain JSON-compatible values.
func normalizeBSON(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = normalizeBSON(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = normalizeBSON(e)
		}
		return m
	case primitive.A:
		return normalizeSlice(x)
	case []any:
		return normalizeSlice(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return x.String()
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = normalizeBSON(e)
	}
	return out
}
