package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/Mahadi1000/taskmanager-server/src/model"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("Insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := NewMongoStore(mt.Coll)

		id, err := s.Insert(ctx, map[string]any{"title": "Buy milk", "status": "pending"})
		if err != nil {
			mt.Fatalf("Insert() error = %v", err)
		}
		if !s.ValidID(id) {
			mt.Errorf("Insert() returned malformed id %q", id)
		}
	})

	mt.Run("FindAll", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid},
			{Key: "title", Value: "Buy milk"},
			{Key: "status", Value: "pending"},
			{Key: "meta", Value: bson.D{{Key: "estimate", Value: int32(3)}}},
			{Key: "tags", Value: bson.A{"home", int64(2)}},
		})
		last := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, last)

		tasks, err := NewMongoStore(mt.Coll).FindAll(ctx)
		if err != nil {
			mt.Fatalf("FindAll() error = %v", err)
		}

		want := []model.Task{{
			"_id":    oid.Hex(),
			"title":  "Buy milk",
			"status": "pending",
			"meta":   map[string]any{"estimate": float64(3)},
			"tags":   []any{"home", float64(2)},
		}}
		if diff := cmp.Diff(want, tasks); diff != "" {
			mt.Errorf("FindAll() mismatch (-want +got):\n%s", diff)
		}
	})

	mt.Run("FindAll store error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad query",
			Name:    "BadValue",
		}))

		if _, err := NewMongoStore(mt.Coll).FindAll(ctx); err == nil {
			mt.Error("FindAll() expected an error")
		}
	})

	mt.Run("FindAndUpdate", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: oid},
			{Key: "title", Value: "Buy milk"},
			{Key: "status", Value: "done"},
		}}))

		task, err := NewMongoStore(mt.Coll).FindAndUpdate(ctx, oid.Hex(), map[string]any{"status": "done"})
		if err != nil {
			mt.Fatalf("FindAndUpdate() error = %v", err)
		}
		want := model.Task{"_id": oid.Hex(), "title": "Buy milk", "status": "done"}
		if diff := cmp.Diff(want, task); diff != "" {
			mt.Errorf("FindAndUpdate() mismatch (-want +got):\n%s", diff)
		}
	})

	mt.Run("FindAndUpdate not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := NewMongoStore(mt.Coll).FindAndUpdate(ctx, primitive.NewObjectID().Hex(), map[string]any{"status": "done"})
		if !errors.Is(err, ErrNotFound) {
			mt.Errorf("FindAndUpdate() error = %v, want ErrNotFound", err)
		}
	})

	mt.Run("Update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		matched, err := NewMongoStore(mt.Coll).Update(ctx, primitive.NewObjectID().Hex(), map[string]any{"title": "x"})
		if err != nil {
			mt.Fatalf("Update() error = %v", err)
		}
		if matched != 1 {
			mt.Errorf("Update() matched = %d, want 1", matched)
		}
	})

	mt.Run("Update no match", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		matched, err := NewMongoStore(mt.Coll).Update(ctx, primitive.NewObjectID().Hex(), map[string]any{"title": "x"})
		if err != nil {
			mt.Fatalf("Update() error = %v", err)
		}
		if matched != 0 {
			mt.Errorf("Update() matched = %d, want 0", matched)
		}
	})

	mt.Run("Update empty patch counts", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))

		matched, err := NewMongoStore(mt.Coll).Update(ctx, primitive.NewObjectID().Hex(), nil)
		if err != nil {
			mt.Fatalf("Update() error = %v", err)
		}
		if matched != 1 {
			mt.Errorf("Update() matched = %d, want 1", matched)
		}
	})

	mt.Run("Delete", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		deleted, err := NewMongoStore(mt.Coll).Delete(ctx, primitive.NewObjectID().Hex())
		if err != nil {
			mt.Fatalf("Delete() error = %v", err)
		}
		if deleted != 1 {
			mt.Errorf("Delete() deleted = %d, want 1", deleted)
		}
	})

	mt.Run("invalid id never reaches the server", func(mt *mtest.T) {
		s := NewMongoStore(mt.Coll)

		if _, err := s.Delete(ctx, "not-a-valid-id-format"); !errors.Is(err, ErrInvalidID) {
			mt.Errorf("Delete() error = %v, want ErrInvalidID", err)
		}
		if _, err := s.Update(ctx, "123", map[string]any{"a": 1}); !errors.Is(err, ErrInvalidID) {
			mt.Errorf("Update() error = %v, want ErrInvalidID", err)
		}
		if _, err := s.FindAndUpdate(ctx, "zzzzzzzzzzzzzzzzzzzzzzzz", nil); !errors.Is(err, ErrInvalidID) {
			mt.Errorf("FindAndUpdate() error = %v, want ErrInvalidID", err)
		}
	})

	mt.Run("Ping", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := NewMongoStore(mt.Coll).Ping(ctx); err != nil {
			mt.Errorf("Ping() error = %v", err)
		}
	})
}

func TestNormalizeBSON(t *testing.T) {
	dt := primitive.NewDateTimeFromTime(mustTime(t, "2026-10-18T09:30:00Z"))

	got := normalizeBSON(primitive.M{
		"when":  dt,
		"none":  primitive.Null{},
		"items": primitive.A{primitive.D{{Key: "k", Value: int32(1)}}},
	})

	want := map[string]any{
		"when":  "2026-10-18T09:30:00Z",
		"none":  nil,
		"items": []any{map[string]any{"k": float64(1)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalizeBSON() mismatch (-want +got):\n%s", diff)
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}
