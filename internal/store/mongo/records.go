// Package mongo stores migrated rows in MongoDB collections.
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const idField = "_id"

// Records is a store.Records over one MongoDB database.
type Records struct {
	DB *mongo.Database
}

func NewRecords(client *mongo.Client, database string) *Records {
	return &Records{DB: client.Database(database)}
}

var _ store.Records = (*Records)(nil)

// EnsureIndexes creates the key indexes the store relies on. Session ids
// are unique so concurrent inserts of the same session collapse to one row.
func (r *Records) EnsureIndexes(ctx context.Context) error {
	unique := map[string]string{
		models.TableSessions:        models.FieldSessionID,
		models.TableShallowSessions: models.FieldSessionID,
		models.TableClients:         models.FieldClientID,
		models.TableCases:           models.FieldCaseID,
		models.TableShallowCases:    models.FieldCaseID,
		models.TableEnrichedCases:   models.FieldCaseID,
	}
	for table, field := range unique {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := r.DB.Collection(table).Indexes().CreateOne(ctx, model); err != nil {
			return errors.Wrapf(err, "creating %s index on %s", field, table)
		}
	}
	return nil
}

func (r *Records) Count(ctx context.Context, table string) (int64, error) {
	n, err := r.DB.Collection(table).CountDocuments(ctx, bson.M{})
	return n, errors.Wrapf(err, "counting %s", table)
}

func (r *Records) CountWhere(ctx context.Context, table string, match store.Row) (int64, error) {
	n, err := r.DB.Collection(table).CountDocuments(ctx, filterOf(match))
	return n, errors.Wrapf(err, "counting %s", table)
}

func (r *Records) Exists(ctx context.Context, table, field string, value interface{}) (bool, error) {
	n, err := r.DB.Collection(table).CountDocuments(ctx, bson.M{field: value}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrapf(err, "looking up %s in %s", field, table)
	}
	return n > 0, nil
}

func (r *Records) Insert(ctx context.Context, table string, row store.Row) (string, error) {
	res, err := r.DB.Collection(table).InsertOne(ctx, bson.M(row))
	if err != nil {
		return "", errors.Wrapf(err, "inserting into %s", table)
	}
	return utils.ToString(res.InsertedID), nil
}

// InsertIfAbsent upserts with $setOnInsert so an existing row is never touched.
func (r *Records) InsertIfAbsent(ctx context.Context, table, keyField string, row store.Row) (bool, error) {
	key, ok := row[keyField]
	if !ok || key == nil {
		return false, apperr.New(apperr.InvalidInput, "row has no %s", keyField)
	}
	res, err := r.DB.Collection(table).UpdateOne(ctx,
		bson.M{keyField: key},
		bson.M{"$setOnInsert": withoutID(row)},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// lost the race against a concurrent insert of the same key
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "inserting %s=%v into %s", keyField, key, table)
	}
	return res.UpsertedCount == 1, nil
}

// Upsert sets insertOnly fields through $setOnInsert so a re-migrated row
// keeps its current values for them.
func (r *Records) Upsert(ctx context.Context, table, keyField string, rows []store.Row, insertOnly ...string) (int, error) {
	var writes []mongo.WriteModel
	for _, row := range rows {
		key := row[keyField]
		if key == nil {
			logger.Errorf("Skipping %s row without %s", table, keyField)
			continue
		}
		model := mongo.NewUpdateOneModel().
			SetFilter(bson.M{keyField: key}).
			SetUpdate(upsertDoc(row, insertOnly)).
			SetUpsert(true)
		writes = append(writes, model)
	}
	if len(writes) == 0 {
		return 0, nil
	}

	res, err := r.DB.Collection(table).BulkWrite(ctx, writes)
	if err != nil {
		return 0, errors.Wrapf(err, "bulk upsert into %s", table)
	}
	logger.Debugf("Mongo BulkWrite %s: match %d, mod %d, upsert %d", table, res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return int(res.MatchedCount + res.UpsertedCount), nil
}

func (r *Records) Update(ctx context.Context, table, keyField string, key interface{}, set store.Row) error {
	res, err := r.DB.Collection(table).UpdateOne(ctx, bson.M{keyField: key}, bson.M{"$set": withoutID(set)})
	if err != nil {
		return errors.Wrapf(err, "updating %s in %s", keyField, table)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "%s: no row with %s=%v", table, keyField, key)
	}
	return nil
}

func (r *Records) Each(ctx context.Context, table string, fn func(store.Row) error) error {
	cursor, err := r.DB.Collection(table).Find(ctx, bson.M{})
	if err != nil {
		return errors.Wrapf(err, "reading %s", table)
	}
	return drain(ctx, cursor, fn)
}

func (r *Records) All(ctx context.Context, table string) ([]store.Row, error) {
	out := []store.Row{}
	err := r.Each(ctx, table, func(row store.Row) error {
		out = append(out, row)
		return nil
	})
	return out, err
}

func (r *Records) Sample(ctx context.Context, table string, match store.Row, n int) ([]store.Row, error) {
	out := []store.Row{}
	if n <= 0 {
		return out, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterOf(match)}},
		{{Key: "$sample", Value: bson.M{"size": n}}},
	}
	cursor, err := r.DB.Collection(table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "sampling %s", table)
	}
	err = drain(ctx, cursor, func(row store.Row) error {
		out = append(out, row)
		return nil
	})
	return out, err
}

func drain(ctx context.Context, cursor *mongo.Cursor, fn func(store.Row) error) error {
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return errors.Wrap(err, "decoding document")
		}
		if err := fn(Plain(doc).(store.Row)); err != nil {
			return err
		}
	}
	return cursor.Err()
}

func filterOf(match store.Row) bson.M {
	filter := make(bson.M, len(match))
	for k, v := range match {
		filter[k] = v
	}
	return filter
}

// upsertDoc splits row into $set and $setOnInsert. A field may not appear
// in both operators.
func upsertDoc(row store.Row, insertOnly []string) bson.M {
	set := withoutID(row)
	onInsert := bson.M{}
	for _, f := range insertOnly {
		if v, ok := set[f]; ok {
			onInsert[f] = v
			delete(set, f)
		}
	}
	doc := bson.M{"$set": set}
	if len(onInsert) > 0 {
		doc["$setOnInsert"] = onInsert
	}
	return doc
}

func withoutID(row store.Row) bson.M {
	doc := make(bson.M, len(row))
	for k, v := range row {
		if k != idField {
			doc[k] = v
		}
	}
	return doc
}

// Plain converts decoded BSON into plain Go values: documents become
// store.Row or map[string]interface{}, arrays become []interface{} and
// datetimes become UTC time.Time.
func Plain(v interface{}) interface{} {
	return plain(v, true)
}

func plain(v interface{}, top bool) interface{} {
	switch val := v.(type) {
	case bson.M:
		return plainMap(map[string]interface{}(val), top)
	case map[string]interface{}:
		return plainMap(val, top)
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = e.Value
		}
		return plainMap(m, top)
	case bson.A:
		return plainSlice(val)
	case []interface{}:
		return plainSlice(val)
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	}
	return v
}

func plainMap(m map[string]interface{}, top bool) interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = plain(v, false)
	}
	if top {
		return store.Row(out)
	}
	return out
}

func plainSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = plain(v, false)
	}
	return out
}
