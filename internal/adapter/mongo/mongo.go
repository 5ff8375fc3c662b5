// Package mongo implements adapter.Backend over go.mongodb.org/mongo-driver,
// grounded on the teacher's internal/leader/changestream.go (mongo.Client,
// bson.M document handling, primitive.ObjectID conversions). Unlike the
// three SQL adapters this one has no shared sqlbuilder: there is no SQL
// dialect, so conditions translate directly into a bson.M filter document.
package mongo

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// Conn is the opaque connection handle this adapter expects: a client
// bound to one logical database, matching the teacher's
// mongoClient.Database(dbName).Collection(name) access pattern.
type Conn struct {
	Client   *mongo.Client
	Database string
}

// Connect dials uri and returns a *mongo.Client, matching the teacher's
// direct mongo.Connect usage in cmd/server/main.go.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

// Backend implements adapter.Backend for MongoDB.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Kind() string { return "mongo" }

func coll(conn any, collection string) (*mongo.Collection, error) {
	c, ok := conn.(Conn)
	if !ok {
		return nil, errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	return c.Client.Database(c.Database).Collection(collection), nil
}

func (b *Backend) CreateTable(ctx context.Context, conn any, meta model.ModelMeta) error {
	c, ok := conn.(Conn)
	if !ok {
		return errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	// Mongo collections are created implicitly on first write; an explicit
	// CreateCollection call surfaces schema-setup errors (e.g. a name
	// collision with an existing view) at registration time instead of at
	// first Create, matching spec.md §4.2's "model registration may
	// eagerly provision backend storage" invariant.
	err := c.Client.Database(c.Database).CreateCollection(ctx, meta.Collection)
	if err != nil {
		if cmdErr, ok := err.(mongo.CommandError); ok && cmdErr.Code == 48 { // NamespaceExists
			return nil
		}
		return errs.Wrap(errs.KindTransportError, "mongo: create collection failed", err).WithCollection(meta.Collection)
	}
	return nil
}

func (b *Backend) CreateIndex(ctx context.Context, conn any, collection string, index model.IndexDef) error {
	c, err := coll(conn, collection)
	if err != nil {
		return err
	}
	keys := bson.D{}
	for _, f := range index.Fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	idxModel := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(index.Unique),
	}
	if index.Name != "" {
		idxModel.Options.SetName(index.Name)
	}
	if _, err := c.Indexes().CreateOne(ctx, idxModel); err != nil {
		return errs.Wrap(errs.KindTransportError, "mongo: create index failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, conn any, collection string) (bool, error) {
	cn, ok := conn.(Conn)
	if !ok {
		return false, errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	names, err := cn.Client.Database(cn.Database).ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return false, errs.Wrap(errs.KindTransportError, "mongo: list_collection_names failed", err).WithCollection(collection)
	}
	return len(names) > 0, nil
}

func (b *Backend) DropTable(ctx context.Context, conn any, collection string) error {
	c, err := coll(conn, collection)
	if err != nil {
		return err
	}
	if err := c.Drop(ctx); err != nil {
		return errs.Wrap(errs.KindTransportError, "mongo: drop collection failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) ServerVersion(ctx context.Context, conn any) (string, error) {
	cn, ok := conn.(Conn)
	if !ok {
		return "", errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	var result bson.M
	if err := cn.Client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&result); err != nil {
		return "", errs.Wrap(errs.KindTransportError, "mongo: buildInfo command failed", err)
	}
	version, _ := result["version"].(string)
	return version, nil
}

func (b *Backend) Create(ctx context.Context, conn any, collection string, record adapter.Record, meta model.ModelMeta) (valuedomain.Value, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return valuedomain.Value{}, err
	}
	doc, err := recordToBSON(record)
	if err != nil {
		return valuedomain.Value{}, err
	}
	if _, err := c.InsertOne(ctx, doc); err != nil {
		return valuedomain.Value{}, translateWriteError(err, collection)
	}
	return record["_id"], nil
}

// collectionMustExist distinguishes "collection was never created" from
// "collection exists but the query matched nothing": unlike the SQL
// backends, an absent Mongo collection does not error on find, it just
// returns zero documents, so FindByID/Find check explicitly to surface
// spec.md §4.6 scenario S5's TableNotExistError instead of a silent empty
// result.
func collectionMustExist(ctx context.Context, cn Conn, collection string) error {
	names, err := cn.Client.Database(cn.Database).ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return errs.Wrap(errs.KindTransportError, "mongo: list_collection_names failed", err).WithCollection(collection)
	}
	if len(names) == 0 {
		return errs.TableNotExist(collection)
	}
	return nil
}

func (b *Backend) FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (adapter.Record, bool, error) {
	cn, ok := conn.(Conn)
	if !ok {
		return nil, false, errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	if err := collectionMustExist(ctx, cn, collection); err != nil {
		return nil, false, err
	}
	c := cn.Client.Database(cn.Database).Collection(collection)
	idVal, err := valueToBSON(id)
	if err != nil {
		return nil, false, err
	}
	var raw bson.M
	err = c.FindOne(ctx, bson.M{"_id": idVal}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.KindTransportError, "mongo: find_by_id failed", err).WithCollection(collection)
	}
	rec, err := bsonToRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (b *Backend) Find(ctx context.Context, conn any, collection string, conditions []adapter.Condition, opts adapter.FindOptions, meta model.ModelMeta) ([]adapter.Record, error) {
	cn, ok := conn.(Conn)
	if !ok {
		return nil, errs.New(errs.KindInternal, "mongo adapter received a non-mongo.Conn connection handle")
	}
	if err := collectionMustExist(ctx, cn, collection); err != nil {
		return nil, err
	}
	c := cn.Client.Database(cn.Database).Collection(collection)
	filter, err := buildFilter(conditions)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, s := range opts.Sort {
			dir := 1
			if s.Direction == adapter.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: s.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}

	cur, err := c.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "mongo: find failed", err).WithCollection(collection)
	}
	defer cur.Close(ctx)

	var out []adapter.Record
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, errs.Wrap(errs.KindTransportError, "mongo: cursor decode failed", err).WithCollection(collection)
		}
		rec, err := bsonToRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

func (b *Backend) Update(ctx context.Context, conn any, collection string, conditions []adapter.Condition, patch adapter.Patch, meta model.ModelMeta) (int64, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(conditions)
	if err != nil {
		return 0, err
	}
	set := bson.M{}
	for field, v := range patch {
		bv, err := valueToBSON(v)
		if err != nil {
			return 0, err
		}
		set[field] = bv
	}
	res, err := c.UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, translateWriteError(err, collection)
	}
	return res.ModifiedCount, nil
}

func (b *Backend) UpdateByID(ctx context.Context, conn any, collection string, id valuedomain.Value, patch adapter.Patch, meta model.ModelMeta) (bool, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return false, err
	}
	idVal, err := valueToBSON(id)
	if err != nil {
		return false, err
	}
	set := bson.M{}
	for field, v := range patch {
		bv, err := valueToBSON(v)
		if err != nil {
			return false, err
		}
		set[field] = bv
	}
	res, err := c.UpdateOne(ctx, bson.M{"_id": idVal}, bson.M{"$set": set})
	if err != nil {
		return false, translateWriteError(err, collection)
	}
	return res.ModifiedCount > 0, nil
}

func (b *Backend) Delete(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(conditions)
	if err != nil {
		return 0, err
	}
	res, err := c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "mongo: delete failed", err).WithCollection(collection)
	}
	return res.DeletedCount, nil
}

func (b *Backend) DeleteByID(ctx context.Context, conn any, collection string, id valuedomain.Value) (bool, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return false, err
	}
	idVal, err := valueToBSON(id)
	if err != nil {
		return false, err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": idVal})
	if err != nil {
		return false, errs.Wrap(errs.KindTransportError, "mongo: delete_by_id failed", err).WithCollection(collection)
	}
	return res.DeletedCount > 0, nil
}

func (b *Backend) Count(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	c, err := coll(conn, collection)
	if err != nil {
		return 0, err
	}
	filter, err := buildFilter(conditions)
	if err != nil {
		return 0, err
	}
	n, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "mongo: count failed", err).WithCollection(collection)
	}
	return n, nil
}

func (b *Backend) Exists(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (bool, error) {
	n, err := b.Count(ctx, conn, collection, conditions)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// buildFilter translates QueryConditions into a bson.M filter document.
// JsonContains maps to $all for array containment and a flat
// subdocument match for object containment, per spec.md §4.6's note that
// Postgres @> and Mongo's containment support are both restricted to
// scalar-in-array and flat-object shapes in this module.
func buildFilter(conditions []adapter.Condition) (bson.M, error) {
	filter := bson.M{}
	for _, c := range conditions {
		bv, err := valueToBSON(c.Value)
		if err != nil {
			return nil, err
		}
		field := c.Field

		switch c.Operator {
		case adapter.OpEq:
			if c.CaseInsensitive {
				filter[field] = bson.M{"$regex": "^" + regexEscape(toStr(bv)) + "$", "$options": "i"}
			} else {
				filter[field] = bv
			}
		case adapter.OpNe:
			filter[field] = bson.M{"$ne": bv}
		case adapter.OpGt:
			filter[field] = bson.M{"$gt": bv}
		case adapter.OpGte:
			filter[field] = bson.M{"$gte": bv}
		case adapter.OpLt:
			filter[field] = bson.M{"$lt": bv}
		case adapter.OpLte:
			filter[field] = bson.M{"$lte": bv}
		case adapter.OpIn:
			items, ok := c.Value.Array()
			if !ok {
				return nil, errs.New(errs.KindInvalidValue, "In condition requires an array value").WithField(field)
			}
			filter[field] = bson.M{"$in": mustBSONSlice(items)}
		case adapter.OpNotIn:
			items, ok := c.Value.Array()
			if !ok {
				return nil, errs.New(errs.KindInvalidValue, "NotIn condition requires an array value").WithField(field)
			}
			filter[field] = bson.M{"$nin": mustBSONSlice(items)}
		case adapter.OpContains:
			filter[field] = bson.M{"$regex": regexEscape(toStr(bv)), "$options": caseOpt(c.CaseInsensitive)}
		case adapter.OpStartsWith:
			filter[field] = bson.M{"$regex": "^" + regexEscape(toStr(bv)), "$options": caseOpt(c.CaseInsensitive)}
		case adapter.OpEndsWith:
			filter[field] = bson.M{"$regex": regexEscape(toStr(bv)) + "$", "$options": caseOpt(c.CaseInsensitive)}
		case adapter.OpRegex:
			filter[field] = bson.M{"$regex": toStr(bv)}
		case adapter.OpExists, adapter.OpIsNotNull:
			filter[field] = bson.M{"$exists": true, "$ne": nil}
		case adapter.OpIsNull:
			filter[field] = nil
		case adapter.OpJsonContains:
			if items, ok := c.Value.Array(); ok {
				filter[field] = bson.M{"$all": mustBSONSlice(items)}
			} else if obj, ok := c.Value.Object(); ok {
				for k, v := range obj {
					inner, err := valueToBSON(v)
					if err != nil {
						return nil, err
					}
					filter[field+"."+k] = inner
				}
			} else {
				return nil, errs.New(errs.KindInvalidValue, "JsonContains requires an array or object value").WithField(field)
			}
		default:
			return nil, errs.New(errs.KindUnsupportedOperator, fmt.Sprintf("unknown operator %v", c.Operator)).WithField(field)
		}
	}
	return filter, nil
}

func caseOpt(insensitive bool) string {
	if insensitive {
		return "i"
	}
	return ""
}

func toStr(v any) string {
	s, _ := v.(string)
	return s
}

func regexEscape(s string) string {
	const special = `.^$*+?()[]{}|\`
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(special, c) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func mustBSONSlice(items []valuedomain.Value) []any {
	out := make([]any, len(items))
	for i, it := range items {
		bv, err := valueToBSON(it)
		if err != nil {
			bv = nil
		}
		out[i] = bv
	}
	return out
}

func recordToBSON(record adapter.Record) (bson.M, error) {
	doc := bson.M{}
	for field, v := range record {
		bv, err := valueToBSON(v)
		if err != nil {
			return nil, err
		}
		doc[field] = bv
	}
	return doc, nil
}

func bsonToRecord(raw bson.M) (adapter.Record, error) {
	rec := make(adapter.Record, len(raw))
	for field, v := range raw {
		rec[field] = bsonToValue(v)
	}
	return rec, nil
}

// valueToBSON unwraps a ValueDomain scalar/composite into the native Go
// type the mongo driver's bson package expects, translating ObjectId
// specifically into primitive.ObjectID so Mongo indexes it as _id expects.
func valueToBSON(v valuedomain.Value) (any, error) {
	switch v.Kind() {
	case valuedomain.KindNull:
		return nil, nil
	case valuedomain.KindBool:
		b, _ := v.Bool()
		return b, nil
	case valuedomain.KindInt:
		n, _ := v.Int()
		return n, nil
	case valuedomain.KindFloat:
		f, _ := v.Float()
		return f, nil
	case valuedomain.KindString, valuedomain.KindUuid:
		s, _ := v.String()
		return s, nil
	case valuedomain.KindObjectId:
		s, _ := v.String()
		oid, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidValue, "mongo: malformed ObjectId", err)
		}
		return oid, nil
	case valuedomain.KindBytes:
		b, _ := v.Bytes()
		return b, nil
	case valuedomain.KindDateTime:
		t, _ := v.Time()
		return primitive.NewDateTimeFromTime(t), nil
	case valuedomain.KindArray:
		arr, _ := v.Array()
		return mustBSONSlice(arr), nil
	case valuedomain.KindObject:
		obj, _ := v.Object()
		out := bson.M{}
		for k, item := range obj {
			bv, err := valueToBSON(item)
			if err != nil {
				return nil, err
			}
			out[k] = bv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v for BSON encoding", v.Kind())
	}
}

// bsonToValue converts a decoded BSON value back into a best-effort
// ValueDomain, the mirror of the teacher's primitive.ObjectID/primitive.M
// type-switch handling in changestream.go's transformDocument helpers.
func bsonToValue(raw any) valuedomain.Value {
	switch t := raw.(type) {
	case nil:
		return valuedomain.Null()
	case bool:
		return valuedomain.NewBool(t)
	case int32:
		return valuedomain.NewInt(int64(t))
	case int64:
		return valuedomain.NewInt(t)
	case float64:
		return valuedomain.NewFloat(t)
	case string:
		return valuedomain.NewString(t)
	case primitive.ObjectID:
		v, _ := valuedomain.NewObjectId(t.Hex())
		return v
	case primitive.DateTime:
		return valuedomain.NewDateTime(t.Time())
	case []byte:
		return valuedomain.NewBytes(t)
	case primitive.A:
		out := make([]valuedomain.Value, len(t))
		for i, item := range t {
			out[i] = bsonToValue(item)
		}
		return valuedomain.NewArray(out)
	case bson.M:
		out := make(map[string]valuedomain.Value, len(t))
		for k, item := range t {
			out[k] = bsonToValue(item)
		}
		return valuedomain.NewObject(out)
	case primitive.D:
		out := make(map[string]valuedomain.Value, len(t))
		for _, e := range t {
			out[e.Key] = bsonToValue(e.Value)
		}
		return valuedomain.NewObject(out)
	default:
		return valuedomain.NewString(fmt.Sprintf("%v", t))
	}
}

func translateWriteError(err error, collection string) error {
	if mongo.IsDuplicateKeyError(err) {
		return errs.Wrap(errs.KindConstraintViolation, "mongo: duplicate key", err).WithCollection(collection)
	}
	return errs.Wrap(errs.KindTransportError, "mongo: write failed", err).WithCollection(collection)
}

var _ adapter.Backend = (*Backend)(nil)
