package quickdb

import (
	"github.com/quickdb/quickdb/internal/cache"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// DefaultCacheConfig returns a CacheConfig with the L1 tier sized
// sensibly and the L2 (on-disk) tier disabled.
var DefaultCacheConfig = cache.DefaultConfig

// Value constructors, re-exported so callers never import internal/valuedomain.
var (
	Null          = valuedomain.Null
	NewBool       = valuedomain.NewBool
	NewInt        = valuedomain.NewInt
	NewFloat      = valuedomain.NewFloat
	NewString     = valuedomain.NewString
	NewBytes      = valuedomain.NewBytes
	NewDateTime   = valuedomain.NewDateTime
	NewArray      = valuedomain.NewArray
	NewObject     = valuedomain.NewObject
	NewReference  = valuedomain.NewReference
	NewUuid       = valuedomain.NewUuid
	NewObjectId   = valuedomain.NewObjectId
)

// FieldType constructors for declaring ModelMeta.Fields.
var (
	IntegerField     = valuedomain.Integer
	FloatField       = valuedomain.Float
	StringField      = valuedomain.StringType
	BooleanField     = valuedomain.Boolean
	DateTimeField    = valuedomain.DateTime
	UuidField        = valuedomain.Uuid
	ObjectIdField    = valuedomain.ObjectId
	JsonField        = valuedomain.Json
	ReferenceField   = valuedomain.ReferenceTo
)
