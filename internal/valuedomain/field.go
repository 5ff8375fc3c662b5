package valuedomain

// FieldKind discriminates which concrete FieldType shape is in play, the
// same way Kind discriminates Value. Grounded on the teacher's closed
// shape.DataType enum (internal/shape/shape.go), generalized from six
// scalar kinds to the spec's eleven.
type FieldKind int

const (
	FieldInteger FieldKind = iota
	FieldFloat
	FieldString
	FieldBoolean
	FieldDateTime
	FieldUuid
	FieldObjectId
	FieldJson
	FieldArray
	FieldObject
	FieldReference
)

// FieldType describes the declared shape of a field per spec.md §3.
type FieldType struct {
	Kind FieldKind

	// Integer / Float
	Min *float64
	Max *float64
	Precision *int

	// String
	MaxLen  *int
	MinLen  *int
	Pattern string

	// Array
	Element *FieldType

	// Reference
	TargetCollection string
}

func Integer() FieldType            { return FieldType{Kind: FieldInteger} }
func Float() FieldType              { return FieldType{Kind: FieldFloat} }
func StringType() FieldType         { return FieldType{Kind: FieldString} }
func Boolean() FieldType            { return FieldType{Kind: FieldBoolean} }
func DateTime() FieldType           { return FieldType{Kind: FieldDateTime} }
func Uuid() FieldType               { return FieldType{Kind: FieldUuid} }
func ObjectId() FieldType           { return FieldType{Kind: FieldObjectId} }
func Json() FieldType               { return FieldType{Kind: FieldJson} }
func Object() FieldType             { return FieldType{Kind: FieldObject} }
func ArrayOf(elem FieldType) FieldType {
	return FieldType{Kind: FieldArray, Element: &elem}
}
func ReferenceTo(collection string) FieldType {
	return FieldType{Kind: FieldReference, TargetCollection: collection}
}

// FieldDefinition is the per-field schema entry of spec.md §3.
type FieldDefinition struct {
	Type        FieldType
	Required    bool
	Unique      bool
	Indexed     bool
	Default     *Value
	Description string
}

// IdStrategyKind enumerates the five ID generation policies of spec.md §2/§4.3.
type IdStrategyKind int

const (
	IdAutoIncrement IdStrategyKind = iota
	IdUuid
	IdSnowflake
	IdObjectId
	IdCustomPrefix
)

// IdStrategy describes how new primary keys are produced, per spec.md §3/§4.3.
// Grounded on original_source/src/types/id_types/mod.rs's IdStrategy enum,
// translated from a Rust sum type to a Go struct with a Kind discriminator
// since Go has no tagged unions.
type IdStrategy struct {
	Kind IdStrategyKind

	// Snowflake
	MachineID    uint16
	DatacenterID uint8

	// CustomPrefix
	Prefix string
}

func AutoIncrement() IdStrategy { return IdStrategy{Kind: IdAutoIncrement} }
func UuidStrategy() IdStrategy  { return IdStrategy{Kind: IdUuid} }
func Snowflake(machineID uint16, datacenterID uint8) IdStrategy {
	return IdStrategy{Kind: IdSnowflake, MachineID: machineID, DatacenterID: datacenterID}
}
func ObjectIdStrategy() IdStrategy { return IdStrategy{Kind: IdObjectId} }
func CustomPrefix(prefix string) IdStrategy {
	return IdStrategy{Kind: IdCustomPrefix, Prefix: prefix}
}

// NaturalFieldKind returns the FieldKind an id_field must declare for this
// strategy, per spec.md §3 ModelMeta invariant: "its FieldType matches
// IdStrategy (AutoIncrement→Integer, Uuid→Uuid, ObjectId→ObjectId or
// String, Snowflake→Integer, CustomPrefix→String)".
func (s IdStrategy) NaturalFieldKind() []FieldKind {
	switch s.Kind {
	case IdAutoIncrement, IdSnowflake:
		return []FieldKind{FieldInteger}
	case IdUuid:
		return []FieldKind{FieldUuid}
	case IdObjectId:
		return []FieldKind{FieldObjectId, FieldString}
	case IdCustomPrefix:
		return []FieldKind{FieldString}
	default:
		return nil
	}
}
