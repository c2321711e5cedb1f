package stored

// Flat index fields shared by every resource row.
const (
	FieldUUID       = "uuid"
	FieldBundle     = "bundle"
	FieldTitle      = "title"
	FieldTitleExact = "title_exact"
	FieldPublished  = "published"
	FieldPrivate    = "private"
	FieldProvider   = "provider_uuid"
	FieldAuthor     = "author"
	FieldCreated    = "created"
	FieldChanged    = "changed"
	FieldParent     = "parent"
	FieldRefs       = "__refs"
	FieldStored     = "__stored"
)

// Companion suffixes written next to a field value.
const (
	SuffixLabel = "_label"
	SuffixEnd   = "_end"
	SuffixLat   = "_lat"
	SuffixLon   = "_lon"
)

// Flag values of boolean TAG fields.
const (
	TagTrue  = "1"
	TagFalse = "0"
)
