package tenantdb

import "gopkg.in/mgo.v2/bson"

// ID identifies a document of a given type. Value is an ObjectId in hex.
type ID struct {
	Type  string
	Value string
}

func (id ID) String() string { return id.Type + ":" + id.Value }

// IsValidID reports whether id belongs to typ and carries a well-formed value.
// It performs no I/O.
func IsValidID(typ string, id ID) bool {
	return typ != "" && id.Type == typ && bson.IsObjectIdHex(id.Value)
}

// NewIDValue returns a fresh identifier value.
func NewIDValue() string {
	return bson.NewObjectId().Hex()
}
