package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Product is the slice of the catalog document the checkout pipeline reads.
// The catalog service owns the collection, so field names follow its
// schema.
type Product struct {
	ID        string        `json:"_id" bson:"_id"`
	Name      string        `json:"name" bson:"name"`
	Price     Money         `json:"price" bson:"price"`
	Inventory int           `json:"inventory" bson:"inventory"`
	IsActive  *bool         `json:"isActive,omitempty" bson:"isActive,omitempty"`
	Images    ProductImages `json:"images" bson:"images"`
}

// Active treats a missing isActive flag as active, matching the catalog's
// default.
func (p *Product) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// ProductImages holds image URLs. The catalog stores either plain URL strings
// or image documents with url and isPrimary; the primary image is moved to
// the front when decoding.
type ProductImages []string

func (p ProductImages) Primary() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

type productImageDoc struct {
	URL       string `bson:"url"`
	IsPrimary bool   `bson:"isPrimary"`
}

func (p *ProductImages) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*p = nil
	if t == bsontype.Null || t == bsontype.Undefined {
		return nil
	}
	if t != bsontype.Array {
		return fmt.Errorf("cannot decode %s into product images", t)
	}

	values, err := bson.RawValue{Type: t, Value: data}.Array().Values()
	if err != nil {
		return err
	}

	var primary string
	for _, v := range values {
		switch v.Type {
		case bsontype.String:
			*p = append(*p, v.StringValue())
		case bsontype.EmbeddedDocument:
			var doc productImageDoc
			if err := v.Unmarshal(&doc); err != nil {
				return err
			}
			if doc.URL == "" {
				continue
			}
			if doc.IsPrimary && primary == "" {
				primary = doc.URL
				continue
			}
			*p = append(*p, doc.URL)
		}
	}
	if primary != "" {
		*p = append(ProductImages{primary}, *p...)
	}
	return nil
}
