package domain

import "time"

type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryBooks       Category = "Books"
	CategoryFurniture   Category = "Furniture"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryBooks, CategoryFurniture:
		return true
	}
	return false
}

// Product is read-only from the cart's point of view. It carries two identities:
// Code is the human-assigned domain code, ID the storage-native identifier.
type Product struct {
	ID          string    `bson:"_id,omitempty" json:"storage_id,omitempty"`
	Code        string    `bson:"id,omitempty" json:"code,omitempty"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	Price       float64   `bson:"price" json:"price"`
	Inventory   int       `bson:"inventory" json:"inventory"`
	Category    Category  `bson:"category" json:"category"`
	ImageURL    string    `bson:"image_url" json:"image_url"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	AddedBy     string    `bson:"added_by,omitempty" json:"added_by,omitempty"`
}

// Ref is the identifier used for every external reference to the product.
func (p Product) Ref() string {
	if p.Code != "" {
		return p.Code
	}
	return p.ID
}
