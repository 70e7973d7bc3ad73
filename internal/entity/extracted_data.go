package entity

import "time"

// DimensionKind names a lookup table holding unique, normalised labels.
type DimensionKind string

const (
	DimensionCity         DimensionKind = "cities"
	DimensionNeighborhood DimensionKind = "neighborhoods"
	DimensionPropertyType DimensionKind = "property_types"
	DimensionHeating      DimensionKind = "heating_types"
	DimensionKitchen      DimensionKind = "kitchen_types"
	DimensionSource       DimensionKind = "sources"
	DimensionTransaction  DimensionKind = "transactions"
)

// DimensionKinds lists every dimension in resolution order.
var DimensionKinds = []DimensionKind{
	DimensionSource,
	DimensionTransaction,
	DimensionPropertyType,
	DimensionCity,
	DimensionNeighborhood,
	DimensionHeating,
	DimensionKitchen,
}

// DimensionIDs maps each resolved dimension of a listing to its row id.
type DimensionIDs map[DimensionKind]int64

// GeoBox is the bounding box a source publishes around an approximate location.
type GeoBox struct {
	NorthEastLat  float64 `json:"north_east_lat"`
	NorthEastLong float64 `json:"north_east_long"`
	SouthWestLat  float64 `json:"south_west_lat"`
	SouthWestLong float64 `json:"south_west_long"`
}

// ExtractedListing is the canonical scraped record. Nil pointers are absent values.
type ExtractedListing struct {
	Source     string `json:"source"`
	URL        string `json:"url"`
	ExternalID string `json:"external_listing_id"`

	Transaction          *string    `json:"transaction,omitempty"`
	Price                float64    `json:"price"`
	Currency             string     `json:"currency"`
	Description          *string    `json:"description,omitempty"`
	BrokerFee            *float64   `json:"broker_fee,omitempty"`
	SecurityDeposit      *float64   `json:"security_deposit,omitempty"`
	FirstPublicationDate *time.Time `json:"first_publication_date,omitempty"`
	Images               []string   `json:"images,omitempty"`

	PropertyType   *string  `json:"property_type,omitempty"`
	Size           *float64 `json:"size,omitempty"`
	Floor          *float64 `json:"floor,omitempty"`
	Rooms          *float64 `json:"rooms,omitempty"`
	Bedrooms       *float64 `json:"bedrooms,omitempty"`
	Bathrooms      float64  `json:"bathrooms"`
	Balconies      *float64 `json:"balconies,omitempty"`
	Terraces       *int     `json:"terraces,omitempty"`
	Parkings       *int     `json:"parkings,omitempty"`
	Heating        *string  `json:"heating,omitempty"`
	Kitchen        *string  `json:"kitchen,omitempty"`
	DPEConsumption *float64 `json:"dpe_consumption,omitempty"`
	DPEEmissions   *float64 `json:"dpe_emissions,omitempty"`
	Exposure       *string  `json:"exposure,omitempty"`

	IsFurnished       *bool `json:"is_furnished,omitempty"`
	HasCellar         *bool `json:"has_cellar,omitempty"`
	HasElevator       *bool `json:"has_elevator,omitempty"`
	HasFireplace      *bool `json:"has_fireplace,omitempty"`
	HasHardwoodFloors *bool `json:"has_hardwood_floors,omitempty"`
	HasLawn           *bool `json:"has_lawn,omitempty"`
	HasPool           *bool `json:"has_pool,omitempty"`
	HasSuper          *bool `json:"has_super,omitempty"`
	HasView           *bool `json:"has_view,omitempty"`

	PostalCode   *string  `json:"postal_code,omitempty"`
	City         *string  `json:"city,omitempty"`
	Neighborhood *string  `json:"neighborhood,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	BoundingBox  *GeoBox  `json:"bounding_box,omitempty"`
}

// NaturalKey returns the dedup key: the external id when exposed, the URL otherwise.
func (l *ExtractedListing) NaturalKey() string {
	if l.ExternalID != "" {
		return l.ExternalID
	}
	return l.URL
}

// Dimensions returns the non-empty dimension labels of the listing.
func (l *ExtractedListing) Dimensions() map[DimensionKind]string {
	dims := map[DimensionKind]string{}
	set := func(kind DimensionKind, v *string) {
		if v != nil && *v != "" {
			dims[kind] = *v
		}
	}
	if l.Source != "" {
		dims[DimensionSource] = l.Source
	}
	set(DimensionTransaction, l.Transaction)
	set(DimensionPropertyType, l.PropertyType)
	set(DimensionCity, l.City)
	set(DimensionNeighborhood, l.Neighborhood)
	set(DimensionHeating, l.Heating)
	set(DimensionKitchen, l.Kitchen)
	return dims
}

// StoredListing is a listing as persisted.
type StoredListing struct {
	ID         int64        `json:"id"`
	Dimensions DimensionIDs `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	ExtractedListing
}
