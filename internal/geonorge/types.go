package geonorge

// Municipality is the normalized record for a municipality search hit.
type Municipality struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Street is the normalized record for a street search hit within a
// municipality.
type Street struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Address is the normalized record for one house number on a street,
// carrying the postal fields the form derives from the selection.
type Address struct {
	Label      string `json:"label"`
	PostalCode string `json:"postalCode"`
	PostalArea string `json:"postalArea"`
}

// geocoderFeature mirrors the relevant parts of the geocoder's GeoJSON
// payload.
type geocoderFeature struct {
	Properties struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		StreetNumber string `json:"streetNumber"`
		PostCode     string `json:"postCode"`
		PostPlace    string `json:"postPlace"`
	} `json:"properties"`
}

type geocoderResponse struct {
	Features []geocoderFeature `json:"features"`
}
