package models

// Product is the catalog snapshot entry fed into the system prompt.
type Product struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Origin      string  `json:"origin"`
	Texture     string  `json:"texture"`
	Type        string  `json:"type"`
	Length      string  `json:"length"`
	Price       float64 `json:"price"`
}

// Origin describes where a product line is sourced from.
type Origin struct {
	Country     string `json:"country"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description"`
}
