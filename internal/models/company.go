package models

// Company is an invoice issuer resolved from its NIF
type Company struct {
	NIF        string `json:"nif"`
	Name       string `json:"company_name"`
	CategoryID *int   `json:"category_id"`
	Source     string `json:"source"` // cache or nif.pt
}
