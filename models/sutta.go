package models

// Sutta is one scraped text as written to the raw data store.
type Sutta struct {
	SuttaID      int    `json:"sutta_id"`
	Book         string `json:"book"`
	SubBook      string `json:"sub_book"`
	URL          string `json:"url"`
	SuttaIDText  string `json:"sutta_id_text"`
	Title        string `json:"title"`
	Introduction string `json:"introduction"`
	Body         string `json:"body"`
	Language     string `json:"language,omitempty"`
}

// SuttaLink is an index entry discovered on the master page.
type SuttaLink struct {
	Book        string `json:"book"`
	SubBook     string `json:"sub_book"`
	URL         string `json:"url"`
	SuttaIDText string `json:"sutta_id_text"`
}

// SuttaIDField is the identifier key shared by the raw store and every
// downstream result store.
const SuttaIDField = "sutta_id"
