// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// PageViewModel holds the connection summary rendered into the UI shell
// before the push channel takes over.
type PageViewModel struct {
	Title      string
	Status     string
	Connected  bool
	Pairing    bool
	StatusText string
	UpdatedAt  string
}
