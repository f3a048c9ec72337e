package driven

// QRRenderer turns a pairing code into a scannable image data URI.
type QRRenderer interface {
	DataURI(code string) (string, error)
}
