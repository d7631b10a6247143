package domain

// Currency is a reference row from the currency table.
type Currency struct {
	ID        string
	ISOCode   string
	Name      string
	IsDefault bool
}
