package model

// RecordMutation is the full set of entity changes derived from one
// feed row. Providers apply the whole set in a single transaction so a
// row can never be observed half-applied.
type RecordMutation struct {
	// DeleteSaleTUI, when non-empty, removes the sale before any
	// upserts (delete-before-insert on Change actions).
	DeleteSaleTUI string

	Areas    []Area
	Postcode *Postcode
	House    *House
	Sale     *Sale
}
