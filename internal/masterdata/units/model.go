package units

// Unit is a unit of measure, e.g. pcs, kg, box.
type Unit struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
