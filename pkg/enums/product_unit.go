package enums

// ProductUnit is the selling unit a supplier prices a product in.
type ProductUnit string

const (
	ProductUnitKg     ProductUnit = "kg"
	ProductUnitGram   ProductUnit = "gram"
	ProductUnitLiter  ProductUnit = "liter"
	ProductUnitML     ProductUnit = "ml"
	ProductUnitPiece  ProductUnit = "piece"
	ProductUnitDozen  ProductUnit = "dozen"
	ProductUnitPacket ProductUnit = "packet"
	ProductUnitBottle ProductUnit = "bottle"
	ProductUnitPack   ProductUnit = "pack"
	ProductUnitRoll   ProductUnit = "roll"
)

var validProductUnits = []ProductUnit{
	ProductUnitKg,
	ProductUnitGram,
	ProductUnitLiter,
	ProductUnitML,
	ProductUnitPiece,
	ProductUnitDozen,
	ProductUnitPacket,
	ProductUnitBottle,
	ProductUnitPack,
	ProductUnitRoll,
}

// String implements fmt.Stringer.
func (p ProductUnit) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductUnit.
func (p ProductUnit) IsValid() bool {
	return isKnown(p, validProductUnits)
}

// ParseProductUnit converts raw input into a ProductUnit.
func ParseProductUnit(value string) (ProductUnit, error) {
	return parseEnum(value, validProductUnits, "product unit")
}
