package enums

// ProductSort orders catalog listings.
type ProductSort string

const (
	ProductSortName      ProductSort = "name"
	ProductSortPriceLow  ProductSort = "price-low"
	ProductSortPriceHigh ProductSort = "price-high"
	ProductSortNewest    ProductSort = "newest"
)

var validProductSorts = []ProductSort{
	ProductSortName,
	ProductSortPriceLow,
	ProductSortPriceHigh,
	ProductSortNewest,
}

// String implements fmt.Stringer.
func (p ProductSort) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductSort.
func (p ProductSort) IsValid() bool {
	return isKnown(p, validProductSorts)
}

// ParseProductSort converts raw input into a ProductSort.
func ParseProductSort(value string) (ProductSort, error) {
	return parseEnum(value, validProductSorts, "product sort")
}
