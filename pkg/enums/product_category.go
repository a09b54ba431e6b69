package enums

// ProductCategory is the catalog grouping shown to vendors.
type ProductCategory string

const (
	ProductCategoryVegetables ProductCategory = "vegetables"
	ProductCategoryFruits     ProductCategory = "fruits"
	ProductCategorySpices     ProductCategory = "spices"
	ProductCategoryGrains     ProductCategory = "grains"
	ProductCategoryDairy      ProductCategory = "dairy"
	ProductCategoryMeat       ProductCategory = "meat"
	ProductCategorySeafood    ProductCategory = "seafood"
	ProductCategoryOils       ProductCategory = "oils"
	ProductCategoryCondiments ProductCategory = "condiments"
	ProductCategoryBeverages  ProductCategory = "beverages"
	ProductCategorySnacks     ProductCategory = "snacks"
	ProductCategoryPackaging  ProductCategory = "packaging"
	ProductCategorySweeteners ProductCategory = "sweeteners"
	ProductCategoryBakery     ProductCategory = "bakery"
)

var validProductCategorys = []ProductCategory{
	ProductCategoryVegetables,
	ProductCategoryFruits,
	ProductCategorySpices,
	ProductCategoryGrains,
	ProductCategoryDairy,
	ProductCategoryMeat,
	ProductCategorySeafood,
	ProductCategoryOils,
	ProductCategoryCondiments,
	ProductCategoryBeverages,
	ProductCategorySnacks,
	ProductCategoryPackaging,
	ProductCategorySweeteners,
	ProductCategoryBakery,
}

// String implements fmt.Stringer.
func (p ProductCategory) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductCategory.
func (p ProductCategory) IsValid() bool {
	return isKnown(p, validProductCategorys)
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	return parseEnum(value, validProductCategorys, "product category")
}
