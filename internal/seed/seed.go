// Package seed loads a demo supplier catalog and mints tokens for one actor
// of each role so a fresh environment can be exercised end to end.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db/models"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

var namespace = uuid.MustParse("5d0f8f3e-8a0b-4c59-9a55-0c6f1f3b9a11")

// Stable ids so reseeding finds the same actors.
var (
	SupplierID = uuid.NewSHA1(namespace, []byte("supplier"))
	VendorID   = uuid.NewSHA1(namespace, []byte("vendor"))
	AdminID    = uuid.NewSHA1(namespace, []byte("admin"))
)

type Fixture struct {
	Name        string
	Category    enums.ProductCategory
	Unit        enums.ProductUnit
	Price       string
	Stock       int
	Description string
}

var DefaultFixtures = []Fixture{
	{"Red Onion", enums.ProductCategoryVegetables, enums.ProductUnitKg, "28", 500, "Nashik red onions, medium size"},
	{"Potato", enums.ProductCategoryVegetables, enums.ProductUnitKg, "22", 800, "Agra potatoes for chaat and vada pav"},
	{"Tomato", enums.ProductCategoryVegetables, enums.ProductUnitKg, "30", 300, "Firm hybrid tomatoes"},
	{"Green Chilli", enums.ProductCategoryVegetables, enums.ProductUnitKg, "60", 80, ""},
	{"Besan", enums.ProductCategoryGrains, enums.ProductUnitKg, "90", 200, "Gram flour for pakoras"},
	{"Refined Groundnut Oil", enums.ProductCategoryOils, enums.ProductUnitLiter, "165", 150, "15 L tins available on request"},
	{"Chaat Masala", enums.ProductCategorySpices, enums.ProductUnitPacket, "45", 400, "100 g packets"},
	{"Tamarind Chutney", enums.ProductCategoryCondiments, enums.ProductUnitBottle, "120", 60, ""},
	{"Pav", enums.ProductCategoryBakery, enums.ProductUnitDozen, "36", 250, "Baked fresh every morning"},
	{"Paper Plates", enums.ProductCategoryPackaging, enums.ProductUnitPack, "55", 1000, "Pack of 50"},
}

type Result struct {
	Created []models.Product
	Skipped []string
	Tokens  map[enums.ActorRole]string
}

// Run creates any fixture the seed supplier does not list yet and mints
// access tokens valid from now.
func Run(ctx context.Context, products catalog.Service, jwt config.JWTConfig, now time.Time, fixtures []Fixture) (*Result, error) {
	if products == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	supplier := auth.NewActor(SupplierID, enums.ActorRoleSupplier)

	existing, err := products.ListProducts(ctx, catalog.ListProductsInput{
		SupplierID: &supplier.ID,
		Sort:       enums.ProductSortName,
		Limit:      100,
	})
	if err != nil {
		return nil, fmt.Errorf("list seeded products: %w", err)
	}
	present := make(map[string]struct{}, len(existing.Items))
	for _, p := range existing.Items {
		present[p.Name] = struct{}{}
	}

	result := &Result{Tokens: map[enums.ActorRole]string{}}
	for _, f := range fixtures {
		if _, ok := present[f.Name]; ok {
			result.Skipped = append(result.Skipped, f.Name)
			continue
		}
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, fmt.Errorf("fixture %q price: %w", f.Name, err)
		}
		product, err := products.CreateProduct(ctx, supplier, catalog.CreateProductInput{
			Name:              f.Name,
			Category:          f.Category,
			UnitPrice:         price,
			Unit:              f.Unit,
			AvailableQuantity: f.Stock,
			Description:       f.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", f.Name, err)
		}
		result.Created = append(result.Created, *product)
	}

	for _, a := range []struct {
		actor auth.Actor
		name  string
	}{
		{supplier, "Seed Supplier"},
		{auth.NewActor(VendorID, enums.ActorRoleVendor), "Seed Vendor"},
		{auth.NewActor(AdminID, enums.ActorRoleAdmin), "Seed Admin"},
	} {
		token, err := auth.MintAccessToken(jwt, now, a.actor, a.name)
		if err != nil {
			return nil, fmt.Errorf("mint %s token: %w", a.actor.Role, err)
		}
		result.Tokens[a.actor.Role] = token
	}
	return result, nil
}
