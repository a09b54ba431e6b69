package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mandi-backend/api/responses"
	"github.com/angelmondragon/mandi-backend/api/validators"
	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/pagination"
)

type createProductRequest struct {
	SupplierID        *uuid.UUID      `json:"supplier_id"`
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"required"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Unit              string          `json:"unit" validate:"required"`
	AvailableQuantity int             `json:"available_quantity" validate:"min=0"`
	Description       string          `json:"description" validate:"max=2000"`
}

func (p createProductRequest) toInput() (catalog.CreateProductInput, error) {
	category, err := enums.ParseProductCategory(strings.TrimSpace(p.Category))
	if err != nil {
		return catalog.CreateProductInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
	}
	unit, err := enums.ParseProductUnit(strings.TrimSpace(p.Unit))
	if err != nil {
		return catalog.CreateProductInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit")
	}
	return catalog.CreateProductInput{
		SupplierID:        p.SupplierID,
		Name:              validators.SanitizeString(p.Name, 200),
		Category:          category,
		UnitPrice:         p.UnitPrice,
		Unit:              unit,
		AvailableQuantity: p.AvailableQuantity,
		Description:       validators.SanitizeText(p.Description, 2000),
	}, nil
}

type updateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	Category    *string          `json:"category"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Unit        *string          `json:"unit"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
}

func (p updateProductRequest) toInput() (catalog.UpdateProductInput, error) {
	input := catalog.UpdateProductInput{
		Name:        validators.SanitizeOptional(p.Name, 200),
		UnitPrice:   p.UnitPrice,
		Description: validators.SanitizeOptionalText(p.Description, 2000),
	}
	if p.Category != nil {
		category, err := enums.ParseProductCategory(strings.TrimSpace(*p.Category))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category")
		}
		input.Category = &category
	}
	if p.Unit != nil {
		unit, err := enums.ParseProductUnit(strings.TrimSpace(*p.Unit))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit")
		}
		input.Unit = &unit
	}
	return input, nil
}

type adjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// ListProducts serves the public catalog with offset paging.
func ListProducts(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := parseListProducts(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListProducts(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.NewProductListDTO(list))
	}
}

func parseListProducts(r *http.Request) (catalog.ListProductsInput, error) {
	var input catalog.ListProductsInput
	var err error

	if input.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return input, err
	}
	if input.Offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000); err != nil {
		return input, err
	}
	if input.InStock, err = validators.ParseQueryBool(r, "in_stock"); err != nil {
		return input, err
	}
	if input.SupplierID, err = validators.ParseQueryUUID(r, "supplier_id"); err != nil {
		return input, err
	}
	if input.Category, err = validators.ParseQueryEnum(r, "category", enums.ParseProductCategory); err != nil {
		return input, err
	}
	sort, err := validators.ParseQueryEnum(r, "sort", enums.ParseProductSort)
	if err != nil {
		return input, err
	}
	if sort != nil {
		input.Sort = *sort
	}
	input.Query = validators.SanitizeString(r.URL.Query().Get("q"), 100)
	return input, nil
}

func GetProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.NewProductDTO(product))
	}
}

// SupplierCreateProduct lists a new product for the calling supplier.
func SupplierCreateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.CreateProduct(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, catalog.NewProductDTO(product))
	}
}

func SupplierUpdateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.UpdateProduct(r.Context(), actor, productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.NewProductDTO(product))
	}
}

func SupplierRemoveProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveProduct(r.Context(), actor, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SupplierAdjustStock applies a signed restock or correction.
func SupplierAdjustStock(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.AdjustStock(r.Context(), actor, productID, payload.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.NewProductDTO(product))
	}
}
