package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
)

func TestSanitizeStringCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "Basmati Rice 5kg", SanitizeString("  Basmati \t Rice\n5kg ", 0))
	assert.Equal(t, "", SanitizeString(" \n\t ", 10))
}

func TestSanitizeLimitsRunesNotBytes(t *testing.T) {
	got := SanitizeString("मसाला चाय", 5)
	assert.Equal(t, "मसाला", got)
	assert.True(t, strings.HasPrefix("मसाला चाय", got))

	assert.Equal(t, "line one\nline", SanitizeText("  line one\nline two ", 13))
}

func TestSanitizeOptional(t *testing.T) {
	assert.Nil(t, SanitizeOptional(nil, 10))
	name := "  Fresh   Paneer  "
	assert.Equal(t, "Fresh Paneer", *SanitizeOptional(&name, 50))
	desc := " first\nsecond "
	assert.Equal(t, "first\nsecond", *SanitizeOptionalText(&desc, 50))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?limit=30&offset=x", nil)

	limit, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, limit)

	missing, err := ParseQueryInt(req, "page", 7, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, missing)

	_, err = ParseQueryInt(req, "offset", 0, 0, 100)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = ParseQueryInt(req, "limit", 20, 1, 10)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestParseQueryEnum(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?status=confirmed&bad=nope", nil)

	status, err := ParseQueryEnum(req, "status", enums.ParseOrderStatus)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, enums.OrderStatusConfirmed, *status)

	absent, err := ParseQueryEnum(req, "other", enums.ParseOrderStatus)
	require.NoError(t, err)
	assert.Nil(t, absent)

	_, err = ParseQueryEnum(req, "bad", enums.ParseOrderStatus)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

type joinPayload struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note" validate:"max=5"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(`{"quantity":0,"note":"too long"}`))
	var payload joinPayload
	err := DecodeJSONBody(req, &payload)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["quantity"])
	assert.Equal(t, "must be at most 5", details["note"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(`{"quantity":2,"price":"1.00"}`))
	var payload joinPayload
	err := DecodeJSONBody(req, &payload)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
