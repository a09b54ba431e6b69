package enums

// PaymentMethod describes how a vendor intends to pay the supplier.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodUPI            PaymentMethod = "upi"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCredit         PaymentMethod = "credit"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCashOnDelivery,
	PaymentMethodUPI,
	PaymentMethodBankTransfer,
	PaymentMethodCredit,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return isKnown(p, validPaymentMethods)
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseEnum(value, validPaymentMethods, "payment method")
}
