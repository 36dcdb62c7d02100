package eligibility

import "time"

type TaxFormStatus string

const (
	TaxFormActive   TaxFormStatus = "ACTIVE"
	TaxFormInactive TaxFormStatus = "INACTIVE"
)

type PaymentMethodStatus string

const (
	PaymentMethodConnected PaymentMethodStatus = "CONNECTED"
	PaymentMethodInactive  PaymentMethodStatus = "INACTIVE"
)

// UserTaxForm associates a user with a filed tax form.
type UserTaxForm struct {
	ID        string        `gorm:"column:id;primaryKey"`
	UserID    string        `gorm:"column:user_id;uniqueIndex:ux_user_tax_form"`
	TaxFormID string        `gorm:"column:tax_form_id;uniqueIndex:ux_user_tax_form"`
	Status    TaxFormStatus `gorm:"column:status"`
	DateFiled *time.Time    `gorm:"column:date_filed"`
	CreatedAt time.Time     `gorm:"column:created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at"`
}

func (UserTaxForm) TableName() string { return "user_tax_forms" }

// UserPaymentMethod associates a user with a provider recipient account.
type UserPaymentMethod struct {
	ID                  string              `gorm:"column:id;primaryKey"`
	UserID              string              `gorm:"column:user_id;uniqueIndex:ux_user_payment_method"`
	PaymentMethodType   string              `gorm:"column:payment_method_type;uniqueIndex:ux_user_payment_method"`
	ProviderRecipientID string              `gorm:"column:provider_recipient_id"`
	ProviderAccountID   string              `gorm:"column:provider_account_id"`
	Status              PaymentMethodStatus `gorm:"column:status"`
	CreatedAt           time.Time           `gorm:"column:created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at"`
}

func (UserPaymentMethod) TableName() string { return "user_payment_methods" }
