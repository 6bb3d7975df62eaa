package models

// Tenant is the isolation boundary for a customer account. Every financial
// row carries a tenant ID and every query is scoped by it.
type Tenant struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Currency string `gorm:"not null;default:'EUR'" json:"currency"`

	// Relationships
	Users []User `gorm:"foreignKey:TenantID" json:"users,omitempty"`
}
