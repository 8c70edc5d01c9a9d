package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64           `json:"id" example:"1"`
	TenantID  int64           `json:"tenant_id" example:"1"`
	Email     string          `json:"email" example:"member@example.com"`
	FirstName string          `json:"first_name" example:"Ada"`
	LastName  string          `json:"last_name" example:"Okafor"`
	Balance   decimal.Decimal `json:"balance"`
	IsAdmin   bool            `json:"is_admin"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
