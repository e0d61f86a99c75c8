package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is the listing the marketplace sells. Only price, seller and the
// active flag matter to payments.
type Product struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	SellerID  snowflake.ID `json:"seller_id" gorm:"column:seller_id;not null"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	Price     int64        `json:"price" gorm:"not null"`
	Currency  string       `json:"currency" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// User is a marketplace member. StripeAccountID is the connected sub-account
// that receives seller transfers and payouts.
type User struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Email           string       `json:"email" gorm:"type:text;not null"`
	StripeAccountID *string      `json:"stripe_account_id,omitempty" gorm:"column:stripe_account_id"`
	StripeVerified  bool         `json:"stripe_verified" gorm:"column:stripe_verified;not null;default:false"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// PayableAccount returns the connected account id, or "" when the user has none.
func (u *User) PayableAccount() string {
	if u == nil || u.StripeAccountID == nil {
		return ""
	}
	return *u.StripeAccountID
}
