// Package ledgertest builds in-memory ledger databases for package tests.
package ledgertest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	auditrepo "github.com/smallbiznis/shelfpay/internal/audit/repository"
	auditservice "github.com/smallbiznis/shelfpay/internal/audit/service"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/migration"
	"github.com/smallbiznis/shelfpay/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewDB opens a fresh sqlite ledger with the full schema applied.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.ApplySQLiteSchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SeedUser inserts a user; account may be empty for users without a sub-account.
func SeedUser(t *testing.T, conn *gorm.DB, id snowflake.ID, account string) {
	t.Helper()
	var accountID any
	if account != "" {
		accountID = account
	}
	now := time.Now().UTC()
	if err := conn.Exec(
		`INSERT INTO users (id, email, stripe_account_id, stripe_verified, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, id.String()+"@example.com", accountID, false, now, now,
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func SeedProduct(t *testing.T, conn *gorm.DB, id, sellerID snowflake.ID, price int64, active bool) {
	t.Helper()
	now := time.Now().UTC()
	if err := conn.Exec(
		`INSERT INTO products (id, seller_id, title, price, currency, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sellerID, "Book "+id.String(), price, "usd", active, now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func SeedWallet(t *testing.T, conn *gorm.DB, userID snowflake.ID, balance int64) {
	t.Helper()
	if err := conn.Exec(
		`INSERT INTO wallets (user_id, balance, currency, updated_at) VALUES (?, ?, ?, ?)`,
		userID, balance, "usd", time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
}

// OrderSeed describes an order row inserted directly, bypassing checkout.
type OrderSeed struct {
	ID        snowflake.ID
	BuyerID   snowflake.ID
	SellerID  snowflake.ID
	ProductID snowflake.ID
	Amount    int64
	Status    string
	SessionID string
	CreatedAt time.Time
}

func SeedOrder(t *testing.T, conn *gorm.DB, o OrderSeed) {
	t.Helper()
	var session any
	if o.SessionID != "" {
		session = o.SessionID
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := conn.Exec(
		`INSERT INTO orders (id, buyer_id, seller_id, product_id, amount, currency, status, checkout_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.SellerID, o.ProductID, o.Amount, "usd", o.Status, session, o.CreatedAt, o.CreatedAt,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

// Count returns the number of rows matching where in table.
func Count(t *testing.T, conn *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := conn.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// WalletBalance returns the stored balance, or -1 when no wallet exists.
func WalletBalance(t *testing.T, conn *gorm.DB, userID snowflake.ID) int64 {
	t.Helper()
	var rows []struct{ Balance int64 }
	if err := conn.Raw(`SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&rows).Error; err != nil {
		t.Fatalf("wallet balance: %v", err)
	}
	if len(rows) == 0 {
		return -1
	}
	return rows[0].Balance
}

func OrderStatus(t *testing.T, conn *gorm.DB, orderID snowflake.ID) string {
	t.Helper()
	var status string
	if err := conn.Raw(`SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status).Error; err != nil {
		t.Fatalf("order status: %v", err)
	}
	return status
}

// NewAudit returns an audit service writing to conn.
func NewAudit(t *testing.T, conn *gorm.DB, clk clock.Clock) auditdomain.Service {
	t.Helper()
	return auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: NewNode(t),
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
}

// UserVerified reports the stored stripe_verified flag.
func UserVerified(t *testing.T, conn *gorm.DB, userID snowflake.ID) bool {
	t.Helper()
	var verified bool
	if err := conn.Raw(`SELECT stripe_verified FROM users WHERE id = ?`, userID).Scan(&verified).Error; err != nil {
		t.Fatalf("user verified: %v", err)
	}
	return verified
}
