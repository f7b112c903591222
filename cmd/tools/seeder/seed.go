package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/customer"
)

// seedNamespace derives stable ids so re-running a seed file updates rows in place.
var seedNamespace = uuid.MustParse("6f1c1d1e-8d0b-4bb0-9b53-3f0c2b8f6a10")

type money decimal.Decimal

func (m *money) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %q is not an amount", node.Line, node.Value)
	}
	*m = money(d)
	return nil
}

func (m money) dec() decimal.Decimal { return decimal.Decimal(m) }

type seedFile struct {
	Branches []seedBranch `yaml:"branches"`
}

type seedBranch struct {
	Name      string         `yaml:"name"`
	Users     []seedUser     `yaml:"users"`
	Products  []seedProduct  `yaml:"products"`
	Customers []seedCustomer `yaml:"customers"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type seedProduct struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Price       money  `yaml:"price"`
	Cost        *money `yaml:"cost"`
	Quantity    int    `yaml:"quantity"`
}

type seedCustomer struct {
	Name   string `yaml:"name"`
	Phone  string `yaml:"phone"`
	Credit money  `yaml:"credit"`
	Limit  money  `yaml:"limit"`
}

// seedStore is the part of store.Store the seeder writes through.
type seedStore interface {
	CreateBranch(ctx context.Context, id, name string) error
	UpsertUser(ctx context.Context, a auth.Account) error
	UpsertProduct(ctx context.Context, p cart.Product) error
	UpsertCustomer(ctx context.Context, c customer.Customer) error
}

type summary struct {
	Branches, Users, Products, Customers int
}

func parseSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return seedFile{}, fmt.Errorf("decode seed file: %w", err)
	}
	var errs []error
	for i, b := range f.Branches {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Errorf("branches[%d]: name is required", i))
		}
		for j, u := range b.Users {
			if !common.Role(u.Role).Valid() {
				errs = append(errs, fmt.Errorf("branches[%d].users[%d]: unknown role %q", i, j, u.Role))
			}
			if u.Email == "" {
				errs = append(errs, fmt.Errorf("branches[%d].users[%d]: email is required", i, j))
			}
		}
		for j, p := range b.Products {
			if p.Code == "" || p.Price.dec().IsNegative() || p.Quantity < 0 {
				errs = append(errs, fmt.Errorf("branches[%d].products[%d]: code, price >= 0 and quantity >= 0 are required", i, j))
			}
		}
	}
	return f, errors.Join(errs...)
}

func stableID(parts ...string) string {
	return uuid.NewSHA1(seedNamespace, []byte(strings.Join(parts, "/"))).String()
}

func apply(ctx context.Context, st seedStore, f seedFile) (summary, error) {
	var s summary
	for _, b := range f.Branches {
		branchID := stableID("filial", b.Name)
		if err := st.CreateBranch(ctx, branchID, b.Name); err != nil {
			return s, err
		}
		s.Branches++

		for _, u := range b.Users {
			hash, err := auth.HashPassword(u.Password)
			if err != nil {
				return s, fmt.Errorf("user %s: %w", u.Email, err)
			}
			acct := auth.Account{
				ID:           stableID("user", strings.ToLower(u.Email)),
				Name:         u.Name,
				Email:        strings.ToLower(u.Email),
				PasswordHash: hash,
				Role:         common.Role(u.Role),
				Active:       true,
			}
			if acct.Role != common.RoleAdmin {
				acct.BranchID = branchID
			}
			if err := st.UpsertUser(ctx, acct); err != nil {
				return s, err
			}
			s.Users++
		}

		for _, p := range b.Products {
			prod := cart.Product{
				ID:                stableID("product", branchID, p.Code),
				BranchID:          branchID,
				Code:              p.Code,
				Description:       p.Description,
				UnitPrice:         p.Price.dec(),
				QuantityAvailable: p.Quantity,
			}
			if p.Cost != nil {
				cost := p.Cost.dec()
				prod.UnitCost = &cost
			}
			if err := st.UpsertProduct(ctx, prod); err != nil {
				return s, err
			}
			s.Products++
		}

		for _, c := range b.Customers {
			if err := st.UpsertCustomer(ctx, customer.Customer{
				ID:          stableID("customer", branchID, c.Name, c.Phone),
				BranchID:    branchID,
				Name:        c.Name,
				Phone:       c.Phone,
				StoreCredit: c.Credit.dec(),
				CreditLimit: c.Limit.dec(),
			}); err != nil {
				return s, err
			}
			s.Customers++
		}
	}
	return s, nil
}
