package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Nature is the side on which an account's balance naturally grows.
type Nature string

const (
	NatureDebit  Nature = "DEBIT_NORMAL"
	NatureCredit Nature = "CREDIT_NORMAL"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Nature derives the balance side: assets and expenses are debit-normal.
func (t AccountType) Nature() Nature {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NatureDebit
	default:
		return NatureCredit
	}
}

// Well-known chart codes used by the close and integrity engines.
const (
	CodeCapitalSocial        = "3.1.01"
	CodeGananciasRetenidas   = "3.2"
	CodeUtilidadesAcumuladas = "3.2.01"
	CodeResultadoEjercicio   = "3.3.01"
	CodeAdjustments          = "6.9.99"

	NameCapitalSocial        = "Capital Social"
	NameGananciasRetenidas   = "Ganancias Retenidas"
	NameUtilidadesAcumuladas = "Utilidades Acumuladas"
	NameResultadoEjercicio   = "Resultado del Ejercicio"
	NameAdjustments          = "Ajustes y Diferencias"
)

// Account models a chart of accounts node.
type Account struct {
	ID            int64
	StoreID       int64
	Code          string
	Name          string
	Type          AccountType
	ParentID      *int64
	Level         int
	IsActive      bool
	AllowsEntries bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Nature returns the natural balance side of the account.
func (a Account) Nature() Nature {
	return a.Type.Nature()
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() bool {
	return a.IsActive && a.AllowsEntries
}

// CreateInput captures a new chart of accounts node.
type CreateInput struct {
	StoreID       int64       `validate:"required,gt=0"`
	Code          string      `validate:"required,max=32"`
	Name          string      `validate:"required,max=160"`
	Type          AccountType `validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID      *int64      `validate:"omitempty,gt=0"`
	AllowsEntries bool
	ActorID       int64
}

// Node is an account with its resolved sub-accounts.
type Node struct {
	Account
	Children []*Node
}
