package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service maintains the chart of accounts.
type Service struct {
	repo     Repository
	audit    shared.AuditPort
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(repo Repository, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, validate: validator.New(), logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, storeID, id int64) (Account, error) {
	return s.repo.Get(ctx, storeID, id)
}

func (s *Service) GetByCode(ctx context.Context, storeID int64, code string) (Account, error) {
	return s.repo.GetByCode(ctx, storeID, code)
}

// GetMany loads accounts in one round trip.
func (s *Service) GetMany(ctx context.Context, storeID int64, ids []int64) (map[int64]Account, error) {
	return s.repo.GetMany(ctx, storeID, ids)
}

func (s *Service) List(ctx context.Context, storeID int64) ([]Account, error) {
	return s.repo.List(ctx, storeID)
}

func (s *Service) ListByType(ctx context.Context, storeID int64, types ...AccountType) ([]Account, error) {
	return s.repo.ListByType(ctx, storeID, types...)
}

// Hierarchy returns the chart as a forest ordered by code.
func (s *Service) Hierarchy(ctx context.Context, storeID int64) ([]*Node, error) {
	list, err := s.repo.List(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return BuildHierarchy(list), nil
}

// BuildHierarchy links accounts to their parents. Accounts whose parent is missing become roots.
func BuildHierarchy(list []Account) []*Node {
	nodes := make(map[int64]*Node, len(list))
	for _, a := range list {
		nodes[a.ID] = &Node{Account: a}
	}
	var roots []*Node
	for _, a := range list {
		node := nodes[a.ID]
		if a.ParentID != nil {
			if parent, ok := nodes[*a.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Create validates and inserts an account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Account{}, shared.Invalid(strings.ToLower(verrs[0].Field()), errInvalidAccount, "failed on %s", verrs[0].Tag())
		}
		return Account{}, err
	}
	if _, err := s.repo.GetByCode(ctx, in.StoreID, in.Code); err == nil {
		return Account{}, shared.Invalid("code", shared.ErrDuplicateAccountCode, "%s", in.Code)
	} else if !errors.Is(err, shared.ErrAccountNotFound) {
		return Account{}, err
	}
	account := Account{
		StoreID:       in.StoreID,
		Code:          in.Code,
		Name:          in.Name,
		Type:          in.Type,
		Level:         1,
		IsActive:      true,
		AllowsEntries: in.AllowsEntries,
	}
	if in.ParentID != nil {
		parent, err := s.repo.Get(ctx, in.StoreID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.AllowsEntries {
			return Account{}, shared.Invalid("parent_id", shared.ErrParentNotAggregate, "%s", parent.Code)
		}
		account.ParentID = &parent.ID
		account.Level = parent.Level + 1
	}
	created, err := s.repo.Insert(ctx, account)
	if err != nil {
		return Account{}, err
	}
	shared.RecordAudit(ctx, s.audit, internalShared.AuditLog{
		StoreID:  in.StoreID,
		ActorID:  in.ActorID,
		Action:   "account.create",
		Entity:   "chart_of_accounts",
		EntityID: fmt.Sprintf("%d", created.ID),
		Meta:     map[string]any{"code": created.Code, "type": string(created.Type)},
		At:       s.now(),
	})
	return created, nil
}

// Delete removes a leaf account.
func (s *Service) Delete(ctx context.Context, storeID, id, actorID int64) error {
	account, err := s.repo.Get(ctx, storeID, id)
	if err != nil {
		return err
	}
	children, err := s.repo.CountChildren(ctx, storeID, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return shared.Invalid("id", shared.ErrAccountHasChildren, "%s has %d sub-accounts", account.Code, children)
	}
	if err := s.repo.Delete(ctx, storeID, id); err != nil {
		return err
	}
	shared.RecordAudit(ctx, s.audit, internalShared.AuditLog{
		StoreID:  storeID,
		ActorID:  actorID,
		Action:   "account.delete",
		Entity:   "chart_of_accounts",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     map[string]any{"code": account.Code},
		At:       s.now(),
	})
	return nil
}

// EnsureAdjustmentAccount returns the adjustments account, creating it when absent.
func (s *Service) EnsureAdjustmentAccount(ctx context.Context, storeID int64) (Account, error) {
	account, err := s.repo.GetByCode(ctx, storeID, CodeAdjustments)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, shared.ErrAccountNotFound) {
		return Account{}, err
	}
	s.logger.Info("provisioning adjustment account", slog.Int64("store_id", storeID), slog.String("code", CodeAdjustments))
	created, err := s.Create(ctx, CreateInput{
		StoreID:       storeID,
		Code:          CodeAdjustments,
		Name:          NameAdjustments,
		Type:          AccountTypeExpense,
		AllowsEntries: true,
	})
	if errors.Is(err, shared.ErrDuplicateAccountCode) {
		// lost a race against a concurrent provisioner
		return s.repo.GetByCode(ctx, storeID, CodeAdjustments)
	}
	return created, err
}

var errInvalidAccount = errors.New("accounting: invalid account")
