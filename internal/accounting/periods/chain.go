package periods

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

type accountMatcher struct {
	name  string
	match func(accounts.Account) bool
}

func byCodeOrName(code, name string) func(accounts.Account) bool {
	return func(a accounts.Account) bool {
		return a.Code == code || strings.EqualFold(strings.TrimSpace(a.Name), name)
	}
}

// equityFallbackChain resolves the account receiving the period result.
var equityFallbackChain = []accountMatcher{
	{name: accounts.NameResultadoEjercicio, match: byCodeOrName(accounts.CodeResultadoEjercicio, accounts.NameResultadoEjercicio)},
	{name: accounts.NameUtilidadesAcumuladas, match: byCodeOrName(accounts.CodeUtilidadesAcumuladas, accounts.NameUtilidadesAcumuladas)},
	{name: accounts.NameGananciasRetenidas, match: byCodeOrName(accounts.CodeGananciasRetenidas, accounts.NameGananciasRetenidas)},
	{name: accounts.NameCapitalSocial, match: byCodeOrName(accounts.CodeCapitalSocial, accounts.NameCapitalSocial)},
	{name: "any equity", match: func(accounts.Account) bool { return true }},
}

// retainedEarningsChain resolves the year-end transfer target.
var retainedEarningsChain = []accountMatcher{
	{name: accounts.NameUtilidadesAcumuladas, match: byCodeOrName(accounts.CodeUtilidadesAcumuladas, accounts.NameUtilidadesAcumuladas)},
	{name: accounts.NameGananciasRetenidas, match: byCodeOrName(accounts.CodeGananciasRetenidas, accounts.NameGananciasRetenidas)},
}

// resolve returns the first postable equity account satisfying the chain, in priority
// order, and the index of the matcher that found it.
func resolve(chain []accountMatcher, candidates []accounts.Account, exclude int64) (accounts.Account, int, bool) {
	eligible := make([]accounts.Account, 0, len(candidates))
	for _, a := range candidates {
		if a.Type == accounts.AccountTypeEquity && a.Postable() && a.ID != exclude {
			eligible = append(eligible, a)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Code < eligible[j].Code })
	for idx, m := range chain {
		for _, a := range eligible {
			if m.match(a) {
				return a, idx, true
			}
		}
	}
	return accounts.Account{}, -1, false
}

func isCurrentYearResult(a accounts.Account) bool {
	return equityFallbackChain[0].match(a)
}
