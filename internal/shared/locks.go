package shared

import "fmt"

// PeriodLockKey builds redis keys guarding close/reopen of one store period.
func PeriodLockKey(storeID int64, periodCode string) string {
	return fmt.Sprintf("ledger:store:%d:period:%s:lock", storeID, periodCode)
}

// BalanceCacheScope builds the redis namespace of cached balances for a store.
func BalanceCacheScope(storeID int64) string {
	return fmt.Sprintf("ledger:store:%d:balances", storeID)
}
