package cache

import "time"

// Layer is the public contract C9 and the invalidation middleware depend
// on. *Cache satisfies it directly; a remote-backed implementation (e.g. a
// future Redis-backed Layer) would additionally swallow transport errors
// internally so this interface never needs an error return — cache
// failures are never surfaced to business logic.
type Layer interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	InvalidateTenant(tenantUUID, module string)
	InvalidateDashboard(tenantUUID string)
}

var _ Layer = (*Cache)(nil)

// CRMEntityModules is the set of tool modules whose write invalidation
// also triggers a dashboard invalidation.
var CRMEntityModules = map[string]bool{
	"leads":         true,
	"accounts":      true,
	"contacts":      true,
	"opportunities": true,
	"activities":    true,
	"notes":         true,
	"bizdev":        true,
}

// IsCRMEntityModule reports whether module is in the CRM-entity set.
func IsCRMEntityModule(module string) bool {
	return CRMEntityModules[module]
}
