package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType = "hookpost:evtype:" // + type name
	prefixEndpoint  = "hookpost:ep:"
	prefixEvent     = "hookpost:evt:"
	prefixDelivery  = "hookpost:del:"
	prefixDelinq    = "hookpost:delinq:" // + endpoint ID, hash
)

// Key prefixes for unique indexes.
const (
	uniqueEventIdem    = "hookpost:u:evt:idem:" // + idempotency key
	uniqueDeliveryPair = "hookpost:u:del:pair:" // + eventID + ":" + endpointID
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll   = "hookpost:z:evtype:all"
	zEndpointTenant = "hookpost:z:ep:tenant:" // + tenant ID
	zEventAll       = "hookpost:z:evt:all"
	zDeliveryEP     = "hookpost:z:del:ep:"  // + endpoint ID
	zDeliveryEvt    = "hookpost:z:del:evt:" // + event ID
	zDeliveryPend   = "hookpost:z:del:pending"
	zDeliveryAll    = "hookpost:z:del:all" // scored by created-at, drives retention
)

// Key prefixes for set indexes.
const (
	sEndpointEnabled = "hookpost:s:ep:tenant:" // + tenantID + ":enabled"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// enabledSetKey returns the set key for enabled endpoints of a tenant.
func enabledSetKey(tenantID string) string {
	return sEndpointEnabled + tenantID + ":enabled"
}

// pairKey returns the unique index key for an (event, endpoint) pair.
func pairKey(eventID, endpointID string) string {
	return uniqueDeliveryPair + eventID + ":" + endpointID
}
