package redis

// Namespace scopes every key and channel to one schema/table pair.
// Example: public:bookmarks:record:<id>
type Namespace struct {
	Schema string
	Table  string
}

func (n Namespace) prefix() string {
	return n.Schema + ":" + n.Table + ":"
}

// RecordKey returns the key holding the JSON encoded record.
func (n Namespace) RecordKey(id string) string {
	return n.prefix() + "record:" + id
}

// OwnerKey returns the sorted set of the owner's record ids, scored by
// creation time.
func (n Namespace) OwnerKey(ownerID string) string {
	return n.prefix() + "owner:" + ownerID
}

// ChangesChannel returns the pub/sub channel for the whole table, or for a
// single owner when ownerID is set.
func (n Namespace) ChangesChannel(ownerID string) string {
	if ownerID == "" {
		return n.prefix() + "changes"
	}
	return n.prefix() + "changes:" + ownerID
}

