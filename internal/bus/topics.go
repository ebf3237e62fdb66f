package bus

// Topics shared by the mutation initiator and the reconciliation engine.
const (
	// TopicRecordCreated carries a domain.Record stamped by the initiator,
	// published before persistence is attempted.
	TopicRecordCreated = "record.created"
	// TopicRecordConfirmed carries a domain.Record the store accepted.
	TopicRecordConfirmed = "record.confirmed"
	// TopicRecordRejected carries a mutation.Rejection for a failed insert.
	TopicRecordRejected = "record.rejected"
	// TopicDeleteFailed carries a mutation.Rejection for a failed delete.
	TopicDeleteFailed = "record.delete_failed"
	// TopicViewChanged carries a domain.ViewChange.
	TopicViewChanged = "view.changed"
)
