package outbox

// Status is the lifecycle state of an outbox record. PUBLISHED and FAILED
// are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Record is a durable outbox entry. Timestamps are milliseconds since epoch.
//
// UpdatedAt doubles as the optimistic-concurrency token for claims: a claim
// only succeeds while the stored value still equals the value the claimer
// read, and a successful claim bumps it, so racing claimers lose.
type Record struct {
	OutboxID      string
	TransactionID string
	MessageID     string
	Status        Status
	Payload       []byte
	Decision      string
	Reason        string
	RiskScore     float64
	CreatedAt     int64
	UpdatedAt     int64
	NextAttemptAt int64
	Attempts      int
	LastError     string
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = append([]byte(nil), r.Payload...)
	}
	return &c
}
