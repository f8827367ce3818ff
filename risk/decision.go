package risk

// Decision is the outcome of Evaluate. It is one of Approve, Resize or Reject.
type Decision interface {
	Approved() bool
	Reason() string
	Warned() bool
	decision()
}

// Approve lets the order through unchanged.
type Approve struct {
	Warn bool
}

// Resize rejects the requested size but names a quantity that would pass
// the failing rule. The caller may resubmit at Qty.
type Resize struct {
	Qty  float64
	Why  string
	Warn bool
}

// Reject is a hard rejection. BlockNewEntries is set by the daily loss tier
// that stops new buys while still allowing sells.
type Reject struct {
	Why             string
	BlockNewEntries bool
	Warn            bool
}

func (Approve) Approved() bool { return true }
func (Approve) Reason() string { return "" }
func (a Approve) Warned() bool { return a.Warn }
func (Approve) decision() {}
func (Resize) Approved() bool { return false }
func (r Resize) Reason() string { return r.Why }
func (r Resize) Warned() bool { return r.Warn }
func (Resize) decision() {}
func (Reject) Approved() bool { return false }
func (r Reject) Reason() string { return r.Why }
func (r Reject) Warned() bool { return r.Warn }
func (Reject) decision() {}
