package engine

// Context carries the caller-supplied facts a flag decision is made against.
// It is ephemeral and never persisted.
type Context struct {
	UserID         string            `json:"userId,omitempty"`
	Email          string            `json:"userEmail,omitempty"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Roles          []string          `json:"roles,omitempty"`
	Groups         []string          `json:"groups,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Result is the outcome of evaluating one flag against one context.
// Reason is the debugging contract: a human-readable sentence naming the rule
// that produced the decision. Tests assert on its prefixes.
type Result struct {
	Enabled bool   `json:"enabled"`
	Value   any    `json:"value,omitempty"`
	Variant string `json:"variant,omitempty"`
	Reason  string `json:"reason"`
}
