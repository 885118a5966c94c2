package rolegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// DefaultOverrideValidity bounds an override that is created without an
// explicit window.
const DefaultOverrideValidity = 24 * time.Hour

// Approval is one human sign-off on an override.
type Approval struct {
	ApproverID string    `json:"approver_id"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Override is a dual-control record. It has no effect until two distinct
// approver identities are recorded at different times, and none after
// its validity window closes or it is revoked.
type Override struct {
	ID         string              `json:"id"`
	AgentID    string              `json:"agent_id"`
	Role       contracts.AgentRole `json:"role"`
	Reason     string              `json:"reason"`
	Approvals  []Approval          `json:"approvals"`
	ValidFrom  time.Time           `json:"valid_from"`
	ValidUntil time.Time           `json:"valid_until"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  time.Time           `json:"created_at"`
	RevokedAt  *time.Time          `json:"revoked_at,omitempty"`
	RevokedBy  string              `json:"revoked_by,omitempty"`
}

// Complete reports whether the override carries two distinct approvals.
func (o *Override) Complete() bool {
	return len(o.Approvals) >= 2 && o.Approvals[0].ApproverID != o.Approvals[1].ApproverID
}

// ValidAt checks the override is complete, unrevoked, and inside its
// window.
func (o *Override) ValidAt(now time.Time) error {
	if o.RevokedAt != nil {
		return fault.New(fault.InvalidOverride, "override %s revoked by %s", o.ID, o.RevokedBy)
	}
	if !o.Complete() {
		return fault.New(fault.InvalidOverride, "override %s has %d of 2 required approvals", o.ID, len(o.Approvals))
	}
	if now.Before(o.ValidFrom) || now.After(o.ValidUntil) {
		return fault.New(fault.InvalidOverride, "override %s outside validity window", o.ID)
	}
	return nil
}

// OverrideRegistry manages basis overrides. Approver identity arrives as
// a signed attestation token rather than a bare string, so the registry
// can verify who approved without trusting the transport.
type OverrideRegistry struct {
	mu        sync.RWMutex
	overrides map[string]*Override
	secret    []byte
	validity  time.Duration
	clock     func() time.Time
}

// NewOverrideRegistry creates a registry verifying attestations with the
// given HMAC secret.
func NewOverrideRegistry(secret []byte) *OverrideRegistry {
	return &OverrideRegistry{
		overrides: make(map[string]*Override),
		secret:    secret,
		validity:  DefaultOverrideValidity,
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *OverrideRegistry) WithClock(clock func() time.Time) *OverrideRegistry {
	r.clock = clock
	return r
}

// WithValidity overrides the window applied when Create is called
// without one.
func (r *OverrideRegistry) WithValidity(d time.Duration) *OverrideRegistry {
	r.validity = d
	return r
}

// Create opens an override request for an (agent, role) pair. validity
// of zero means the registry default.
func (r *OverrideRegistry) Create(agentID string, role contracts.AgentRole, reason, createdBy string, validity time.Duration) (*Override, error) {
	if reason == "" {
		return nil, fmt.Errorf("override requires a reason")
	}
	if validity <= 0 {
		validity = r.validity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	o := &Override{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		Role:       role,
		Reason:     reason,
		ValidFrom:  now,
		ValidUntil: now.Add(validity),
		CreatedBy:  createdBy,
		CreatedAt:  now,
	}
	r.overrides[o.ID] = o
	cp := *o
	return &cp, nil
}

// IssueApproverToken mints a signed attestation for an approver
// identity. In production the identity provider issues these; the
// registry only needs to share the verification secret.
func (r *OverrideRegistry) IssueApproverToken(approverID string, ttl time.Duration) (string, error) {
	now := r.clock()
	claims := jwt.RegisteredClaims{
		Subject:   approverID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "cognigate/basis",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *OverrideRegistry) verifyApprover(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fault.Wrap(fault.InvalidOverride, err, "approver attestation rejected")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", fault.New(fault.InvalidOverride, "approver attestation missing subject")
	}
	return claims.Subject, nil
}

// Approve records one approval, identified by attestation token. The two
// required approvals must come from distinct identities at different
// times.
func (r *OverrideRegistry) Approve(overrideID, approverToken string) (*Override, error) {
	approverID, err := r.verifyApprover(approverToken)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.overrides[overrideID]
	if !ok {
		return nil, fault.New(fault.NotFound, "override %s not found", overrideID)
	}
	now := r.clock()
	if o.RevokedAt != nil {
		return nil, fault.New(fault.InvalidOverride, "override %s revoked", overrideID)
	}
	if now.After(o.ValidUntil) {
		return nil, fault.New(fault.Expired, "override %s expired", overrideID)
	}
	for _, a := range o.Approvals {
		if a.ApproverID == approverID {
			return nil, fault.New(fault.Conflict, "approver %s already approved override %s", approverID, overrideID)
		}
	}
	if len(o.Approvals) > 0 && !now.After(o.Approvals[len(o.Approvals)-1].ApprovedAt) {
		return nil, fault.New(fault.InvalidOverride, "second approval must be recorded after the first")
	}
	o.Approvals = append(o.Approvals, Approval{ApproverID: approverID, ApprovedAt: now})

	cp := *o
	return &cp, nil
}

// Revoke withdraws an override. Revocation is permanent.
func (r *OverrideRegistry) Revoke(overrideID, revokedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.overrides[overrideID]
	if !ok {
		return fault.New(fault.NotFound, "override %s not found", overrideID)
	}
	if o.RevokedAt != nil {
		return fault.New(fault.Conflict, "override %s already revoked", overrideID)
	}
	now := r.clock()
	o.RevokedAt = &now
	o.RevokedBy = revokedBy
	return nil
}

// Get returns a copy of an override.
func (r *OverrideRegistry) Get(overrideID string) (*Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.overrides[overrideID]
	if !ok {
		return nil, fault.New(fault.NotFound, "override %s not found", overrideID)
	}
	cp := *o
	return &cp, nil
}

// FindActive returns a currently valid override for the (agent, role)
// pair, if one exists.
func (r *OverrideRegistry) FindActive(agentID string, role contracts.AgentRole) (*Override, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	for _, o := range r.overrides {
		if o.AgentID == agentID && o.Role == role && o.ValidAt(now) == nil {
			cp := *o
			return &cp, true
		}
	}
	return nil, false
}
