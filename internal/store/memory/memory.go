// Package memory provides an in-memory implementation of the store
// interfaces. It backs unit tests and the no-database development mode.
// A single mutex serializes all access, so the conditional license bind
// and WithTx snapshots are atomically visible, matching the guarantees
// of the PostgreSQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
)

// data holds all rows. Maps are keyed by entity ID.
type data struct {
	orgs        map[string]*models.Organization
	accounts    map[string]*models.Account
	invitations map[string]*models.Invitation
	licenses    map[string]*models.License
}

func newData() *data {
	return &data{
		orgs:        make(map[string]*models.Organization),
		accounts:    make(map[string]*models.Account),
		invitations: make(map[string]*models.Invitation),
		licenses:    make(map[string]*models.License),
	}
}

func (d *data) clone() *data {
	c := newData()
	for id, org := range d.orgs {
		cp := *org
		c.orgs[id] = &cp
	}
	for id, a := range d.accounts {
		c.accounts[id] = cloneAccount(a)
	}
	for id, inv := range d.invitations {
		cp := *inv
		cp.AcceptedAt = cloneTime(inv.AcceptedAt)
		c.invitations[id] = &cp
	}
	for id, l := range d.licenses {
		c.licenses[id] = cloneLicense(l)
	}
	return c
}

func cloneAccount(a *models.Account) *models.Account {
	cp := *a
	cp.VerificationCode = cloneString(a.VerificationCode)
	cp.VerificationExpires = cloneTime(a.VerificationExpires)
	cp.LastVerificationSent = cloneTime(a.LastVerificationSent)
	return &cp
}

func cloneLicense(l *models.License) *models.License {
	cp := *l
	cp.MachineID = cloneString(l.MachineID)
	cp.Username = cloneString(l.Username)
	cp.LastActivity = cloneTime(l.LastActivity)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MemoryStore implements store.Store entirely in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data *data
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newData()}
}

// Orgs returns the OrgStore.
func (s *MemoryStore) Orgs() store.OrgStore { return &orgStore{root: s} }

// Accounts returns the AccountStore.
func (s *MemoryStore) Accounts() store.AccountStore { return &accountStore{root: s} }

// Invitations returns the InvitationStore.
func (s *MemoryStore) Invitations() store.InvitationStore { return &invitationStore{root: s} }

// Licenses returns the LicenseStore.
func (s *MemoryStore) Licenses() store.LicenseStore { return &licenseStore{root: s} }

// WithTx executes fn against a snapshot of the store. The snapshot
// replaces the live data only when fn returns nil, so readers never
// observe a partially applied batch.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	txs := &txStore{data: snapshot}
	if err := fn(txs); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// view runs fn with the lock held against the live data.
func (s *MemoryStore) view(fn func(*data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// txStore is the transaction-scoped view. The parent holds the lock for
// the duration of WithTx, so no further locking is needed here.
type txStore struct {
	data *data
}

func (s *txStore) Orgs() store.OrgStore               { return &orgStore{tx: s} }
func (s *txStore) Accounts() store.AccountStore       { return &accountStore{tx: s} }
func (s *txStore) Invitations() store.InvitationStore { return &invitationStore{tx: s} }
func (s *txStore) Licenses() store.LicenseStore       { return &licenseStore{tx: s} }

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error { return nil }
func (s *txStore) Close() error                   { return nil }

// access dispatches to the live store (locking) or the tx view.
type access struct {
	root *MemoryStore
	tx   *txStore
}

func (a access) run(fn func(*data) error) error {
	if a.tx != nil {
		return fn(a.tx.data)
	}
	return a.root.view(fn)
}

type orgStore struct {
	root *MemoryStore
	tx   *txStore
}

func (s *orgStore) acc() access { return access{root: s.root, tx: s.tx} }

func (s *orgStore) Create(ctx context.Context, org *models.Organization) error {
	return s.acc().run(func(d *data) error {
		if org.ID == "" {
			org.ID = uuid.New().String()
		}
		if org.CreatedAt.IsZero() {
			org.CreatedAt = time.Now()
		}
		for _, existing := range d.orgs {
			if existing.Email == org.Email {
				return store.ErrDuplicateEmail
			}
		}
		cp := *org
		d.orgs[org.ID] = &cp
		return nil
	})
}

func (s *orgStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	var out *models.Organization
	err := s.acc().run(func(d *data) error {
		if org, ok := d.orgs[id]; ok {
			cp := *org
			out = &cp
		}
		return nil
	})
	return out, err
}

func (s *orgStore) Update(ctx context.Context, org *models.Organization) error {
	return s.acc().run(func(d *data) error {
		if _, ok := d.orgs[org.ID]; !ok {
			return store.ErrNotFound
		}
		cp := *org
		d.orgs[org.ID] = &cp
		return nil
	})
}

type accountStore struct {
	root *MemoryStore
	tx   *txStore
}

func (s *accountStore) acc() access { return access{root: s.root, tx: s.tx} }

func (s *accountStore) Create(ctx context.Context, account *models.Account) error {
	return s.acc().run(func(d *data) error {
		if account.ID == "" {
			account.ID = uuid.New().String()
		}
		if account.CreatedAt.IsZero() {
			account.CreatedAt = time.Now()
		}
		for _, existing := range d.accounts {
			if existing.Email == account.Email {
				return store.ErrDuplicateEmail
			}
		}
		d.accounts[account.ID] = cloneAccount(account)
		return nil
	})
}

func (s *accountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var out *models.Account
	err := s.acc().run(func(d *data) error {
		for _, account := range d.accounts {
			if account.Email == email {
				out = cloneAccount(account)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *accountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var out *models.Account
	err := s.acc().run(func(d *data) error {
		if account, ok := d.accounts[id]; ok {
			out = cloneAccount(account)
		}
		return nil
	})
	return out, err
}

func (s *accountStore) Update(ctx context.Context, account *models.Account) error {
	return s.acc().run(func(d *data) error {
		existing, ok := d.accounts[account.ID]
		if !ok {
			return store.ErrNotFound
		}
		updated := cloneAccount(account)
		// The organization link is immutable.
		updated.OrganizationID = existing.OrganizationID
		d.accounts[account.ID] = updated
		return nil
	})
}

func (s *accountStore) Delete(ctx context.Context, id, orgID string) error {
	return s.acc().run(func(d *data) error {
		account, ok := d.accounts[id]
		if !ok || account.OrganizationID != orgID {
			return store.ErrNotFound
		}
		delete(d.accounts, id)
		return nil
	})
}

func (s *accountStore) ListByOrg(ctx context.Context, orgID string) ([]*models.Account, error) {
	var out []*models.Account
	err := s.acc().run(func(d *data) error {
		for _, account := range d.accounts {
			if account.OrganizationID == orgID {
				out = append(out, cloneAccount(account))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type invitationStore struct {
	root *MemoryStore
	tx   *txStore
}

func (s *invitationStore) acc() access { return access{root: s.root, tx: s.tx} }

func (s *invitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	return s.acc().run(func(d *data) error {
		if invitation.ID == "" {
			invitation.ID = uuid.New().String()
		}
		if invitation.CreatedAt.IsZero() {
			invitation.CreatedAt = time.Now()
		}
		if invitation.Status == "" {
			invitation.Status = models.InvitationStatusPending
		}
		for _, existing := range d.invitations {
			if existing.Token == invitation.Token {
				return store.ErrDuplicateKey
			}
		}
		cp := *invitation
		d.invitations[invitation.ID] = &cp
		return nil
	})
}

func (s *invitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var out *models.Invitation
	err := s.acc().run(func(d *data) error {
		for _, inv := range d.invitations {
			if inv.Token == token {
				cp := *inv
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *invitationStore) Update(ctx context.Context, invitation *models.Invitation) error {
	return s.acc().run(func(d *data) error {
		if _, ok := d.invitations[invitation.ID]; !ok {
			return store.ErrNotFound
		}
		cp := *invitation
		d.invitations[invitation.ID] = &cp
		return nil
	})
}

func (s *invitationStore) ListPendingByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	var out []*models.Invitation
	err := s.acc().run(func(d *data) error {
		for _, inv := range d.invitations {
			if inv.OrganizationID == orgID && inv.Status == models.InvitationStatusPending {
				cp := *inv
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

type licenseStore struct {
	root *MemoryStore
	tx   *txStore
}

func (s *licenseStore) acc() access { return access{root: s.root, tx: s.tx} }

func (s *licenseStore) Create(ctx context.Context, license *models.License) error {
	return s.acc().run(func(d *data) error {
		if license.ID == "" {
			license.ID = uuid.New().String()
		}
		for _, existing := range d.licenses {
			if existing.Key == license.Key {
				return store.ErrDuplicateKey
			}
		}
		d.licenses[license.ID] = cloneLicense(license)
		return nil
	})
}

func (s *licenseStore) GetByKey(ctx context.Context, key string) (*models.License, error) {
	var out *models.License
	err := s.acc().run(func(d *data) error {
		for _, license := range d.licenses {
			if license.Key == key {
				out = cloneLicense(license)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (s *licenseStore) ListByOrg(ctx context.Context, orgID string) ([]*models.License, error) {
	var out []*models.License
	err := s.acc().run(func(d *data) error {
		for _, license := range d.licenses {
			if license.OrganizationID == orgID {
				out = append(out, cloneLicense(license))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, err
}

// Bind performs the check-and-set under the store mutex, so at most one
// machine wins a concurrent first bind.
func (s *licenseStore) Bind(ctx context.Context, id, machineID, username string, now time.Time) (bool, error) {
	bound := false
	err := s.acc().run(func(d *data) error {
		license, ok := d.licenses[id]
		if !ok {
			return store.ErrNotFound
		}
		if license.MachineID != nil {
			return nil
		}
		license.MachineID = &machineID
		license.Username = &username
		license.LastActivity = &now
		bound = true
		return nil
	})
	return bound, err
}

func (s *licenseStore) TouchActivity(ctx context.Context, id string, now time.Time) error {
	return s.acc().run(func(d *data) error {
		license, ok := d.licenses[id]
		if !ok {
			return store.ErrNotFound
		}
		license.LastActivity = &now
		return nil
	})
}
