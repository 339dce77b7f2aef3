package httpapi

import (
	"context"
	"sync"

	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/checkout"
)

// Session is one shopper's cart and checkout machine.
type Session struct {
	Cart    *cart.Service
	Machine *checkout.Machine
}

// MachineFactory builds the checkout machine of a new session around its
// store. creds yields the session owner.
type MachineFactory func(store *cart.Store, creds auth.CredentialStore) *checkout.Machine

// Registry holds sessions keyed by shopper email.
type Registry struct {
	backend    cart.Backend
	newMachine MachineFactory

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(backend cart.Backend, newMachine MachineFactory) *Registry {
	return &Registry{
		backend:    backend,
		newMachine: newMachine,
		sessions:   make(map[string]*Session),
	}
}

// Session returns the shopper's session, creating it on first use. A known
// cart id fills in one the session has not resolved yet.
func (r *Registry) Session(email, cartID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[email]; ok {
		if cartID != "" && s.Cart.Owner().CartID == "" {
			s.Cart.SetCartID(cartID)
		}
		return s
	}

	store := cart.NewStore()
	svc := cart.NewService(store, r.backend, cart.Owner{Email: email, CartID: cartID})
	s := &Session{
		Cart:    svc,
		Machine: r.newMachine(store, ownerCredentials{svc: svc}),
	}
	r.sessions[email] = s
	return s
}

// ByIntent finds the session whose machine holds the attempt for intentID.
func (r *Registry) ByIntent(intentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if a, ok := s.Machine.Attempt(); ok && a.IntentID == intentID {
			return s, true
		}
	}
	return nil, false
}

// ownerCredentials identifies the machine with its session's cart owner, so
// attempts resumed outside an authenticated request still carry it.
type ownerCredentials struct {
	svc *cart.Service
}

func (o ownerCredentials) Credentials(ctx context.Context) (auth.Credentials, error) {
	owner := o.svc.Owner()
	if owner.Email == "" || owner.CartID == "" {
		return auth.Credentials{}, auth.ErrNoCredentials
	}
	creds := auth.Credentials{Email: owner.Email, CartID: owner.CartID}
	if c, ok := auth.FromContext(ctx); ok && c.Email == owner.Email {
		creds.Token = c.Token
	}
	return creds, nil
}
