package payments

import (
	"context"
	"fmt"
	"sync"
)

const (
	OpCreateAccount   = "create_account"
	OpOnboardingLink  = "onboarding_link"
	OpCreateProduct   = "create_product"
	OpUpdateProduct   = "update_product"
	OpFindProduct     = "find_product"
	OpDeleteProduct   = "delete_product"
	OpArchiveProduct  = "archive_product"
	OpCreatePrice     = "create_price"
	OpUpdatePrice     = "update_price"
	OpDeactivatePrice = "deactivate_price"
	OpCreateSession   = "create_session"
	OpExpireSession   = "expire_session"
	OpListCharges     = "list_charges"
)

type FakeProduct struct {
	ID      string
	Account string
	LocalID string
	Name    string
	Active  bool
	Deleted bool
}

type FakePrice struct {
	ID         string
	Account    string
	ProductID  string
	UnitAmount int64
	Currency   string
	Active     bool
	Metadata   map[string]string
}

type FakeSession struct {
	Session
	Params  SessionParams
	Expired bool
}

type failure struct {
	after int
	err   error
}

// Fake is an in-memory Processor that records calls and can be told to fail.
type Fake struct {
	mu       sync.Mutex
	seq      int
	calls    map[string]int
	failures map[string]failure

	Products map[string]*FakeProduct
	Prices   map[string]*FakePrice
	Sessions []*FakeSession
	Charges  map[string][]Charge
}

func NewFake() *Fake {
	return &Fake{
		calls:    map[string]int{},
		failures: map[string]failure{},
		Products: map[string]*FakeProduct{},
		Prices:   map[string]*FakePrice{},
		Charges:  map[string][]Charge{},
	}
}

// FailOn makes every call of op fail with err.
func (f *Fake) FailOn(op string, err error) {
	f.FailAfter(op, 0, err)
}

// FailAfter lets n calls of op succeed and fails the following ones.
func (f *Fake) FailAfter(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = failure{after: n, err: err}
}

func (f *Fake) Reset(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, op)
}

func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ActivePrices returns the non-archived prices of a remote product.
func (f *Fake) ActivePrices(productID string) []FakePrice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakePrice
	for _, p := range f.Prices {
		if p.ProductID == productID && p.Active {
			out = append(out, *p)
		}
	}
	return out
}

func (f *Fake) Price(id string) (FakePrice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Prices[id]
	if !ok {
		return FakePrice{}, false
	}
	return *p, true
}

func (f *Fake) Product(id string) (FakeProduct, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Products[id]
	if !ok {
		return FakeProduct{}, false
	}
	return *p, true
}

// call must be made with f.mu held.
func (f *Fake) call(op string) error {
	f.calls[op]++
	if fl, ok := f.failures[op]; ok && f.calls[op] > fl.after {
		return fl.err
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) CreateAccount(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpCreateAccount); err != nil {
		return "", err
	}
	return f.nextID("acct"), nil
}

func (f *Fake) CreateOnboardingLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpOnboardingLink); err != nil {
		return "", err
	}
	return "https://connect.example/onboarding/" + accountID, nil
}

func (f *Fake) CreateProduct(_ context.Context, accountID string, p ProductParams) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpCreateProduct); err != nil {
		return "", err
	}
	id := f.nextID("prod")
	f.Products[id] = &FakeProduct{ID: id, Account: accountID, LocalID: p.LocalID, Name: p.Name, Active: true}
	return id, nil
}

func (f *Fake) UpdateProduct(_ context.Context, accountID, productID string, p ProductParams) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpUpdateProduct); err != nil {
		return err
	}
	prod, ok := f.Products[productID]
	if !ok || prod.Deleted || prod.Account != accountID {
		return ErrNotFound
	}
	prod.Name = p.Name
	if p.LocalID != "" {
		prod.LocalID = p.LocalID
	}
	return nil
}

func (f *Fake) FindProductByLocalID(_ context.Context, accountID, localID string) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpFindProduct); err != nil {
		return "", err
	}
	for _, p := range f.Products {
		if p.Account == accountID && p.LocalID == localID && !p.Deleted {
			return p.ID, nil
		}
	}
	return "", ErrNotFound
}

func (f *Fake) DeleteProduct(_ context.Context, accountID, productID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpDeleteProduct); err != nil {
		return err
	}
	prod, ok := f.Products[productID]
	if !ok || prod.Deleted {
		return ErrNotFound
	}
	prod.Deleted = true
	prod.Active = false
	return nil
}

func (f *Fake) ArchiveProduct(_ context.Context, accountID, productID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpArchiveProduct); err != nil {
		return err
	}
	prod, ok := f.Products[productID]
	if !ok || prod.Deleted {
		return ErrNotFound
	}
	prod.Active = false
	return nil
}

func (f *Fake) CreatePrice(_ context.Context, accountID string, p PriceParams) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpCreatePrice); err != nil {
		return "", err
	}
	id := f.nextID("price")
	f.Prices[id] = &FakePrice{
		ID:         id,
		Account:    accountID,
		ProductID:  p.ProductID,
		UnitAmount: p.UnitAmount,
		Currency:   p.Currency,
		Active:     true,
		Metadata:   copyMeta(p.Metadata),
	}
	return id, nil
}

func (f *Fake) UpdatePriceMetadata(_ context.Context, accountID, priceID string, metadata map[string]string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpUpdatePrice); err != nil {
		return err
	}
	p, ok := f.Prices[priceID]
	if !ok {
		return ErrNotFound
	}
	p.Metadata = copyMeta(metadata)
	return nil
}

func (f *Fake) DeactivatePrice(_ context.Context, accountID, priceID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpDeactivatePrice); err != nil {
		return err
	}
	p, ok := f.Prices[priceID]
	if !ok {
		return ErrNotFound
	}
	p.Active = false
	return nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, p SessionParams) (*Session, error) {
	if err := requireAccount(p.DestinationAccount); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpCreateSession); err != nil {
		return nil, err
	}
	id := f.nextID("cs")
	s := &FakeSession{Session: Session{ID: id, URL: "https://checkout.example/" + id}, Params: p}
	f.Sessions = append(f.Sessions, s)
	return &s.Session, nil
}

func (f *Fake) ExpireCheckoutSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpExpireSession); err != nil {
		return err
	}
	for _, s := range f.Sessions {
		if s.ID == sessionID {
			s.Expired = true
			return nil
		}
	}
	return ErrNotFound
}

func (f *Fake) ListRecentCharges(_ context.Context, accountID string, limit int64) ([]Charge, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(OpListCharges); err != nil {
		return nil, err
	}
	charges := f.Charges[accountID]
	if int64(len(charges)) > limit {
		charges = charges[:limit]
	}
	return append([]Charge(nil), charges...), nil
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
