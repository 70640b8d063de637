package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
)

type fakeState struct {
	clients         map[int64]Contact
	freelancers     map[int64]Contact
	clientCards     map[int64]bool
	freelancerCards map[int64]bool
	gigs            map[int64]Gig
	orders          map[int64]Order
	payments        map[int64]decimal.Decimal
	history         []HistoryRecord
	reviews         []Review
	nextID          int64
}

func (st *fakeState) clone() fakeState {
	c := fakeState{
		clients:         make(map[int64]Contact, len(st.clients)),
		freelancers:     make(map[int64]Contact, len(st.freelancers)),
		clientCards:     make(map[int64]bool, len(st.clientCards)),
		freelancerCards: make(map[int64]bool, len(st.freelancerCards)),
		gigs:            make(map[int64]Gig, len(st.gigs)),
		orders:          make(map[int64]Order, len(st.orders)),
		payments:        make(map[int64]decimal.Decimal, len(st.payments)),
		history:         append([]HistoryRecord(nil), st.history...),
		reviews:         append([]Review(nil), st.reviews...),
		nextID:          st.nextID,
	}
	for k, v := range st.clients {
		c.clients[k] = v
	}
	for k, v := range st.freelancers {
		c.freelancers[k] = v
	}
	for k, v := range st.clientCards {
		c.clientCards[k] = v
	}
	for k, v := range st.freelancerCards {
		c.freelancerCards[k] = v
	}
	for k, v := range st.gigs {
		c.gigs[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

// fakeStore runs transactions one at a time and restores a snapshot when one
// fails, which gives the same observable guarantees as the Postgres store.
type fakeStore struct {
	mu        sync.Mutex
	st        fakeState
	published []alerts.Event
	// failOn makes the named Tx method return the error.
	failOn map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		st: fakeState{
			clients:         map[int64]Contact{},
			freelancers:     map[int64]Contact{},
			clientCards:     map[int64]bool{},
			freelancerCards: map[int64]bool{},
			gigs:            map[int64]Gig{},
			orders:          map[int64]Order{},
			payments:        map[int64]decimal.Decimal{},
			nextID:          1000,
		},
		failOn: map[string]error{},
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &fakeTx{s: s}
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	s.published = append(s.published, tx.events...)
	return nil
}

// seed helpers

func (s *fakeStore) addClient(id int64, name string, card bool) {
	s.st.clients[id] = Contact{ID: id, Name: name, Email: fmt.Sprintf("%s@example.com", name)}
	if card {
		s.st.clientCards[id] = true
	}
}

func (s *fakeStore) addFreelancer(id int64, name string, card bool) {
	s.st.freelancers[id] = Contact{ID: id, Name: name, Email: fmt.Sprintf("%s@example.com", name)}
	if card {
		s.st.freelancerCards[id] = true
	}
}

func (s *fakeStore) addGig(id, freelancerID int64, title string, price string) {
	s.st.gigs[id] = Gig{
		ID:           id,
		FreelancerID: freelancerID,
		Title:        title,
		Description:  title + " description",
		Price:        decimal.RequireFromString(price),
		Type:         GigFixed,
		CreatedAt:    time.Now(),
	}
}

func (s *fakeStore) addOrder(id, gigID, clientID int64, status OrderStatus, amount string) {
	g := s.st.gigs[gigID]
	s.st.orders[id] = Order{
		ID:           id,
		GigID:        gigID,
		FreelancerID: g.FreelancerID,
		ClientID:     clientID,
		Status:       status,
		Description:  "brief",
		CreatedAt:    time.Now(),
	}
	s.st.payments[id] = decimal.RequireFromString(amount)
}

func (s *fakeStore) pendingFor(clientID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.st.orders {
		if o.ClientID == clientID && o.Status == StatusPending {
			n++
		}
	}
	return n
}

func (s *fakeStore) historyFor(orderID int64) []HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoryRecord
	for _, h := range s.st.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

func (s *fakeStore) events() []alerts.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alerts.Event(nil), s.published...)
}

type fakeTx struct {
	s      *fakeStore
	events []alerts.Event
}

func (t *fakeTx) fail(op string) error {
	if err, ok := t.s.failOn[op]; ok {
		return err
	}
	return nil
}

func (t *fakeTx) id() int64 {
	t.s.st.nextID++
	return t.s.st.nextID
}

func (t *fakeTx) LockClient(_ context.Context, clientID int64) (Contact, error) {
	if err := t.fail("LockClient"); err != nil {
		return Contact{}, err
	}
	c, ok := t.s.st.clients[clientID]
	if !ok {
		return Contact{}, fmt.Errorf("client %d: %w", clientID, ErrNotFound)
	}
	return c, nil
}

func (t *fakeTx) CountPendingOrders(_ context.Context, clientID int64) (int, error) {
	n := 0
	for _, o := range t.s.st.orders {
		if o.ClientID == clientID && o.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) HasCard(_ context.Context, role Role, actorID int64) (bool, error) {
	if role == RoleClient {
		return t.s.st.clientCards[actorID], nil
	}
	return t.s.st.freelancerCards[actorID], nil
}

func (t *fakeTx) Contact(_ context.Context, role Role, actorID int64) (Contact, error) {
	m := t.s.st.freelancers
	if role == RoleClient {
		m = t.s.st.clients
	}
	c, ok := m[actorID]
	if !ok {
		return Contact{}, fmt.Errorf("%s %d: %w", role, actorID, ErrNotFound)
	}
	return c, nil
}

func (t *fakeTx) GetGig(_ context.Context, gigID int64) (Gig, error) {
	g, ok := t.s.st.gigs[gigID]
	if !ok {
		return Gig{}, fmt.Errorf("gig %d: %w", gigID, ErrNotFound)
	}
	return g, nil
}

func (t *fakeTx) LockGig(ctx context.Context, gigID int64) (Gig, error) {
	return t.GetGig(ctx, gigID)
}

func (t *fakeTx) InsertGig(_ context.Context, g Gig) (Gig, error) {
	if err := t.fail("InsertGig"); err != nil {
		return Gig{}, err
	}
	g.ID = t.id()
	g.CreatedAt = time.Now()
	t.s.st.gigs[g.ID] = g
	return g, nil
}

func (t *fakeTx) UpdateGig(_ context.Context, g Gig) error {
	if _, ok := t.s.st.gigs[g.ID]; !ok {
		return fmt.Errorf("gig %d: %w", g.ID, ErrNotFound)
	}
	t.s.st.gigs[g.ID] = g
	return nil
}

func (t *fakeTx) DeleteGig(_ context.Context, gigID int64) error {
	delete(t.s.st.gigs, gigID)
	for i, h := range t.s.st.history {
		if h.GigID != nil && *h.GigID == gigID {
			t.s.st.history[i].GigID = nil
		}
	}
	return nil
}

func (t *fakeTx) CountActiveOrdersForGig(_ context.Context, gigID int64) (int, error) {
	n := 0
	for _, o := range t.s.st.orders {
		if o.GigID == gigID && o.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	if err := t.fail("InsertOrder"); err != nil {
		return 0, err
	}
	o.ID = t.id()
	o.CreatedAt = time.Now()
	t.s.st.orders[o.ID] = o
	return o.ID, nil
}

func (t *fakeTx) InsertPayment(_ context.Context, orderID int64, amount decimal.Decimal) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	if _, ok := t.s.st.payments[orderID]; ok {
		return fmt.Errorf("duplicate payment for order %d", orderID)
	}
	t.s.st.payments[orderID] = amount
	return nil
}

func (t *fakeTx) LockOrder(_ context.Context, orderID int64) (OrderRecord, error) {
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return OrderRecord{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	g := t.s.st.gigs[o.GigID]
	return OrderRecord{
		Order:      o,
		Amount:     t.s.st.payments[orderID],
		GigTitle:   g.Title,
		GigOwnerID: g.FreelancerID,
	}, nil
}

func (t *fakeTx) SetOrderStatus(_ context.Context, orderID int64, status OrderStatus) error {
	if err := t.fail("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	o.Status = status
	t.s.st.orders[orderID] = o
	return nil
}

func (t *fakeTx) Archive(_ context.Context, rec OrderRecord, final OrderStatus) error {
	if err := t.fail("Archive"); err != nil {
		return err
	}
	for _, h := range t.s.st.history {
		if h.OrderID == rec.ID {
			return fmt.Errorf("order %d already archived", rec.ID)
		}
	}
	if _, ok := t.s.st.orders[rec.ID]; !ok {
		return fmt.Errorf("order %d: %w", rec.ID, ErrNotFound)
	}
	gigID := rec.GigID
	t.s.st.history = append(t.s.st.history, HistoryRecord{
		ID:           t.id(),
		OrderID:      rec.ID,
		GigID:        &gigID,
		ClientID:     rec.ClientID,
		FreelancerID: rec.FreelancerID,
		Amount:       t.s.st.payments[rec.ID],
		Status:       final,
		ArchivedAt:   time.Now(),
	})
	delete(t.s.st.payments, rec.ID)
	delete(t.s.st.orders, rec.ID)
	return nil
}

func (t *fakeTx) InsertReview(_ context.Context, r Review) error {
	if err := t.fail("InsertReview"); err != nil {
		return err
	}
	r.ID = t.id()
	r.CreatedAt = time.Now()
	t.s.st.reviews = append(t.s.st.reviews, r)
	return nil
}

func (t *fakeTx) Publish(_ context.Context, ev alerts.Event) error {
	if err := t.fail("Publish"); err != nil {
		return err
	}
	t.events = append(t.events, ev)
	return nil
}

// Reader

func (s *fakeStore) gigView(g Gig) GigView {
	name := DeletedUserName
	if f, ok := s.st.freelancers[g.FreelancerID]; ok {
		name = f.Name
	}
	return GigView{
		ID:             g.ID,
		Title:          g.Title,
		Description:    g.Description,
		Price:          g.Price,
		Type:           g.Type,
		FreelancerID:   g.FreelancerID,
		FreelancerName: name,
		CreatedAt:      g.CreatedAt,
	}
}

func (s *fakeStore) orderView(o Order) OrderView {
	title := DeletedGigTitle
	if g, ok := s.st.gigs[o.GigID]; ok {
		title = g.Title
	}
	return OrderView{
		OrderID:        o.ID,
		Status:         o.Status,
		GigID:          o.GigID,
		GigTitle:       title,
		FreelancerName: s.st.freelancers[o.FreelancerID].Name,
		ClientName:     s.st.clients[o.ClientID].Name,
		Amount:         s.st.payments[o.ID],
		Description:    o.Description,
		CreatedAt:      o.CreatedAt,
	}
}

func sortedGigs(m map[int64]Gig, keep func(Gig) bool) []Gig {
	var out []Gig
	for _, g := range m {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *fakeStore) ListGigs(context.Context) ([]GigView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GigView
	for _, g := range sortedGigs(s.st.gigs, func(Gig) bool { return true }) {
		out = append(out, s.gigView(g))
	}
	return out, nil
}

func (s *fakeStore) GetGigView(_ context.Context, gigID int64) (GigView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.st.gigs[gigID]
	if !ok {
		return GigView{}, ErrNotFound
	}
	return s.gigView(g), nil
}

func (s *fakeStore) ListFreelancerGigs(_ context.Context, freelancerID int64) ([]GigView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GigView
	for _, g := range sortedGigs(s.st.gigs, func(g Gig) bool { return g.FreelancerID == freelancerID }) {
		out = append(out, s.gigView(g))
	}
	return out, nil
}

func (s *fakeStore) CountFreelancerGigs(_ context.Context, freelancerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(sortedGigs(s.st.gigs, func(g Gig) bool { return g.FreelancerID == freelancerID })), nil
}

func (s *fakeStore) listOrders(keep func(Order) bool) []OrderView {
	var out []OrderView
	for _, o := range s.st.orders {
		if keep(o) {
			out = append(out, s.orderView(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out
}

func (s *fakeStore) ListClientOrders(_ context.Context, clientID int64, status OrderStatus) ([]OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listOrders(func(o Order) bool { return o.ClientID == clientID && o.Status == status }), nil
}

func (s *fakeStore) ListFreelancerOrders(_ context.Context, freelancerID int64, status OrderStatus) ([]OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listOrders(func(o Order) bool { return o.FreelancerID == freelancerID && o.Status == status }), nil
}

func (s *fakeStore) ClientOrder(_ context.Context, clientID, orderID int64) (OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[orderID]
	if !ok || o.ClientID != clientID {
		return OrderView{}, ErrNotFound
	}
	return s.orderView(o), nil
}

func (s *fakeStore) FreelancerOrder(_ context.Context, freelancerID, orderID int64) (OrderView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[orderID]
	if !ok || o.FreelancerID != freelancerID {
		return OrderView{}, ErrNotFound
	}
	return s.orderView(o), nil
}

func (s *fakeStore) historyViews(keep func(HistoryRecord) bool) []HistoryView {
	var out []HistoryView
	for _, h := range s.st.history {
		if !keep(h) {
			continue
		}
		title := DeletedGigTitle
		if h.GigID != nil {
			if g, ok := s.st.gigs[*h.GigID]; ok {
				title = g.Title
			}
		}
		out = append(out, HistoryView{
			OrderID:        h.OrderID,
			GigTitle:       title,
			FreelancerName: s.st.freelancers[h.FreelancerID].Name,
			ClientName:     s.st.clients[h.ClientID].Name,
			Amount:         h.Amount,
			Status:         h.Status,
			ArchivedAt:     h.ArchivedAt,
		})
	}
	return out
}

func (s *fakeStore) ClientHistory(_ context.Context, clientID int64) ([]HistoryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyViews(func(h HistoryRecord) bool { return h.ClientID == clientID }), nil
}

func (s *fakeStore) FreelancerHistory(_ context.Context, freelancerID int64) ([]HistoryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyViews(func(h HistoryRecord) bool { return h.FreelancerID == freelancerID }), nil
}

func (s *fakeStore) FreelancerReviews(_ context.Context, freelancerID int64) ([]ReviewView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ReviewView
	for _, r := range s.st.reviews {
		if r.FreelancerID == freelancerID {
			out = append(out, ReviewView{Text: r.Text, ClientName: s.st.clients[r.ClientID].Name, CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

var errInjected = errors.New("injected failure")
