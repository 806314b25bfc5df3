// Package memory is an in-process store that serves the same interfaces as
// the Postgres repositories. Settlements are all-or-nothing: the transaction
// works on a copy of the data that replaces the live copy only on success.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories"
)

// Store holds every entity in maps guarded by one mutex.
type Store struct {
	mu     sync.Mutex
	data   *state
	failOn map[string]error
	now    func() time.Time
}

type cartRecord struct {
	id            int64
	studentID     int64
	lines         []models.TicketLine
	membershipIDs []int64
	updatedAt     time.Time
}

type state struct {
	nextID       int64
	events       map[int64]*models.Event
	coOrganizers map[int64][]int64
	societies    map[int64]*models.Society
	students     map[int64]*models.Student
	carts        map[int64]*cartRecord // by student id
	orders       map[int64]*models.SettledOrder
	historical   map[int64]*models.HistoricalCart // by order id
	payments     map[int64]*models.Payment        // by order id
	tickets      []*models.Ticket
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: &state{
			events:       make(map[int64]*models.Event),
			coOrganizers: make(map[int64][]int64),
			societies:    make(map[int64]*models.Society),
			students:     make(map[int64]*models.Student),
			carts:        make(map[int64]*cartRecord),
			orders:       make(map[int64]*models.SettledOrder),
			historical:   make(map[int64]*models.HistoricalCart),
			payments:     make(map[int64]*models.Payment),
		},
		failOn: make(map[string]error),
		now:    time.Now,
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
// Operation names are the method names, e.g. "CreateTickets".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

func (s *Store) fail(op string) error {
	return s.failOn[op]
}

func (st *state) id(given int64) int64 {
	if given == 0 {
		st.nextID++
		return st.nextID
	}
	if given > st.nextID {
		st.nextID = given
	}
	return given
}

func (st *state) clone() *state {
	out := &state{
		nextID:       st.nextID,
		events:       make(map[int64]*models.Event, len(st.events)),
		coOrganizers: make(map[int64][]int64, len(st.coOrganizers)),
		societies:    make(map[int64]*models.Society, len(st.societies)),
		students:     make(map[int64]*models.Student, len(st.students)),
		carts:        make(map[int64]*cartRecord, len(st.carts)),
		orders:       make(map[int64]*models.SettledOrder, len(st.orders)),
		historical:   make(map[int64]*models.HistoricalCart, len(st.historical)),
		payments:     make(map[int64]*models.Payment, len(st.payments)),
		tickets:      append([]*models.Ticket(nil), st.tickets...),
	}
	for id, e := range st.events {
		out.events[id] = cloneEvent(e)
	}
	for id, ids := range st.coOrganizers {
		out.coOrganizers[id] = append([]int64(nil), ids...)
	}
	for id, soc := range st.societies {
		out.societies[id] = cloneSociety(soc)
	}
	for id, stu := range st.students {
		out.students[id] = cloneStudent(stu)
	}
	for id, c := range st.carts {
		out.carts[id] = c.clone()
	}
	// Orders, snapshots, payments and tickets are write-once.
	for id, o := range st.orders {
		out.orders[id] = o
	}
	for id, h := range st.historical {
		out.historical[id] = h
	}
	for id, p := range st.payments {
		out.payments[id] = p
	}
	return out
}

func (c *cartRecord) clone() *cartRecord {
	out := *c
	out.lines = append([]models.TicketLine(nil), c.lines...)
	out.membershipIDs = append([]int64(nil), c.membershipIDs...)
	return &out
}

func cloneEvent(e *models.Event) *models.Event {
	out := *e
	out.Host = nil
	out.CoOrganizers = nil
	return &out
}

func cloneSociety(s *models.Society) *models.Society {
	out := *s
	out.RegularMembers = s.RegularMembers.Clone()
	out.CommitteeMembers = s.CommitteeMembers.Clone()
	out.Followers = s.Followers.Clone()
	out.Subscribers = s.Subscribers.Clone()
	return &out
}

func cloneStudent(s *models.Student) *models.Student {
	out := *s
	out.Memberships = s.Memberships.Clone()
	out.PurchasedEvents = s.PurchasedEvents.Clone()
	out.DiscountedEvents = s.DiscountedEvents.Clone()
	out.SavedEvents = s.SavedEvents.Clone()
	return &out
}

func cloneHistorical(h *models.HistoricalCart) *models.HistoricalCart {
	out := *h
	out.TicketLines = append([]models.HistoricalTicketLine(nil), h.TicketLines...)
	out.Memberships = append([]models.HistoricalMembership(nil), h.Memberships...)
	out.Discounts = h.Discounts.Clone()
	return &out
}

// Seeding

// AddSociety stores a society, assigning an id when it has none.
func (s *Store) AddSociety(soc *models.Society) *models.Society {
	s.mu.Lock()
	defer s.mu.Unlock()

	soc.ID = s.data.id(soc.ID)
	stored := cloneSociety(soc)
	for _, set := range []*models.IDSet{&stored.RegularMembers, &stored.CommitteeMembers, &stored.Followers, &stored.Subscribers} {
		if *set == nil {
			*set = models.NewIDSet()
		}
	}
	s.data.societies[soc.ID] = stored
	return soc
}

// AddEvent stores an event hosted by event.HostID and co-organized by the given societies.
func (s *Store) AddEvent(event *models.Event, coOrganizerIDs ...int64) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.data.id(event.ID)
	if event.Status == "" {
		event.Status = models.EventActive
	}
	s.data.events[event.ID] = cloneEvent(event)
	s.data.coOrganizers[event.ID] = append([]int64(nil), coOrganizerIDs...)
	return event
}

// AddStudent stores a student.
func (s *Store) AddStudent(student *models.Student) *models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()

	student.ID = s.data.id(student.ID)
	stored := cloneStudent(student)
	for _, set := range []*models.IDSet{&stored.Memberships, &stored.PurchasedEvents, &stored.DiscountedEvents, &stored.SavedEvents} {
		if *set == nil {
			*set = models.NewIDSet()
		}
	}
	for societyID := range stored.Memberships {
		if soc, ok := s.data.societies[societyID]; ok {
			soc.RegularMembers.Add(stored.ID)
		}
	}
	s.data.students[student.ID] = stored
	return student
}

// CreateSociety validates and stores a society.
func (s *Store) CreateSociety(_ context.Context, soc *models.Society) error {
	if err := soc.Validate(); err != nil {
		return err
	}
	s.AddSociety(soc)
	return nil
}

// CreateEvent validates and stores an event.
func (s *Store) CreateEvent(_ context.Context, event *models.Event, coOrganizerIDs []int64) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.AddEvent(event, coOrganizerIDs...)
	return nil
}

// CreateStudent stores a student.
func (s *Store) CreateStudent(_ context.Context, student *models.Student) error {
	s.AddStudent(student)
	return nil
}

// AddMember adds the student to one of the society's member collections.
func (s *Store) AddMember(_ context.Context, societyID, studentID int64, role models.MemberRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	soc, ok := s.data.societies[societyID]
	if !ok {
		return models.ErrSocietyNotFound
	}
	switch role {
	case models.RoleRegular:
		s.data.addRegularMember(societyID, studentID)
	case models.RoleCommittee:
		soc.CommitteeMembers.Add(studentID)
	case models.RoleFollower:
		soc.Followers.Add(studentID)
	case models.RoleSubscriber:
		soc.Subscribers.Add(studentID)
	}
	return nil
}

// SaveEvent bookmarks an event for the student.
func (s *Store) SaveEvent(_ context.Context, studentID, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stu, ok := s.data.students[studentID]
	if !ok {
		return models.ErrStudentNotFound
	}
	stu.SavedEvents.Add(eventID)
	return nil
}

// Events and societies

func (st *state) hydrateEvent(e *models.Event) *models.Event {
	out := cloneEvent(e)
	if host, ok := st.societies[e.HostID]; ok {
		out.Host = cloneSociety(host)
	}
	for _, id := range st.coOrganizers[e.ID] {
		if soc, ok := st.societies[id]; ok {
			out.CoOrganizers = append(out.CoOrganizers, cloneSociety(soc))
		}
	}
	return out
}

// GetEvent returns the event with its organizers.
func (s *Store) GetEvent(_ context.Context, id int64) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("GetEvent"); err != nil {
		return nil, err
	}
	e, ok := s.data.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	return s.data.hydrateEvent(e), nil
}

// UpdateEvent replaces the stored event details.
func (s *Store) UpdateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("UpdateEvent"); err != nil {
		return err
	}
	if _, ok := s.data.events[event.ID]; !ok {
		return models.ErrEventNotFound
	}
	s.data.events[event.ID] = cloneEvent(event)
	return nil
}

// GetSociety returns a society with its member sets.
func (s *Store) GetSociety(_ context.Context, id int64) (*models.Society, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	soc, ok := s.data.societies[id]
	if !ok {
		return nil, models.ErrSocietyNotFound
	}
	return cloneSociety(soc), nil
}

// Students

// GetStudent returns the student with memberships and event flags.
func (s *Store) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("GetStudent"); err != nil {
		return nil, err
	}
	stu, ok := s.data.students[id]
	if !ok {
		return nil, models.ErrStudentNotFound
	}
	return cloneStudent(stu), nil
}

// ListEventBuyers returns students who bought tickets for the event, by id.
func (s *Store) ListEventBuyers(_ context.Context, eventID int64) ([]*models.Student, error) {
	return s.listStudents(func(stu *models.Student) bool { return stu.PurchasedEvents.Has(eventID) }), nil
}

// ListEventSavers returns students who saved the event, by id.
func (s *Store) ListEventSavers(_ context.Context, eventID int64) ([]*models.Student, error) {
	return s.listStudents(func(stu *models.Student) bool { return stu.SavedEvents.Has(eventID) }), nil
}

func (s *Store) listStudents(match func(*models.Student) bool) []*models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Student
	for _, stu := range s.data.students {
		if match(stu) {
			out = append(out, cloneStudent(stu))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Carts

func (st *state) cartFor(studentID int64, now time.Time) *cartRecord {
	c, ok := st.carts[studentID]
	if !ok {
		c = &cartRecord{id: st.id(0), studentID: studentID, updatedAt: now}
		st.carts[studentID] = c
	}
	return c
}

func (st *state) cartByID(cartID int64) *cartRecord {
	for _, c := range st.carts {
		if c.id == cartID {
			return c
		}
	}
	return nil
}

func (st *state) hydrateCart(c *cartRecord) *models.Cart {
	cart := &models.Cart{ID: c.id, StudentID: c.studentID, UpdatedAt: c.updatedAt}
	for _, l := range c.lines {
		line := l
		if e, ok := st.events[l.EventID]; ok {
			line.Event = st.hydrateEvent(e)
		}
		cart.TicketLines = append(cart.TicketLines, &line)
	}
	for _, id := range c.membershipIDs {
		if soc, ok := st.societies[id]; ok {
			cart.Memberships = append(cart.Memberships, cloneSociety(soc))
		}
	}
	return cart
}

// GetOrCreateCart returns the student's cart, creating an empty one on first use.
func (s *Store) GetOrCreateCart(_ context.Context, studentID int64) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("GetOrCreateCart"); err != nil {
		return nil, err
	}
	return s.data.hydrateCart(s.data.cartFor(studentID, s.now())), nil
}

// SaveTicketLine inserts or updates the cart's line for line.EventID.
func (s *Store) SaveTicketLine(_ context.Context, cartID int64, line *models.TicketLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("SaveTicketLine"); err != nil {
		return err
	}
	c := s.data.cartByID(cartID)
	if c == nil {
		return models.ErrCartLineNotFound
	}

	line.CartID = cartID
	for i := range c.lines {
		if c.lines[i].EventID == line.EventID {
			line.ID = c.lines[i].ID
			c.lines[i].Quantities = line.Quantities
			c.updatedAt = s.now()
			return nil
		}
	}

	line.ID = s.data.id(0)
	c.lines = append(c.lines, models.TicketLine{ID: line.ID, CartID: cartID, EventID: line.EventID, Quantities: line.Quantities})
	c.updatedAt = s.now()
	return nil
}

// DeleteTicketLine removes a line from the cart.
func (s *Store) DeleteTicketLine(_ context.Context, cartID, lineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.data.cartByID(cartID)
	if c == nil {
		return models.ErrCartLineNotFound
	}
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			c.updatedAt = s.now()
			return nil
		}
	}
	return models.ErrCartLineNotFound
}

// AddMembership puts a society membership in the cart.
func (s *Store) AddMembership(_ context.Context, cartID, societyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.data.cartByID(cartID)
	if c == nil {
		return models.ErrCartLineNotFound
	}
	if _, ok := s.data.societies[societyID]; !ok {
		return models.ErrSocietyNotFound
	}
	for _, id := range c.membershipIDs {
		if id == societyID {
			return nil
		}
	}
	c.membershipIDs = append(c.membershipIDs, societyID)
	c.updatedAt = s.now()
	return nil
}

// RemoveMembership takes a society membership out of the cart.
func (s *Store) RemoveMembership(_ context.Context, cartID, societyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.data.cartByID(cartID)
	if c == nil {
		return models.ErrCartLineNotFound
	}
	for i, id := range c.membershipIDs {
		if id == societyID {
			c.membershipIDs = append(c.membershipIDs[:i], c.membershipIDs[i+1:]...)
			c.updatedAt = s.now()
			break
		}
	}
	return nil
}

// PurgeEventLines deletes every cart line for the event and returns them.
func (s *Store) PurgeEventLines(_ context.Context, eventID int64) ([]*models.TicketLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []*models.TicketLine
	for _, c := range s.data.carts {
		kept := c.lines[:0]
		for _, l := range c.lines {
			if l.EventID == eventID {
				line := l
				purged = append(purged, &line)
				continue
			}
			kept = append(kept, l)
		}
		c.lines = kept
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i].ID < purged[j].ID })
	return purged, nil
}

// Tickets and orders

func (st *state) countSold(eventID int64) models.Quantities {
	var sold models.Quantities
	for _, t := range st.tickets {
		if t.EventID == eventID {
			sold = sold.Add(t.Class, 1)
		}
	}
	return sold
}

// CountSold returns the number of issued tickets per class for an event.
func (s *Store) CountSold(_ context.Context, eventID int64) (models.Quantities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("CountSold"); err != nil {
		return models.Quantities{}, err
	}
	return s.data.countSold(eventID), nil
}

// Tickets returns the tickets issued for an event.
func (s *Store) Tickets(eventID int64) []*models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Ticket
	for _, t := range s.data.tickets {
		if t.EventID == eventID {
			ticket := *t
			out = append(out, &ticket)
		}
	}
	return out
}

// Orders returns every settled order, oldest first.
func (s *Store) Orders() []*models.SettledOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.SettledOrder, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		order := *o
		out = append(out, &order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments returns every payment record.
func (s *Store) Payments() []*models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Payment, 0, len(s.data.payments))
	for _, p := range s.data.payments {
		payment := *p
		out = append(out, &payment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetOrderDetails reads back an order by its number.
func (s *Store) GetOrderDetails(_ context.Context, orderNumber string) (*repositories.OrderDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.data.orders {
		if o.OrderNumber != orderNumber {
			continue
		}
		order := *o
		details := &repositories.OrderDetails{Order: &order}
		if h, ok := s.data.historical[o.ID]; ok {
			details.HistoricalCart = cloneHistorical(h)
		}
		if p, ok := s.data.payments[o.ID]; ok {
			payment := *p
			details.Payment = &payment
		}
		for _, t := range s.data.tickets {
			if t.OrderID == o.ID {
				ticket := *t
				details.Tickets = append(details.Tickets, &ticket)
			}
		}
		return details, nil
	}
	return nil, models.ErrOrderNotFound
}

// Settle runs fn against a private copy of the store. The copy replaces the
// live data only when fn returns nil. The store stays locked throughout, so
// settlements are serialised.
func (s *Store) Settle(ctx context.Context, fn func(tx repositories.SettlementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("Settle"); err != nil {
		return err
	}

	tx := &settlementTx{store: s, data: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type settlementTx struct {
	store *Store
	data  *state
}

func (tx *settlementTx) LockInventory(_ context.Context, eventID int64) (*models.InventorySnapshot, error) {
	if err := tx.store.fail("LockInventory"); err != nil {
		return nil, err
	}
	e, ok := tx.data.events[eventID]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	return &models.InventorySnapshot{
		EventID:  eventID,
		Status:   e.Status,
		Capacity: e.Capacity(),
		Sold:     tx.data.countSold(eventID),
	}, nil
}

func (tx *settlementTx) CreateOrder(_ context.Context, order *models.SettledOrder) error {
	if err := tx.store.fail("CreateOrder"); err != nil {
		return err
	}
	for _, o := range tx.data.orders {
		if o.OrderNumber == order.OrderNumber {
			return models.ErrDuplicateOrderNumber
		}
	}
	order.ID = tx.data.id(0)
	stored := *order
	tx.data.orders[order.ID] = &stored
	return nil
}

func (tx *settlementTx) CreateHistoricalCart(_ context.Context, h *models.HistoricalCart) error {
	if err := tx.store.fail("CreateHistoricalCart"); err != nil {
		return err
	}
	h.ID = tx.data.id(0)
	tx.data.historical[h.OrderID] = cloneHistorical(h)
	return nil
}

func (tx *settlementTx) CreatePayment(_ context.Context, p *models.Payment) error {
	if err := tx.store.fail("CreatePayment"); err != nil {
		return err
	}
	p.ID = tx.data.id(0)
	stored := *p
	tx.data.payments[p.OrderID] = &stored
	return nil
}

func (tx *settlementTx) CreateTickets(_ context.Context, tickets []*models.Ticket) error {
	if err := tx.store.fail("CreateTickets"); err != nil {
		return err
	}
	for _, t := range tickets {
		t.ID = tx.data.id(0)
		stored := *t
		tx.data.tickets = append(tx.data.tickets, &stored)
	}
	return nil
}

func (tx *settlementTx) MarkPurchased(_ context.Context, studentID, eventID int64, discounted bool) error {
	if err := tx.store.fail("MarkPurchased"); err != nil {
		return err
	}
	stu, ok := tx.data.students[studentID]
	if !ok {
		return models.ErrStudentNotFound
	}
	stu.PurchasedEvents.Add(eventID)
	if discounted {
		stu.DiscountedEvents.Add(eventID)
	}
	return nil
}

func (tx *settlementTx) AddRegularMember(_ context.Context, societyID, studentID int64) error {
	if err := tx.store.fail("AddRegularMember"); err != nil {
		return err
	}
	if _, ok := tx.data.societies[societyID]; !ok {
		return models.ErrSocietyNotFound
	}
	tx.data.addRegularMember(societyID, studentID)
	return nil
}

func (tx *settlementTx) ClearCart(_ context.Context, settled *models.Cart) error {
	if err := tx.store.fail("ClearCart"); err != nil {
		return err
	}
	c := tx.data.cartByID(settled.ID)
	if c == nil {
		return models.NewCartChangedError()
	}
	for _, line := range settled.TicketLines {
		i := slices.IndexFunc(c.lines, func(l models.TicketLine) bool {
			return l.ID == line.ID && l.Quantities == line.Quantities
		})
		if i < 0 {
			return models.NewCartChangedError()
		}
		c.lines = slices.Delete(c.lines, i, i+1)
	}
	for _, soc := range settled.Memberships {
		i := slices.Index(c.membershipIDs, soc.ID)
		if i < 0 {
			return models.NewCartChangedError()
		}
		c.membershipIDs = slices.Delete(c.membershipIDs, i, i+1)
	}
	c.updatedAt = tx.store.now()
	return nil
}

func (st *state) addRegularMember(societyID, studentID int64) {
	if soc, ok := st.societies[societyID]; ok {
		soc.RegularMembers.Add(studentID)
	}
	if stu, ok := st.students[studentID]; ok {
		stu.Memberships.Add(societyID)
	}
}
