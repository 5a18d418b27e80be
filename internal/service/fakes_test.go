package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
	"github.com/boddenberg/listas-backoffice-go/internal/service"
)

// --- In-memory store ---
//
// memStore implements port.Store. WithTx runs fn against the same maps
// and restores a snapshot when fn fails. Rows are copied in and out so
// services only change state through explicit saves.

type memStore struct {
	mu sync.Mutex

	seq          int64
	clients      map[int64]domain.Client
	userServices map[[2]int64]float64
	lists        map[int64]domain.List
	names        map[int64][]domain.NamesList
	groups       map[int64]domain.ListGroup
	services     map[int64]domain.Service
	forms        map[int64]domain.ServiceForm
	submissions  map[int64]domain.Submission
	answers      map[int64][]domain.Answer
	history      []domain.StatusHistory
	logs         []domain.AppLog
	counters     map[string]int64
	charges      map[string]domain.IssuedCharge

	saveListErr error
	txCount     int
}

func newMemStore() *memStore {
	return &memStore{
		clients:      map[int64]domain.Client{},
		userServices: map[[2]int64]float64{},
		lists:        map[int64]domain.List{},
		names:        map[int64][]domain.NamesList{},
		groups:       map[int64]domain.ListGroup{},
		services:     map[int64]domain.Service{},
		forms:        map[int64]domain.ServiceForm{},
		submissions:  map[int64]domain.Submission{},
		answers:      map[int64][]domain.Answer{},
		counters:     map[string]int64{},
		charges:      map[string]domain.IssuedCharge{},
	}
}

func (m *memStore) nextID() int64 {
	m.seq++
	return m.seq
}

type memSnapshot struct {
	clients     map[int64]domain.Client
	lists       map[int64]domain.List
	submissions map[int64]domain.Submission
	answers     map[int64][]domain.Answer
	history     int
	counters    map[string]int64
	charges     map[string]domain.IssuedCharge
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx port.Repos) error) error {
	m.mu.Lock()
	m.txCount++
	snap := memSnapshot{
		clients:     copyMap(m.clients),
		lists:       copyMap(m.lists),
		submissions: copyMap(m.submissions),
		answers:     copyMap(m.answers),
		history:     len(m.history),
		counters:    copyMap(m.counters),
		charges:     copyMap(m.charges),
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.clients, m.lists, m.submissions, m.answers = snap.clients, snap.lists, snap.submissions, snap.answers
		m.history = m.history[:snap.history]
		m.counters, m.charges = snap.counters, snap.charges
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) NextSequence(_ context.Context, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[kind]++
	return m.counters[kind], nil
}

func (m *memStore) GroupPaymentTotal(_ context.Context, gid int64) (*domain.GroupTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &domain.GroupTotal{GroupPaymentID: gid}
	for _, l := range m.lists {
		if l.GroupPaymentID != nil && *l.GroupPaymentID == gid {
			out.Total += l.Price
			out.Lists++
		}
	}
	for _, s := range m.submissions {
		if s.GroupPaymentID != nil && *s.GroupPaymentID == gid {
			out.Total += s.Price
			out.Submissions++
		}
	}
	return out, nil
}

func notFound(resource string, id any) error {
	return &domain.ErrNotFound{Resource: resource, ID: fmt.Sprint(id)}
}

// --- ClientRepo ---

func (m *memStore) CreateClient(_ context.Context, c *domain.Client) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.clients {
		if o.Email == c.Email || o.Document == c.Document {
			return nil, &domain.ErrConflict{Message: "documento ou e-mail já cadastrado"}
		}
	}
	out := *c
	out.ID = m.nextID()
	out.CreatedAt = time.Now()
	m.clients[out.ID] = out
	return &out, nil
}

func (m *memStore) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, notFound("client", id)
	}
	return &c, nil
}

func (m *memStore) GetClientByEmail(_ context.Context, email string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if strings.EqualFold(c.Email, email) {
			return &c, nil
		}
	}
	return nil, notFound("client", email)
}

func (m *memStore) ListClients(_ context.Context, scope domain.Scope) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Client
	for _, c := range m.clients {
		if scope.Allows(c.ID, c.AffiliateID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetUserService(_ context.Context, clientID, serviceID int64) (*domain.UserService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cost, ok := m.userServices[[2]int64{clientID, serviceID}]
	if !ok {
		return nil, notFound("user_service", fmt.Sprintf("%d/%d", clientID, serviceID))
	}
	return &domain.UserService{ClientID: clientID, ServiceID: serviceID, Cost: cost}, nil
}

func (m *memStore) UpsertUserService(_ context.Context, us domain.UserService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userServices[[2]int64{us.ClientID, us.ServiceID}] = us.Cost
	return nil
}

// --- ListRepo ---

func (m *memStore) CreateList(_ context.Context, l *domain.List) (*domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.lists {
		if o.Protocol == l.Protocol {
			return nil, &domain.ErrConflict{Message: "protocolo duplicado"}
		}
	}
	out := *l
	out.ID = m.nextID()
	out.Names = nil
	out.CreatedAt, out.UpdatedAt = time.Now(), time.Now()
	m.lists[out.ID] = out
	return &out, nil
}

func (m *memStore) GetList(_ context.Context, id int64) (*domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, notFound("list", id)
	}
	return &l, nil
}

func (m *memStore) GetListByProtocol(_ context.Context, protocol string) (*domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lists {
		if l.Protocol == protocol {
			return &l, nil
		}
	}
	return nil, notFound("list", protocol)
}

func (m *memStore) GetListForUpdate(ctx context.Context, id int64) (*domain.List, error) {
	return m.GetList(ctx, id)
}

func (m *memStore) FindListByPaymentIDForUpdate(_ context.Context, paymentID string) (*domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lists {
		if l.ListPaymentID != nil && *l.ListPaymentID == paymentID {
			return &l, nil
		}
	}
	if c, ok := m.charges[paymentID]; ok && c.Kind == domain.PayableList {
		if l, ok := m.lists[c.EntityID]; ok {
			return &l, nil
		}
	}
	return nil, notFound("list", paymentID)
}

func (m *memStore) selectLists(keep func(domain.List) bool) []domain.List {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.List
	for _, l := range m.lists {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListsByIDsForUpdate(_ context.Context, ids []int64) ([]domain.List, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.selectLists(func(l domain.List) bool { return want[l.ID] }), nil
}

func (m *memStore) ListsByGroupPaymentForUpdate(_ context.Context, gid int64) ([]domain.List, error) {
	return m.selectLists(func(l domain.List) bool { return l.GroupPaymentID != nil && *l.GroupPaymentID == gid }), nil
}

func (m *memStore) PaidListsInGroupForUpdate(_ context.Context, groupID int64) ([]domain.List, error) {
	return m.selectLists(func(l domain.List) bool {
		return l.Payed && l.ListGroupID != nil && *l.ListGroupID == groupID
	}), nil
}

func (m *memStore) ListLists(_ context.Context, f domain.ListFilter) ([]domain.List, int, error) {
	out := m.selectLists(func(l domain.List) bool {
		if !f.Scope.Allows(l.ClientID, l.AffiliateID) {
			return false
		}
		if f.Status != "" && l.Status != f.Status {
			return false
		}
		return f.GroupID == nil || (l.ListGroupID != nil && *l.ListGroupID == *f.GroupID)
	})
	return out, len(out), nil
}

func (m *memStore) UpdateListContent(_ context.Context, l *domain.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.lists[l.ID]
	if !ok {
		return notFound("list", l.ID)
	}
	cur.Name, cur.Price, cur.NamesQuantity, cur.ListGroupID = l.Name, l.Price, l.NamesQuantity, l.ListGroupID
	cur.UpdatedAt = time.Now()
	l.UpdatedAt = cur.UpdatedAt
	m.lists[l.ID] = cur
	return nil
}

func (m *memStore) SaveListState(_ context.Context, l *domain.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveListErr != nil {
		return m.saveListErr
	}
	if _, ok := m.lists[l.ID]; !ok {
		return notFound("list", l.ID)
	}
	l.UpdatedAt = time.Now()
	out := *l
	out.Names = nil
	m.lists[l.ID] = out
	return nil
}

func (m *memStore) ReplaceNames(_ context.Context, listID int64, names []domain.NamesList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NamesList, len(names))
	for i, n := range names {
		out[i] = domain.NamesList{ID: int64(i + 1), Nome: n.Nome, CPF: n.CPF, ListID: listID}
	}
	m.names[listID] = out
	return nil
}

func (m *memStore) GetNames(_ context.Context, listID int64) ([]domain.NamesList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[listID], nil
}

// --- ListGroupRepo ---

func (m *memStore) CreateListGroup(_ context.Context, g *domain.ListGroup) (*domain.ListGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *g
	out.ID = m.nextID()
	out.CreatedAt = time.Now()
	m.groups[out.ID] = out
	return &out, nil
}

func (m *memStore) GetListGroup(_ context.Context, id int64) (*domain.ListGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, notFound("list_group", id)
	}
	return &g, nil
}

func (m *memStore) GetListGroupForUpdate(ctx context.Context, id int64) (*domain.ListGroup, error) {
	return m.GetListGroup(ctx, id)
}

func (m *memStore) ListListGroups(context.Context) ([]domain.ListGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ListGroup
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) OpenListGroup(_ context.Context, now time.Time) (*domain.ListGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.ListGroup
	for _, g := range m.groups {
		if g.Admin || !g.ExpiresAt.After(now) {
			continue
		}
		if best == nil || g.ExpiresAt.Before(best.ExpiresAt) {
			g := g
			best = &g
		}
	}
	if best == nil {
		return nil, notFound("list_group", "open")
	}
	return best, nil
}

func (m *memStore) SaveListGroupStatus(_ context.Context, id int64, status domain.ListStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return notFound("list_group", id)
	}
	g.Status = status
	m.groups[id] = g
	return nil
}

func (m *memStore) DeleteListGroup(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return notFound("list_group", id)
	}
	for lid, l := range m.lists {
		if l.ListGroupID != nil && *l.ListGroupID == id {
			l.ListGroupID = nil
			m.lists[lid] = l
		}
	}
	delete(m.groups, id)
	return nil
}

// --- CatalogRepo ---

func (m *memStore) CreateService(_ context.Context, s *domain.Service) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *s
	out.ID = m.nextID()
	m.services[out.ID] = out
	return &out, nil
}

func (m *memStore) GetService(_ context.Context, id int64) (*domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, notFound("service", id)
	}
	return &s, nil
}

func (m *memStore) GetServiceForUpdate(ctx context.Context, id int64) (*domain.Service, error) {
	return m.GetService(ctx, id)
}

func (m *memStore) ListServices(context.Context) ([]domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Service
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateForm(_ context.Context, f *domain.ServiceForm) (*domain.ServiceForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := 0
	for _, o := range m.forms {
		if o.ServiceID == f.ServiceID && o.Version > version {
			version = o.Version
		}
	}
	out := *f
	out.ID = m.nextID()
	out.Version = version + 1
	out.Active = false
	out.Fields = make([]domain.FormField, len(f.Fields))
	for i, fd := range f.Fields {
		fd.ID = m.nextID()
		fd.ServiceFormID = out.ID
		fd.Position = i + 1
		out.Fields[i] = fd
	}
	m.forms[out.ID] = out
	return &out, nil
}

func (m *memStore) GetForm(_ context.Context, id int64) (*domain.ServiceForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[id]
	if !ok {
		return nil, notFound("form", id)
	}
	return &f, nil
}

func (m *memStore) GetActiveForm(_ context.Context, serviceID int64) (*domain.ServiceForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.forms {
		if f.ServiceID == serviceID && f.Active {
			return &f, nil
		}
	}
	return nil, notFound("form", serviceID)
}

func (m *memStore) ListForms(_ context.Context, serviceID int64) ([]domain.ServiceForm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ServiceForm
	for _, f := range m.forms {
		if f.ServiceID == serviceID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *memStore) DeactivateForms(_ context.Context, serviceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.forms {
		if f.ServiceID == serviceID {
			f.Active = false
			m.forms[id] = f
		}
	}
	return nil
}

func (m *memStore) ActivateForm(_ context.Context, formID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.forms[formID]
	if !ok {
		return notFound("form", formID)
	}
	f.Active = true
	m.forms[formID] = f
	return nil
}

// --- SubmissionRepo ---

func (m *memStore) CreateSubmission(_ context.Context, s *domain.Submission) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *s
	out.ID = m.nextID()
	out.Answers = nil
	out.CreatedAt, out.UpdatedAt = time.Now(), time.Now()
	m.submissions[out.ID] = out
	return &out, nil
}

func (m *memStore) InsertAnswers(_ context.Context, submissionID int64, answers []domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range answers {
		a.ID = m.nextID()
		a.SubmissionID = submissionID
		m.answers[submissionID] = append(m.answers[submissionID], a)
	}
	return nil
}

func (m *memStore) GetSubmission(_ context.Context, id int64) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, notFound("submission", id)
	}
	return &s, nil
}

func (m *memStore) GetSubmissionForUpdate(ctx context.Context, id int64) (*domain.Submission, error) {
	return m.GetSubmission(ctx, id)
}

func (m *memStore) FindSubmissionByPaymentIDForUpdate(_ context.Context, paymentID string) (*domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.ServicePaymentID != nil && *s.ServicePaymentID == paymentID {
			return &s, nil
		}
	}
	if c, ok := m.charges[paymentID]; ok && c.Kind == domain.PayableSubmission {
		if s, ok := m.submissions[c.EntityID]; ok {
			return &s, nil
		}
	}
	return nil, notFound("submission", paymentID)
}

func (m *memStore) selectSubmissions(keep func(domain.Submission) bool) []domain.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.submissions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) SubmissionsByIDsForUpdate(_ context.Context, ids []int64) ([]domain.Submission, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.selectSubmissions(func(s domain.Submission) bool { return want[s.ID] }), nil
}

func (m *memStore) SubmissionsByGroupPaymentForUpdate(_ context.Context, gid int64) ([]domain.Submission, error) {
	return m.selectSubmissions(func(s domain.Submission) bool {
		return s.GroupPaymentID != nil && *s.GroupPaymentID == gid
	}), nil
}

func (m *memStore) ListSubmissions(_ context.Context, f domain.SubmissionFilter) ([]domain.Submission, int, error) {
	out := m.selectSubmissions(func(s domain.Submission) bool {
		if !f.Scope.Allows(s.UserID, s.AffiliateID) {
			return false
		}
		return f.Status == "" || s.Status == f.Status
	})
	return out, len(out), nil
}

func (m *memStore) SaveSubmissionState(_ context.Context, s *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[s.ID]; !ok {
		return notFound("submission", s.ID)
	}
	s.UpdatedAt = time.Now()
	out := *s
	out.Answers = nil
	m.submissions[s.ID] = out
	return nil
}

func (m *memStore) GetAnswers(_ context.Context, submissionID int64) ([]domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Answer
	for _, a := range m.answers[submissionID] {
		for _, f := range m.forms {
			for _, fd := range f.Fields {
				if fd.ID == a.FormFieldID {
					fd := fd
					a.Field = &fd
				}
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) updateAnswer(submissionID, fieldID int64, fn func(*domain.Answer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	answers := append([]domain.Answer(nil), m.answers[submissionID]...)
	for i := range answers {
		if answers[i].FormFieldID == fieldID {
			fn(&answers[i])
			m.answers[submissionID] = answers
			return nil
		}
	}
	return notFound("answer", fieldID)
}

func (m *memStore) SetAnswerInvalid(_ context.Context, submissionID, fieldID int64, reason string) error {
	return m.updateAnswer(submissionID, fieldID, func(a *domain.Answer) { a.InvalidReason = &reason })
}

func (m *memStore) UpdateAnswerValue(_ context.Context, submissionID, fieldID int64, value string) error {
	return m.updateAnswer(submissionID, fieldID, func(a *domain.Answer) {
		a.Value = value
		a.InvalidReason = nil
	})
}

// --- HistoryRepo, AppLogRepo, DashboardRepo ---

func (m *memStore) AppendHistory(_ context.Context, h domain.StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := h.Kind(); !ok {
		return errors.New("history row must carry exactly one foreign key")
	}
	h.ID = m.nextID()
	m.history = append(m.history, h)
	return nil
}

func (m *memStore) ListHistory(_ context.Context, kind domain.EntityKind, id int64) ([]domain.StatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StatusHistory
	for _, h := range m.history {
		k, _ := h.Kind()
		if k != kind {
			continue
		}
		var ref *int64
		switch k {
		case domain.KindList:
			ref = h.ListID
		case domain.KindListGroup:
			ref = h.ListGroupID
		case domain.KindSubmission:
			ref = h.SubmissionID
		}
		if *ref == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memStore) InsertAppLog(_ context.Context, entry *domain.AppLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) CountByStatus(_ context.Context, kind domain.PayableKind, scope domain.Scope) ([]domain.StatusCount, error) {
	counts := map[string]int{}
	if kind == domain.PayableList {
		for _, l := range m.selectLists(func(l domain.List) bool { return scope.Allows(l.ClientID, l.AffiliateID) }) {
			counts[string(l.Status)]++
		}
	} else {
		for _, s := range m.selectSubmissions(func(s domain.Submission) bool { return scope.Allows(s.UserID, s.AffiliateID) }) {
			counts[string(s.Status)]++
		}
	}
	var out []domain.StatusCount
	for status, n := range counts {
		out = append(out, domain.StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (m *memStore) RevenueByMonth(_ context.Context, kind domain.PayableKind, scope domain.Scope, year int) ([]domain.MonthlyRevenue, error) {
	totals := map[int]float64{}
	if kind == domain.PayableList {
		for _, l := range m.selectLists(func(l domain.List) bool { return l.Payed && scope.Allows(l.ClientID, l.AffiliateID) }) {
			if l.CreatedAt.Year() == year {
				totals[int(l.CreatedAt.Month())] += l.Price
			}
		}
	} else {
		for _, s := range m.selectSubmissions(func(s domain.Submission) bool { return s.Payed && scope.Allows(s.UserID, s.AffiliateID) }) {
			if s.CreatedAt.Year() == year {
				totals[int(s.CreatedAt.Month())] += s.Price
			}
		}
	}
	var out []domain.MonthlyRevenue
	for month, total := range totals {
		out = append(out, domain.MonthlyRevenue{Month: month, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// --- Seeding helpers ---

func (m *memStore) addClient(c domain.Client, cost float64) domain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID()
	c.Active = true
	if c.Email == "" {
		c.Email = fmt.Sprintf("client%d@example.com", c.ID)
	}
	if c.Document == "" {
		c.Document = fmt.Sprintf("%011d", c.ID)
	}
	m.clients[c.ID] = c
	m.userServices[[2]int64{c.ID, domain.ListConsultationServiceID}] = cost
	return c
}

func (m *memStore) list(id int64) domain.List {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists[id]
}

func (m *memStore) submission(id int64) domain.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions[id]
}

func (m *memStore) historyOf(kind domain.EntityKind, id int64) []string {
	h, _ := m.ListHistory(context.Background(), kind, id)
	out := make([]string, len(h))
	for i, row := range h {
		out[i] = row.Status
	}
	return out
}

// --- ChargeRepo ---

func (m *memStore) RecordCharge(_ context.Context, c *domain.IssuedCharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.charges[c.PaymentID]; !ok {
		stored := *c
		stored.CreatedAt = time.Now()
		m.charges[c.PaymentID] = stored
	}
	return nil
}

func (m *memStore) GetCharge(_ context.Context, paymentID string) (*domain.IssuedCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[paymentID]
	if !ok {
		return nil, notFound("charge", paymentID)
	}
	return &c, nil
}

// --- Port fakes ---

type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	refs   []string
	charge *domain.PixCharge
	err    error
}

func (g *fakeGateway) CreatePixCharge(_ context.Context, amount float64, ref, token string) (*domain.PixCharge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.tokens = append(g.tokens, token)
	g.refs = append(g.refs, ref)
	if g.err != nil {
		return nil, g.err
	}
	if g.charge != nil {
		return g.charge, nil
	}
	return &domain.PixCharge{ID: fmt.Sprintf("pix_%d", g.calls), EncodedImage: "iVBOR", Payload: "000201"}, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	broken  map[string]bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, broken: map[string]bool{}}
}

func (b *fakeBlobs) Save(_ context.Context, folder, filename string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return "", b.saveErr
	}
	key := fmt.Sprintf("%s/%d-%s", folder, len(b.objects)+1, filename)
	b.objects[key] = data
	return key, nil
}

func (b *fakeBlobs) Retrieve(_ context.Context, _ string, key string) (*domain.BlobFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok || b.broken[key] {
		return nil, notFound("arquivo", key)
	}
	return &domain.BlobFile{Key: key, ContentType: "application/octet-stream", Data: data}, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (l *fakeLedger) Seen(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.keys[key], nil
}

func (l *fakeLedger) Remember(_ context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keys == nil {
		l.keys = map[string]bool{}
	}
	l.keys[key] = true
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AppLog
}

func (a *fakeAudit) Record(_ context.Context, e domain.AppLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *fakeAudit) contexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Context
	}
	return out
}

// --- Wiring ---

type harness struct {
	store    *memStore
	gateway  *fakeGateway
	blobs    *fakeBlobs
	ledger   *fakeLedger
	audit    *fakeAudit
	engine   *service.Engine
	payments *service.PaymentService
	lists    *service.ListService
	subs     *service.SubmissionService
	forms    *service.FormService
	groups   *service.ListGroupService
	clients  *service.ClientService
}

func newHarness(cfg service.PaymentConfig) *harness {
	h := &harness{
		store:   newMemStore(),
		gateway: &fakeGateway{},
		blobs:   newFakeBlobs(),
		ledger:  &fakeLedger{},
		audit:   &fakeAudit{},
	}
	if cfg.DedupeTTL == 0 {
		cfg.DedupeTTL = time.Hour
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	protocols := service.NewProtocols()
	h.engine = service.NewEngine(h.audit, metrics, logger)
	h.payments = service.NewPaymentService(h.store, h.gateway, h.blobs, h.ledger, h.engine, protocols, h.audit, cfg, metrics, logger)
	h.lists = service.NewListService(h.store, h.engine, protocols, nil, logger)
	h.subs = service.NewSubmissionService(h.store, h.blobs, h.engine, protocols, logger)
	h.forms = service.NewFormService(h.store, logger)
	h.groups = service.NewListGroupService(h.store, h.engine, logger)
	h.clients = service.NewClientService(h.store, 300, logger)
	return h
}

func callerOf(c domain.Client) domain.Caller {
	return domain.Caller{ID: c.ID, Role: c.Role, AffiliateID: c.AffiliateID}
}

func names(n int) []domain.NamesList {
	out := make([]domain.NamesList, n)
	for i := range out {
		out[i] = domain.NamesList{Nome: fmt.Sprintf("Nome %d", i+1), CPF: fmt.Sprintf("%011d", i+1)}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

var _ port.Store = (*memStore)(nil)
