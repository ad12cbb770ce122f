package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

// memoryAuthority mimics the guarded SQL behaviour of the repositories.
type memoryAuthority struct {
	mu         sync.Mutex
	enquiries  map[string]*models.Enquiry
	admissions map[string]*models.Admission
	docs       []*models.DocumentRequirement
	audits     []*models.AdmissionAuditLog
	calls      map[string]int
	fail       map[string]error
}

func newMemoryAuthority() *memoryAuthority {
	return &memoryAuthority{
		enquiries:  make(map[string]*models.Enquiry),
		admissions: make(map[string]*models.Admission),
		calls:      make(map[string]int),
		fail:       make(map[string]error),
	}
}

func (m *memoryAuthority) track(op string) error {
	m.calls[op]++
	return m.fail[op]
}

func (m *memoryAuthority) addAdmission(a models.Admission, docs ...models.DocumentRequirement) *models.Admission {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := a
	m.admissions[a.ID] = &stored
	for i := range docs {
		doc := docs[i]
		doc.AdmissionID = a.ID
		m.docs = append(m.docs, &doc)
	}
	return &stored
}

func (m *memoryAuthority) docsOf(admissionID string) []models.DocumentRequirement {
	out := []models.DocumentRequirement{}
	for _, d := range m.docs {
		if d.AdmissionID == admissionID {
			out = append(out, *d)
		}
	}
	return out
}

func (m *memoryAuthority) doc(id string) *models.DocumentRequirement {
	for _, d := range m.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (m *memoryAuthority) openAdmission(id string) (*models.Admission, error) {
	a, ok := m.admissions[id]
	if !ok || lifecycle.IsTerminal(a.Status) {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (m *memoryAuthority) appendAudit(entry *models.AdmissionAuditLog) {
	if entry != nil {
		m.audits = append(m.audits, entry)
	}
}

// enquiry repository

type enquiryRepoStub struct{ *memoryAuthority }

func (r enquiryRepoStub) Create(ctx context.Context, enquiry *models.Enquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("enquiry.create"); err != nil {
		return err
	}
	stored := *enquiry
	r.enquiries[enquiry.ID] = &stored
	return nil
}

func (r enquiryRepoStub) GetByID(ctx context.Context, id string) (*models.Enquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enquiries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (r enquiryRepoStub) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	all, err := r.ListAll(ctx, filter)
	return all, len(all), err
}

func (r enquiryRepoStub) ListAll(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Enquiry{}
	for _, e := range r.enquiries {
		if filter.CreatedBy != "" && (e.CreatedBy == nil || *e.CreatedBy != filter.CreatedBy) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r enquiryRepoStub) UpdateStatus(ctx context.Context, id string, expected, next models.EnquiryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("enquiry.update_status"); err != nil {
		return err
	}
	e, ok := r.enquiries[id]
	if !ok || e.Status != expected || e.Status == models.EnquiryStatusConverted {
		return sql.ErrNoRows
	}
	e.Status = next
	return nil
}

func (r enquiryRepoStub) Convert(ctx context.Context, params repository.ConvertParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("enquiry.convert"); err != nil {
		return err
	}
	e, ok := r.enquiries[params.EnquiryID]
	if !ok || e.Status != models.EnquiryStatusVerified {
		return sql.ErrNoRows
	}
	params.Admission.EnquiryID = &params.EnquiryID
	stored := *params.Admission
	r.admissions[stored.ID] = &stored
	for i := range params.Documents {
		doc := params.Documents[i]
		doc.AdmissionID = stored.ID
		r.docs = append(r.docs, &doc)
	}
	e.Status = models.EnquiryStatusConverted
	e.ConvertedAdmissionID = &stored.ID
	params.Audit.AdmissionID = stored.ID
	r.appendAudit(params.Audit)
	return nil
}

// admission repository

type admissionRepoStub struct{ *memoryAuthority }

func (r admissionRepoStub) Create(ctx context.Context, admission *models.Admission, docs []models.DocumentRequirement, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("admission.create"); err != nil {
		return err
	}
	stored := *admission
	r.admissions[admission.ID] = &stored
	for i := range docs {
		docs[i].AdmissionID = admission.ID
		doc := docs[i]
		r.docs = append(r.docs, &doc)
	}
	r.appendAudit(audit)
	return nil
}

func (r admissionRepoStub) GetByID(ctx context.Context, id string) (*models.Admission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (r admissionRepoStub) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Admission{}
	for _, a := range r.admissions {
		if filter.SubmittedBy != "" && (a.SubmittedBy == nil || *a.SubmittedBy != filter.SubmittedBy) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (r admissionRepoStub) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("admission.update_status"); err != nil {
		return err
	}
	a, ok := r.admissions[params.ID]
	if !ok || a.Status != params.Expected {
		return sql.ErrNoRows
	}
	a.Status = params.Next
	a.StatusReason = params.Reason
	r.appendAudit(audit)
	return nil
}

func (r admissionRepoStub) Approve(ctx context.Context, id string, expected models.AdmissionStatus, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("admission.approve"); err != nil {
		return err
	}
	a, ok := r.admissions[id]
	if !ok || a.Status != expected || !lifecycle.Evaluate(r.docsOf(id)).Cleared {
		return sql.ErrNoRows
	}
	a.Status = models.AdmissionStatusApproved
	a.StatusReason = nil
	r.appendAudit(audit)
	return nil
}

func (r admissionRepoStub) UpdatePhoto(ctx context.Context, id, photoPath string, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("admission.update_photo"); err != nil {
		return err
	}
	a, err := r.openAdmission(id)
	if err != nil {
		return err
	}
	a.PhotoPath = &photoPath
	r.appendAudit(audit)
	return nil
}

func (r admissionRepoStub) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, a := range r.admissions {
		counts[string(a.Status)]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, total := range counts {
		out = append(out, models.StatusCount{Status: status, Total: total})
	}
	return out, nil
}

// document repository

type documentRepoStub struct{ *memoryAuthority }

func (r documentRepoStub) ListByAdmission(ctx context.Context, admissionID string) ([]models.DocumentRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["document.list"]++
	return r.docsOf(admissionID), nil
}

func (r documentRepoStub) GetByID(ctx context.Context, id string) (*models.DocumentRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.doc(id)
	if d == nil {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (r documentRepoStub) Create(ctx context.Context, doc *models.DocumentRequirement, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("document.create"); err != nil {
		return err
	}
	if _, err := r.openAdmission(doc.AdmissionID); err != nil {
		return err
	}
	stored := *doc
	r.docs = append(r.docs, &stored)
	r.appendAudit(audit)
	return nil
}

func (r documentRepoStub) AttachFile(ctx context.Context, params repository.AttachParams, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("document.attach"); err != nil {
		return err
	}
	if _, err := r.openAdmission(params.AdmissionID); err != nil {
		return err
	}
	d := r.doc(params.ID)
	if d == nil || d.AdmissionID != params.AdmissionID || d.Status == models.DocumentStatusVerified {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	d.Status = models.DocumentStatusSubmitted
	d.FilePath = &params.FilePath
	d.MimeType = &params.MimeType
	d.SizeBytes = &params.SizeBytes
	d.SubmittedAt = &now
	d.RejectionReason = nil
	r.appendAudit(audit)
	return nil
}

func (r documentRepoStub) Verify(ctx context.Context, params repository.VerifyParams, audit *models.AdmissionAuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.track("document.verify"); err != nil {
		return err
	}
	if _, err := r.openAdmission(params.AdmissionID); err != nil {
		return err
	}
	d := r.doc(params.ID)
	if d == nil || d.AdmissionID != params.AdmissionID || d.Status != params.Expected {
		return sql.ErrNoRows
	}
	d.Status = params.Outcome
	d.RejectionReason = params.Reason
	d.VerifiedBy = params.VerifiedBy
	r.appendAudit(audit)
	return nil
}

// audit reader

type auditRepoStub struct{ *memoryAuthority }

func (r auditRepoStub) ListByAdmission(ctx context.Context, admissionID string) ([]models.AdmissionAuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.AdmissionAuditLog{}
	for _, entry := range r.audits {
		if entry.AdmissionID == admissionID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

// object store

type objectStoreStub struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{objects: make(map[string][]byte)}
}

func (s *objectStoreStub) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *objectStoreStub) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *objectStoreStub) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type presigningStoreStub struct {
	*objectStoreStub
}

func (s presigningStoreStub) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.example.com/" + key + "?sig=abc", nil
}

// locker

type lockerStub struct {
	held     map[string]bool
	obtained []string
}

func newLockerStub() *lockerStub {
	return &lockerStub{held: make(map[string]bool)}
}

func (l *lockerStub) Obtain(ctx context.Context, key string, ttl time.Duration) (cache.ReleaseFunc, error) {
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true
	l.obtained = append(l.obtained, key)
	return func(context.Context) error {
		delete(l.held, key)
		return nil
	}, nil
}

// decision notifier

type notifierStub struct {
	decisions []AdmissionDecision
}

func (n *notifierStub) AdmissionDecided(ctx context.Context, decision AdmissionDecision) {
	n.decisions = append(n.decisions, decision)
}

var (
	staffActor  = Actor{ID: "staff-1", Role: models.RoleAdmin}
	parentActor = Actor{ID: "parent-1", Role: models.RoleParent}
	otherParent = Actor{ID: "parent-2", Role: models.RoleParent}
)

func requirement(id string, mandatory bool, status models.DocumentStatus) models.DocumentRequirement {
	return models.DocumentRequirement{ID: id, Name: "doc " + id, IsMandatory: mandatory, Status: status}
}
