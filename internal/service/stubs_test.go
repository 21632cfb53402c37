package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// In-memory repository stubs. They mimic the postgres repositories'
// observable behavior: copies in and out, pgx.ErrNoRows on miss, and
// version-guarded writes.

type requestRepoStub struct {
	items map[string]*domain.ServiceRequest
	seq   int
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{items: map[string]*domain.ServiceRequest{}}
}

func (r *requestRepoStub) put(request *domain.ServiceRequest) *domain.ServiceRequest {
	if request.ID == "" {
		r.seq++
		request.ID = fmt.Sprintf("req-%d", r.seq)
	}
	copied := *request
	r.items[request.ID] = &copied
	return request
}

func (r *requestRepoStub) Create(_ context.Context, request *domain.ServiceRequest) error {
	r.put(request)
	return nil
}

func (r *requestRepoStub) GetByID(_ context.Context, id string) (*domain.ServiceRequest, error) {
	stored, ok := r.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *requestRepoStub) GetByCode(_ context.Context, code string) (*domain.ServiceRequest, error) {
	for _, stored := range r.items {
		if stored.Code == code {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *requestRepoStub) ListWithFilter(_ context.Context, filter repository.RequestFilter) ([]domain.ServiceRequest, error) {
	var out []domain.ServiceRequest
	for _, stored := range r.items {
		if filter.RequesterID != nil && stored.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.DepartmentID != nil && stored.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.AssigneeID != nil && (stored.AssigneeID == nil || *stored.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.OverdueAt != nil {
			if stored.SLADueAt == nil || stored.Status.IsTerminal() || !filter.OverdueAt.After(*stored.SLADueAt) {
				continue
			}
		}
		out = append(out, *stored)
	}
	return out, nil
}

func (r *requestRepoStub) UpdateVersioned(_ context.Context, request *domain.ServiceRequest, expectedVersion int64, deactivateAssignment bool) error {
	stored, ok := r.items[request.ID]
	if !ok {
		return apperrors.NewNotFound("service request", nil)
	}
	if stored.Version != expectedVersion {
		return apperrors.NewConcurrencyConflict(expectedVersion, stored.Version)
	}
	copied := *request
	r.items[request.ID] = &copied
	_ = deactivateAssignment
	return nil
}

type assignmentRepoStub struct {
	requests *requestRepoStub
	records  []domain.AssignmentRecord
	seq      int
}

func (r *assignmentRepoStub) Assign(_ context.Context, record *domain.AssignmentRecord, expectedVersion int64) error {
	request, ok := r.requests.items[record.RequestID]
	if !ok {
		return apperrors.NewNotFound("service request", nil)
	}
	if request.Version != expectedVersion {
		return apperrors.NewConcurrencyConflict(expectedVersion, request.Version)
	}
	now := time.Now()
	for i := range r.records {
		if r.records[i].RequestID == record.RequestID && r.records[i].IsActive {
			r.records[i].IsActive = false
			r.records[i].CompletedAt = &now
			from := r.records[i].AssignedTo
			record.AssignedFrom = &from
		}
	}
	r.seq++
	record.ID = fmt.Sprintf("asg-%d", r.seq)
	record.IsActive = true
	record.CreatedAt = now
	r.records = append(r.records, *record)

	assignee := record.AssignedTo
	request.AssigneeID = &assignee
	request.Version++
	return nil
}

func (r *assignmentRepoStub) GetActiveByRequest(_ context.Context, requestID string) (*domain.AssignmentRecord, error) {
	for i := range r.records {
		if r.records[i].RequestID == requestID && r.records[i].IsActive {
			copied := r.records[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *assignmentRepoStub) ListByRequest(_ context.Context, requestID string) ([]domain.AssignmentRecord, error) {
	var out []domain.AssignmentRecord
	for _, record := range r.records {
		if record.RequestID == requestID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *assignmentRepoStub) CountActiveByAssignee(_ context.Context, assigneeID string) (int, error) {
	count := 0
	for _, record := range r.records {
		if record.AssignedTo == assigneeID && record.IsActive {
			count++
		}
	}
	return count, nil
}

type staffRepoStub struct {
	items map[string]*domain.StaffMember
}

func (r *staffRepoStub) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	stored, ok := r.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *staffRepoStub) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, stored := range r.items {
		if stored.Email == email {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *staffRepoStub) List(_ context.Context, _ repository.StaffFilter) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	for _, stored := range r.items {
		out = append(out, *stored)
	}
	return out, nil
}

type departmentRepoStub struct {
	items map[string]*domain.Department
}

func (r *departmentRepoStub) GetByID(_ context.Context, id string) (*domain.Department, error) {
	stored, ok := r.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *departmentRepoStub) ListActive(_ context.Context) ([]domain.Department, error) {
	var out []domain.Department
	for _, stored := range r.items {
		if stored.IsActive {
			out = append(out, *stored)
		}
	}
	return out, nil
}

type commentRepoStub struct {
	items []domain.RequestComment
	seq   int
}

func (r *commentRepoStub) Create(_ context.Context, comment *domain.RequestComment) error {
	r.seq++
	comment.ID = fmt.Sprintf("cmt-%d", r.seq)
	comment.CreatedAt = time.Now()
	copied := *comment
	copied.Attachments = nil
	r.items = append(r.items, copied)
	return nil
}

func (r *commentRepoStub) ListByRequest(_ context.Context, requestID string) ([]domain.RequestComment, error) {
	var out []domain.RequestComment
	for _, comment := range r.items {
		if comment.RequestID == requestID {
			out = append(out, comment)
		}
	}
	return out, nil
}

type attachmentRepoStub struct {
	items []domain.AttachmentReference
	seq   int
}

func (r *attachmentRepoStub) Create(_ context.Context, attachment *domain.AttachmentReference) error {
	r.seq++
	attachment.ID = fmt.Sprintf("att-%d", r.seq)
	r.items = append(r.items, *attachment)
	return nil
}

func (r *attachmentRepoStub) ListByComment(_ context.Context, commentID string) ([]domain.AttachmentReference, error) {
	var out []domain.AttachmentReference
	for _, attachment := range r.items {
		if attachment.CommentID == commentID {
			out = append(out, attachment)
		}
	}
	return out, nil
}

type historyRepoStub struct {
	items []domain.RequestHistory
}

func (r *historyRepoStub) Create(_ context.Context, entry *domain.RequestHistory) error {
	r.items = append(r.items, *entry)
	return nil
}

func (r *historyRepoStub) ListByRequest(_ context.Context, requestID string, _, _ int) ([]domain.RequestHistory, error) {
	var out []domain.RequestHistory
	for _, entry := range r.items {
		if entry.RequestID == requestID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type workOrderRepoStub struct {
	orders  map[string]*domain.FieldWorkOrder
	entries []*domain.TimeEntry
	seq     int
}

func newWorkOrderRepoStub() *workOrderRepoStub {
	return &workOrderRepoStub{orders: map[string]*domain.FieldWorkOrder{}}
}

func (r *workOrderRepoStub) Create(_ context.Context, order *domain.FieldWorkOrder) error {
	r.seq++
	order.ID = fmt.Sprintf("wo-%d", r.seq)
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *workOrderRepoStub) GetByID(_ context.Context, id string) (*domain.FieldWorkOrder, error) {
	stored, ok := r.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *workOrderRepoStub) Update(_ context.Context, order *domain.FieldWorkOrder) error {
	if _, ok := r.orders[order.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *workOrderRepoStub) ListOpenByRequest(_ context.Context, requestID string) ([]domain.FieldWorkOrder, error) {
	var out []domain.FieldWorkOrder
	for _, stored := range r.orders {
		if stored.RequestID == requestID && !stored.Status.IsTerminal() {
			out = append(out, *stored)
		}
	}
	return out, nil
}

func (r *workOrderRepoStub) ListByAgent(_ context.Context, agentID string, includeClosed bool) ([]domain.FieldWorkOrder, error) {
	var out []domain.FieldWorkOrder
	for _, stored := range r.orders {
		if stored.AssignedAgentID != agentID {
			continue
		}
		if !includeClosed && stored.Status.IsTerminal() {
			continue
		}
		out = append(out, *stored)
	}
	return out, nil
}

func (r *workOrderRepoStub) CreateTimeEntry(_ context.Context, entry *domain.TimeEntry) error {
	for _, existing := range r.entries {
		if existing.AgentID == entry.AgentID && existing.EndTime == nil {
			return apperrors.NewOpenSegmentConflict(entry.AgentID)
		}
	}
	r.seq++
	entry.ID = fmt.Sprintf("seg-%d", r.seq)
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *workOrderRepoStub) GetOpenTimeEntry(_ context.Context, agentID string) (*domain.TimeEntry, error) {
	for _, entry := range r.entries {
		if entry.AgentID == agentID && entry.EndTime == nil {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *workOrderRepoStub) CloseTimeEntry(_ context.Context, entryID string, endTime time.Time) error {
	for _, entry := range r.entries {
		if entry.ID == entryID {
			entry.EndTime = &endTime
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *workOrderRepoStub) ListTimeEntries(_ context.Context, workOrderID string) ([]domain.TimeEntry, error) {
	var out []domain.TimeEntry
	for _, entry := range r.entries {
		if entry.WorkOrderID == workOrderID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

type reviewRepoStub struct {
	items map[string]*domain.QualityReview
	seq   int
}

func newReviewRepoStub() *reviewRepoStub {
	return &reviewRepoStub{items: map[string]*domain.QualityReview{}}
}

func (r *reviewRepoStub) Upsert(_ context.Context, review *domain.QualityReview) error {
	if existing, ok := r.items[review.RequestID]; ok {
		review.ID = existing.ID
	} else {
		r.seq++
		review.ID = fmt.Sprintf("rev-%d", r.seq)
	}
	copied := *review
	r.items[review.RequestID] = &copied
	return nil
}

func (r *reviewRepoStub) GetByRequest(_ context.Context, requestID string) (*domain.QualityReview, error) {
	stored, ok := r.items[requestID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

type goalRepoStub struct {
	items map[string]*domain.PerformanceGoal
	seq   int
}

func newGoalRepoStub() *goalRepoStub {
	return &goalRepoStub{items: map[string]*domain.PerformanceGoal{}}
}

func (r *goalRepoStub) Create(_ context.Context, goal *domain.PerformanceGoal) error {
	r.seq++
	goal.ID = fmt.Sprintf("goal-%d", r.seq)
	copied := *goal
	r.items[goal.ID] = &copied
	return nil
}

func (r *goalRepoStub) Update(_ context.Context, goal *domain.PerformanceGoal) error {
	if _, ok := r.items[goal.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *goal
	r.items[goal.ID] = &copied
	return nil
}

func (r *goalRepoStub) GetByID(_ context.Context, id string) (*domain.PerformanceGoal, error) {
	stored, ok := r.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *goalRepoStub) ListByStaff(_ context.Context, staffID string) ([]domain.PerformanceGoal, error) {
	var out []domain.PerformanceGoal
	for _, stored := range r.items {
		if stored.StaffID == staffID {
			out = append(out, *stored)
		}
	}
	return out, nil
}

type performanceRepoStub struct {
	completed []domain.ServiceRequest
	reviews   []domain.QualityReview
	calls     int
}

func (r *performanceRepoStub) ListCompletedRequests(_ context.Context, _ string, _ domain.PerformancePeriod) ([]domain.ServiceRequest, error) {
	r.calls++
	return r.completed, nil
}

func (r *performanceRepoStub) ListReviewsForStaff(_ context.Context, _ string, _ domain.PerformancePeriod) ([]domain.QualityReview, error) {
	return r.reviews, nil
}

type rollupCacheStub struct {
	items       map[string]*domain.StaffPerformance
	invalidated []string
}

func newRollupCacheStub() *rollupCacheStub {
	return &rollupCacheStub{items: map[string]*domain.StaffPerformance{}}
}

func rollupKey(staffID string, period domain.PerformancePeriod) string {
	return fmt.Sprintf("%s:%d:%d", staffID, period.Start.Unix(), period.End.Unix())
}

func (c *rollupCacheStub) Get(_ context.Context, staffID string, period domain.PerformancePeriod) (*domain.StaffPerformance, error) {
	perf, ok := c.items[rollupKey(staffID, period)]
	if !ok {
		return nil, nil
	}
	return perf, nil
}

func (c *rollupCacheStub) Set(_ context.Context, perf *domain.StaffPerformance) error {
	period := domain.PerformancePeriod{Start: perf.PeriodStart, End: perf.PeriodEnd}
	c.items[rollupKey(perf.StaffID, period)] = perf
	return nil
}

func (c *rollupCacheStub) InvalidateStaff(_ context.Context, staffID string) error {
	c.invalidated = append(c.invalidated, staffID)
	for key := range c.items {
		if len(key) >= len(staffID) && key[:len(staffID)] == staffID {
			delete(c.items, key)
		}
	}
	return nil
}

type dispatcherStub struct {
	published []events.Event
}

func (d *dispatcherStub) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *dispatcherStub) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *dispatcherStub) eventsOfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, event := range d.published {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
