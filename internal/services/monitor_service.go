package services

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/models"
)

// ProblemKind classifies a stuck order.
type ProblemKind string

const (
	ProblemUnassignedStale        ProblemKind = "unassigned-stale"
	ProblemWaitingAcceptanceStale ProblemKind = "waiting-acceptance-stale"
	ProblemDeliveryOverdue        ProblemKind = "delivery-overdue"
)

var problemKinds = []ProblemKind{ProblemUnassignedStale, ProblemWaitingAcceptanceStale, ProblemDeliveryOverdue}

// Problem is one flagged order. Overdue is how far past its threshold it is.
type Problem struct {
	Kind        ProblemKind        `json:"kind"`
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Source      OrderSource        `json:"source"`
	Status      models.OrderStatus `json:"status"`
	StoreID     *string            `json:"store_id,omitempty"`
	Since       time.Time          `json:"since"`
	Overdue     time.Duration      `json:"-"`
	OverdueSec  int64              `json:"overdue_seconds"`
}

var (
	immediateWords = []string{"immediate", "asap", "즉시", "바로", "지금"}
	clockPattern   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	dateLayouts    = []string{"2006-01-02", "2006.01.02", "2006/01/02", "20060102"}
)

// Classifier applies the overdue thresholds.
type Classifier struct {
	cfg config.DispatchConfig
}

func NewClassifier(cfg config.DispatchConfig) Classifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return Classifier{cfg: cfg}
}

// DeliveryDeadline combines delivery date and time in the configured zone.
// An "immediate" time means creation plus the immediate window; a missing
// time means the end of the delivery day. A range such as "14:00~16:00"
// is due at its end.
func (c Classifier) DeliveryDeadline(order UnifiedOrder) (time.Time, bool) {
	slot := strings.ToLower(strings.TrimSpace(order.Delivery.Time))
	for _, word := range immediateWords {
		if slot != "" && strings.Contains(slot, word) {
			return order.CreatedAt.Add(c.cfg.ImmediateDeliveryWindow), true
		}
	}

	day, ok := parseDeliveryDate(order.Delivery.Date, c.cfg.Location)
	if !ok {
		return time.Time{}, false
	}

	clocks := clockPattern.FindAllStringSubmatch(slot, -1)
	if len(clocks) == 0 {
		return day.AddDate(0, 0, 1), true
	}
	last := clocks[len(clocks)-1]
	hour, minute := atoi(last[1]), atoi(last[2])
	if strings.Contains(slot, "오후") && hour < 12 {
		hour += 12
	}
	if hour > 23 || minute > 59 {
		return day.AddDate(0, 0, 1), true
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
}

// Classify returns the problem an open order has at now, if any. A missed
// delivery outranks the assignment-stage problems.
func (c Classifier) Classify(now time.Time, order UnifiedOrder) (Problem, bool) {
	if order.Status.Terminal() {
		return Problem{}, false
	}

	if deadline, ok := c.DeliveryDeadline(order); ok && now.After(deadline) {
		return newProblem(ProblemDeliveryOverdue, order, deadline, now.Sub(deadline)), true
	}

	if !order.Assigned() {
		if age := now.Sub(order.CreatedAt); age > c.cfg.UnassignedStaleAfter {
			return newProblem(ProblemUnassignedStale, order, order.CreatedAt, age-c.cfg.UnassignedStaleAfter), true
		}
		return Problem{}, false
	}

	if !order.Accepted() && order.Status == models.StatusPending {
		since := order.CreatedAt
		if order.AssignedAt != nil {
			since = *order.AssignedAt
		}
		if age := now.Sub(since); age > c.cfg.WaitingAcceptanceStaleAfter {
			return newProblem(ProblemWaitingAcceptanceStale, order, since, age-c.cfg.WaitingAcceptanceStaleAfter), true
		}
	}
	return Problem{}, false
}

// NeedsUrgentAlert reports whether an order has been unassigned past the urgent threshold.
func (c Classifier) NeedsUrgentAlert(now time.Time, order UnifiedOrder) bool {
	return !order.Status.Terminal() && !order.Assigned() && now.Sub(order.CreatedAt) > c.cfg.UrgentUnassignedAfter
}

// ProblemList ranks flagged orders most overdue first, ties by order id, and
// truncates to the display limit.
func (c Classifier) ProblemList(now time.Time, orders []UnifiedOrder) []Problem {
	problems := make([]Problem, 0)
	for _, order := range orders {
		if p, ok := c.Classify(now, order); ok {
			problems = append(problems, p)
		}
	}
	sort.Slice(problems, func(i, j int) bool {
		if problems[i].Overdue != problems[j].Overdue {
			return problems[i].Overdue > problems[j].Overdue
		}
		return problems[i].OrderID < problems[j].OrderID
	})
	if limit := c.cfg.ProblemListLimit; limit > 0 && len(problems) > limit {
		problems = problems[:limit]
	}
	return problems
}

func newProblem(kind ProblemKind, order UnifiedOrder, since time.Time, overdue time.Duration) Problem {
	p := Problem{
		Kind:        kind,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Source:      order.Source,
		Status:      order.Status,
		Since:       since,
		Overdue:     overdue,
		OverdueSec:  int64(overdue / time.Second),
	}
	if order.ReceiverStoreID != nil {
		id := order.ReceiverStoreID.String()
		p.StoreID = &id
	}
	return p
}

func parseDeliveryDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) > 10 {
		value = value[:10]
	}
	for _, layout := range dateLayouts {
		if day, err := time.ParseInLocation(layout, value, loc); err == nil {
			return day, true
		}
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// UrgentNotice is what the notifier is told about a long-unassigned order.
type UrgentNotice struct {
	OrderID     string
	OrderNumber string
	Source      OrderSource
	Address     string
	ProductName string
	Subtotal    int64
	Unassigned  time.Duration
}

// Notifier delivers urgent alerts to operators.
type Notifier interface {
	NotifyUrgent(ctx context.Context, notice UrgentNotice) error
}

// MonitorService runs the overdue scan over the open-order view.
type MonitorService struct {
	deps       Deps
	view       *OpenOrderView
	classifier Classifier
	notifier   Notifier
}

func NewMonitorService(deps Deps, view *OpenOrderView, notifier Notifier) *MonitorService {
	return &MonitorService{deps: deps, view: view, classifier: NewClassifier(deps.Config), notifier: notifier}
}

// Problems returns the ranked problem list at now.
func (m *MonitorService) Problems(now time.Time) []Problem {
	return m.classifier.ProblemList(now, m.view.Snapshot())
}

// RunOnce refreshes the problem gauges and sends any due urgent alerts.
func (m *MonitorService) RunOnce(ctx context.Context) error {
	now := m.deps.now()
	orders := m.view.Snapshot()

	counts := make(map[ProblemKind]int, len(problemKinds))
	for _, order := range orders {
		if p, ok := m.classifier.Classify(now, order); ok {
			counts[p.Kind]++
		}
	}
	for _, kind := range problemKinds {
		m.deps.Metrics.OpenProblems.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !m.classifier.NeedsUrgentAlert(now, order) {
			continue
		}
		if err := m.alert(ctx, now, order); err != nil {
			return err
		}
	}
	return nil
}

// alert records the order in the durable alert set first; only the call that
// inserted the row notifies.
func (m *MonitorService) alert(ctx context.Context, now time.Time, order UnifiedOrder) error {
	callCtx, cancel := context.WithTimeout(ctx, m.deps.Config.DataStoreTimeout)
	defer cancel()

	created, err := m.deps.Repo.RecordUrgentAlert(callCtx, &models.UrgentAlert{
		OrderID:    order.ID,
		Source:     string(order.Source),
		NotifiedAt: now,
	})
	if err != nil {
		return storeErr("record urgent alert", err)
	}
	if !created {
		return nil
	}

	m.deps.Metrics.UrgentAlerts.Inc()
	notice := UrgentNotice{
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Source:      order.Source,
		Address:     order.Delivery.Address,
		ProductName: order.Product.Name,
		Subtotal:    order.Pricing.Subtotal,
		Unassigned:  now.Sub(order.CreatedAt),
	}
	if err := m.notifier.NotifyUrgent(ctx, notice); err != nil {
		m.deps.Logger.Error("urgent alert delivery failed", zap.String("order", order.Ref().String()), zap.Error(err))
	}
	return nil
}

// Run scans every MonitorInterval until ctx ends.
func (m *MonitorService) Run(ctx context.Context) error {
	return runEvery(ctx, m.deps.Config.MonitorInterval, func(ctx context.Context) {
		if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.deps.Logger.Warn("monitor cycle skipped", zap.Error(err))
		}
	})
}
