package checkout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/events"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/refunds"
	"github.com/imrishuroy/go-esim-checkout/internal/reseller"
)

// --- purchase store ---

type memPurchases struct {
	mu          sync.Mutex
	items       map[string]purchases.Purchase
	insertErr   error
	getErr      error
	completeErr error
	refundErr   error
}

func newMemPurchases() *memPurchases {
	return &memPurchases{items: map[string]purchases.Purchase{}}
}

func (m *memPurchases) Insert(ctx context.Context, p purchases.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.items[p.PaymentID]; ok {
		return purchases.ErrAlreadyExists
	}
	m.items[p.PaymentID] = p
	return nil
}

func (m *memPurchases) Get(ctx context.Context, paymentID string) (*purchases.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.items[paymentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPurchases) ListByCustomerEmail(ctx context.Context, email string) ([]purchases.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []purchases.Purchase
	for _, p := range m.items {
		if p.CustomerEmail == email {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPurchases) MarkCompleted(ctx context.Context, paymentID string, esim purchases.ESIM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	p, ok := m.items[paymentID]
	if !ok || p.Status != purchases.StatusPending {
		return purchases.ErrStatusMismatch
	}
	p.Status = purchases.StatusCompleted
	p.ESIMData = &esim
	p.UpdatedAt = time.Now().UTC()
	m.items[paymentID] = p
	return nil
}

func (m *memPurchases) MarkRefunded(ctx context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return m.refundErr
	}
	p, ok := m.items[paymentID]
	if !ok || p.Status == purchases.StatusRefunded {
		return purchases.ErrStatusMismatch
	}
	p.Status = purchases.StatusRefunded
	p.UpdatedAt = time.Now().UTC()
	m.items[paymentID] = p
	return nil
}

func (m *memPurchases) get(paymentID string) purchases.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[paymentID]
}

// --- refund store ---

type memRefunds struct {
	mu        sync.Mutex
	items     map[string]refunds.Refund
	createErr error
}

func newMemRefunds() *memRefunds {
	return &memRefunds{items: map[string]refunds.Refund{}}
}

func (m *memRefunds) Create(ctx context.Context, r refunds.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if cur, ok := m.items[r.PaymentID]; ok && cur.Status != refunds.StatusFailed {
		return refunds.ErrAlreadyExists
	}
	m.items[r.PaymentID] = r
	return nil
}

func (m *memRefunds) Get(ctx context.Context, paymentID string) (*refunds.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[paymentID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRefunds) UpdateResult(ctx context.Context, paymentID, refundID, processorRefundID, status string, amountMinor int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[paymentID]
	if !ok || r.RefundID != refundID {
		return refunds.ErrStaleAttempt
	}
	r.ProcessorRefundID = processorRefundID
	r.Status = status
	r.AmountMinor = amountMinor
	r.Note = note
	m.items[paymentID] = r
	return nil
}

// --- processor ---

type fakeProcessor struct {
	mu           sync.Mutex
	intentCalls  int
	confirmCalls int
	refundCalls  int
	nextID       int
	// intent id -> processor-side status
	statuses map[string]string

	intentErr     error
	confirmStatus string
	confirmErr    error
	retrieveErr   error
	refundErr     error
	lastIntent    processor.IntentRequest
	lastRefund    processor.RefundRequest
}

func (f *fakeProcessor) setStatus(id, status string) {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[id] = status
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, req processor.IntentRequest) (processor.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentCalls++
	f.lastIntent = req
	if f.intentErr != nil {
		return processor.Intent{}, f.intentErr
	}
	f.nextID++
	id := "pi_" + string(rune('0'+f.nextID))
	f.setStatus(id, processor.StatusRequiresPaymentMethod)
	return processor.Intent{ID: id, ClientSecret: id + "_secret_abc"}, nil
}

func (f *fakeProcessor) ConfirmPayment(ctx context.Context, clientSecret string, billing processor.BillingDetails, paymentMethodID string) (processor.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return processor.Confirmation{}, f.confirmErr
	}
	id, _ := processor.IntentIDFromClientSecret(clientSecret)
	status := f.confirmStatus
	if status == "" {
		status = processor.StatusSucceeded
	}
	f.setStatus(id, status)
	return processor.Confirmation{ID: id, Status: status}, nil
}

func (f *fakeProcessor) RetrieveIntent(ctx context.Context, intentID string) (processor.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return processor.Confirmation{}, f.retrieveErr
	}
	status, ok := f.statuses[intentID]
	if !ok {
		return processor.Confirmation{}, &processor.Error{Code: "resource_missing", Message: "no such payment_intent"}
	}
	return processor.Confirmation{ID: intentID, Status: status}, nil
}

func (f *fakeProcessor) Refund(ctx context.Context, req processor.RefundRequest) (processor.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	f.lastRefund = req
	if f.refundErr != nil {
		return processor.RefundResult{}, f.refundErr
	}
	return processor.RefundResult{ID: "re_1", Status: "succeeded", AmountMinor: req.AmountMinor}, nil
}

// --- reseller ---

type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (f *fakeProvisioner) Provision(ctx context.Context, packageTypeID string) (*reseller.ESIM, error) {
	f.mu.Lock()
	f.calls++
	err, block := f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &reseller.ESIM{
		ICCID:        "8901" + packageTypeID,
		QRCodeText:   "LPA:1$smdp.example.com$ABC",
		SMDPAddress:  "smdp.example.com",
		MatchingID:   "ABC",
		DataQuantity: "5",
		Raw:          map[string]interface{}{"iccid": "8901" + packageTypeID},
	}, nil
}

func (f *fakeProvisioner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- ambient ---

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeMetrics) Count(ctx context.Context, name string, dimensions map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[name]++
	return nil
}

func (f *fakeMetrics) get(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []ReconcileMessage
	err  error
}

func (f *fakeQueue) SendJSON(ctx context.Context, body interface{}, attributes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	msg, ok := body.(ReconcileMessage)
	if !ok {
		return errors.New("unexpected message type")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (f *fakeAlerter) Alert(ctx context.Context, a alert.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlerter) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a.Subject)
	}
	return out
}

type fakeEvents struct {
	mu   sync.Mutex
	sent []events.PurchaseEvent
}

func (f *fakeEvents) Publish(ctx context.Context, ev events.PurchaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return nil
}

// --- harness ---

type harness struct {
	svc         *Service
	purchases   *memPurchases
	refunds     *memRefunds
	processor   *fakeProcessor
	provisioner *fakeProvisioner
	metrics     *fakeMetrics
	queue       *fakeQueue
	alerter     *fakeAlerter
	events      *fakeEvents
}

func newHarness() *harness {
	h := &harness{
		purchases:   newMemPurchases(),
		refunds:     newMemRefunds(),
		processor:   &fakeProcessor{},
		provisioner: &fakeProvisioner{},
		metrics:     &fakeMetrics{},
		queue:       &fakeQueue{},
		alerter:     &fakeAlerter{},
		events:      &fakeEvents{},
	}
	h.svc = NewService(Dependencies{
		Purchases:   h.purchases,
		Refunds:     h.refunds,
		Processor:   h.processor,
		Provisioner: h.provisioner,
		Events:      h.events,
		Alerter:     h.alerter,
		Metrics:     h.metrics,
		Queue:       h.queue,
		CallTimeout: time.Second,
	})
	ids := 0
	h.svc.newID = func() string {
		ids++
		return "id-" + string(rune('0'+ids))
	}
	return h
}
