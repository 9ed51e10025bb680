// Package widget hosts storefront runtime sessions. The injected loader
// uploads the product page once, then relays shopper events; every reply
// carries the re-rendered widget fragments and any navigation to perform.
package widget

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codform/internal/logger"
	"codform/internal/services/shopify"
	"codform/internal/storefront/builder"
	"codform/internal/storefront/cart"
	"codform/internal/storefront/checkout"
	"codform/internal/storefront/detector"
	"codform/internal/storefront/dom"
	"codform/internal/storefront/formconfig"
	"codform/internal/storefront/render"
)

var (
	ErrSessionNotFound = errors.New("widget session not found")
	ErrShopNotAllowed  = errors.New("shop is not served by this backend")
)

// Action is a navigation the loader performs in the shopper's browser.
type Action struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

const (
	ActionNavigate = "navigate"
	ActionOpenTab  = "open_tab"
)

// Totals are the formatted amounts currently shown.
type Totals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

// Snapshot is the reply to every session call.
type Snapshot struct {
	ID        string            `json:"id"`
	State     string            `json:"state"`
	Outcome   string            `json:"outcome,omitempty"`
	Fragments map[string]string `json:"fragments"`
	Actions   []Action          `json:"actions,omitempty"`
	Totals    Totals            `json:"totals"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// fragment name -> selector of the element sent back to the loader.
var fragments = map[string]string{
	"styles":  render.SelStyles,
	"form":    render.SelContainer,
	"overlay": render.SelOverlay,
	"trigger": ".formino-trigger-wrapper",
	"message": render.SelMessagePopup,
}

// Session is one product page view.
type Session struct {
	ID   string
	Shop string

	page     *dom.Page
	detector *detector.Detector
	builder  *builder.Builder
	logger   *logger.Logger

	// serializes shopper events of this session
	mu sync.Mutex

	actionsMu sync.Mutex
	actions   []Action
	lastSeen  time.Time
}

func (s *Session) Navigate(url string) {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()
	s.actions = append(s.actions, Action{Type: ActionNavigate, URL: url})
}

func (s *Session) OpenTab(url string) {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()
	s.actions = append(s.actions, Action{Type: ActionOpenTab, URL: url})
}

func (s *Session) touch(now time.Time) {
	s.actionsMu.Lock()
	s.lastSeen = now
	s.actionsMu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()
	return s.lastSeen
}

// Handle applies one shopper event and waits for the detector to settle
// before replying.
func (s *Session) Handle(ctx context.Context, ev builder.UIEvent) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.builder.HandleEvent(ctx, ev)
	s.detector.Wait()
	return s.snapshot(outcome), err
}

// Submit places the order.
func (s *Session) Submit(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.builder.Submit(ctx)
	return s.snapshot(outcome), err
}

// Snapshot renders the current widget state without changing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot("")
}

func (s *Session) snapshot(outcome builder.Outcome) Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		State:     s.builder.State().String(),
		Outcome:   string(outcome),
		Fragments: make(map[string]string),
		Errors:    s.builder.Errors(),
	}
	for name, sel := range fragments {
		html, err := s.page.OuterHTML(sel)
		if err != nil {
			s.logger.Warn("widget: render fragment %s: %v", name, err)
			continue
		}
		if html != "" {
			snap.Fragments[name] = html
		}
	}

	t := s.builder.CalculateTotals()
	snap.Totals = Totals{Subtotal: t.SubtotalText(), Shipping: t.ShippingText(), Total: t.TotalText()}

	s.actionsMu.Lock()
	snap.Actions = s.actions
	s.actions = nil
	s.actionsMu.Unlock()
	return snap
}

func (s *Session) close() {
	s.builder.Close()
	s.detector.Close()
}

// Options configure every session of a Store.
type Options struct {
	// BackendURL serves the form config and order endpoints.
	BackendURL string
	// StorefrontScheme is prefixed to the shop domain for product and cart
	// calls.
	StorefrontScheme  string
	SettleDelay       time.Duration
	BlockedResetDelay time.Duration
	TTL               time.Duration
	SyncCart          bool
	Fallback          *formconfig.Response
	Logger            *logger.Logger

	// Shops lists the shops registered here. Without it only
	// *.myshopify.com domains get sessions.
	Shops ShopDirectory
}

// CreateRequest starts a session for one page view.
type CreateRequest struct {
	Shop      string `json:"shop" binding:"required"`
	URL       string `json:"url" binding:"required"`
	HTML      string `json:"html" binding:"required"`
	CartToken string `json:"cart_token"`
}

// Store owns the live sessions and evicts idle ones.
type Store struct {
	opts     Options
	logger   *logger.Logger
	renderer *render.Renderer
	backend  builder.Backend
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.StorefrontScheme == "" {
		opts.StorefrontScheme = "https"
	}
	return &Store{
		opts:     opts,
		logger:   opts.Logger,
		renderer: render.New(),
		backend:  checkout.NewClient(opts.BackendURL),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create loads the page, runs product detection and mounts the form.
func (st *Store) Create(ctx context.Context, req CreateRequest) (Snapshot, error) {
	if strings.TrimSpace(req.Shop) == "" {
		return Snapshot{}, errors.New("missing shop")
	}
	shop := shopify.NormalizeShopDomain(req.Shop)
	if err := st.allow(ctx, shop, req.URL); err != nil {
		return Snapshot{}, err
	}
	page, err := dom.LoadString(req.URL, req.HTML)
	if err != nil {
		return Snapshot{}, err
	}

	log := st.logger.With("shop", shop)
	storefront := shopify.NewStorefrontClient(st.opts.StorefrontScheme+"://"+shop, log)
	if token := strings.TrimSpace(req.CartToken); token != "" {
		storefront = storefront.WithCartCookie(token)
	}

	s := &Session{
		ID:     uuid.New().String(),
		Shop:   shop,
		page:   page,
		logger: log,
	}
	s.detector = detector.New(page, storefront, st.opts.SettleDelay, log)

	var carts *cart.Manager
	if st.opts.SyncCart {
		carts = cart.NewManager(storefront, log)
	}
	s.builder = builder.New(builder.Options{
		Shop:              shop,
		Page:              page,
		Detector:          s.detector,
		Backend:           st.backend,
		Renderer:          st.renderer,
		Host:              s,
		Logger:            log,
		Cart:              carts,
		Fallback:          st.opts.Fallback,
		BlockedResetDelay: st.opts.BlockedResetDelay,
	})

	s.detector.Init(ctx)
	if err := s.builder.Init(ctx); err != nil {
		s.close()
		return Snapshot{}, err
	}
	s.touch(st.now())

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	log.Info("Widget session %s started for %s", s.ID, req.URL)
	return s.Snapshot(), nil
}

// allow keeps sessions, and the storefront calls they make, to shops this
// backend serves. The page must belong to the shop.
func (st *Store) allow(ctx context.Context, shop, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil || !strings.EqualFold(u.Host, shop) {
		return fmt.Errorf("%w: page %q is not on %s", ErrShopNotAllowed, pageURL, shop)
	}
	if shopify.IsShopDomain(shop) {
		return nil
	}
	if st.opts.Shops == nil {
		return fmt.Errorf("%w: %s", ErrShopNotAllowed, shop)
	}
	known, err := st.opts.Shops.Known(ctx, shop)
	if err != nil {
		return fmt.Errorf("look up shop %s: %w", shop, err)
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrShopNotAllowed, shop)
	}
	return nil
}

// Get returns a live session and marks it used.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

// Delete ends a session, cancelling its in-flight calls.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep closes sessions idle for longer than the TTL.
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.opts.TTL)
	var expired []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		st.logger.Debug("widget: evicted %d idle sessions", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx ends, then closes every session.
func (st *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(st.opts.TTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			st.mu.Lock()
			all := st.sessions
			st.sessions = make(map[string]*Session)
			st.mu.Unlock()
			for _, s := range all {
				s.close()
			}
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}
