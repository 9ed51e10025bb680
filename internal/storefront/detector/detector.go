// Package detector turns product page markup into a product, variant and
// quantity event stream.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"codform/internal/logger"
	"codform/internal/services/shopify"
	"codform/internal/storefront/dom"
)

type EventType string

const (
	EventProductLoaded   EventType = "product_loaded"
	EventVariantChanged  EventType = "variant_changed"
	EventQuantityChanged EventType = "quantity_changed"
)

// Event is delivered to every observer on a detected change.
type Event struct {
	Type     EventType
	Product  *shopify.StorefrontProduct
	Variant  *shopify.StorefrontVariant
	Quantity int
}

// Observer receives detector events. Observers run synchronously, in
// registration order.
type Observer func(Event)

// ProductSource fetches the product JSON for a handle.
type ProductSource interface {
	Product(ctx context.Context, handle string) (*shopify.StorefrontProduct, error)
}

// DefaultSettleDelay is how long a change waits before the page is read, so
// theme scripts finish updating hidden fields first.
const DefaultSettleDelay = 100 * time.Millisecond

const (
	addToCartForm = `form[action*="/cart/add"]`
	quantityInput = `[name="quantity"]`
)

var priceSelectors = []string{
	"[data-product-price]",
	".price-item--regular",
	".product__price",
	".price",
}

var ErrNotProductPage = errors.New("not a product page")

type changeKind int

const (
	changeVariant changeKind = iota
	changeQuantity
)

// Detector watches one product page.
type Detector struct {
	page   *dom.Page
	source ProductSource
	logger *logger.Logger
	settle time.Duration

	mu            sync.Mutex
	isProductPage bool
	product       *shopify.StorefrontProduct
	variantID     int64
	quantity      int
	watched       map[string]changeKind
	observers     []Observer
	timers        map[changeKind]*time.Timer
	closed        bool

	pending sync.WaitGroup
}

func New(page *dom.Page, source ProductSource, settle time.Duration, log *logger.Logger) *Detector {
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{
		page:     page,
		source:   source,
		logger:   log,
		settle:   settle,
		quantity: 1,
		watched:  make(map[string]changeKind),
		timers:   make(map[changeKind]*time.Timer),
	}
}

// Init runs page detection, product extraction and observer setup. Failures
// are logged; the page keeps working with whatever was found.
func (d *Detector) Init(ctx context.Context) {
	if !d.DetectPageType() {
		d.logger.Debug("detector: %s is not a product page", d.urlPath())
		return
	}
	if _, err := d.ExtractProductData(ctx); err != nil {
		d.logger.Warn("detector: no product data: %v", err)
	}
	d.SetupObservers()
}

// DetectPageType reports whether the page URL is a product page and
// records the result.
func (d *Detector) DetectPageType() bool {
	ok := strings.Contains(d.urlPath(), "/products/")
	d.mu.Lock()
	d.isProductPage = ok
	d.mu.Unlock()
	return ok
}

func (d *Detector) IsProductPage() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isProductPage
}

// ExtractProductData fetches the product JSON once. If that fails, a
// synthetic product is scraped from the add-to-cart form and a price
// element.
func (d *Detector) ExtractProductData(ctx context.Context) (*shopify.StorefrontProduct, error) {
	handle := Handle(d.urlPath())
	if handle == "" {
		return nil, ErrNotProductPage
	}

	var product *shopify.StorefrontProduct
	var fetchErr error
	if d.source != nil {
		product, fetchErr = d.source.Product(ctx, handle)
	} else {
		fetchErr = errors.New("no product source")
	}
	if fetchErr != nil || product == nil || len(product.Variants) == 0 {
		d.logger.Warn("detector: product fetch for %q failed, using page markup: %v", handle, fetchErr)
		product = d.scrapeProduct(handle)
		if product == nil {
			return nil, fmt.Errorf("product %q: fetch failed and page has no variant id: %w", handle, fetchErr)
		}
	}

	initial := initialVariant(product)
	// A variant preselected by the theme (?variant= or hidden id) wins.
	if id := d.formVariantID(); id != 0 && product.Variant(id) != nil {
		initial = id
	}

	d.mu.Lock()
	d.product = product
	d.variantID = initial
	d.mu.Unlock()
	d.readQuantity()

	d.emit(EventProductLoaded)
	return product, nil
}

func initialVariant(p *shopify.StorefrontProduct) int64 {
	for _, v := range p.Variants {
		if v.Available {
			return v.ID
		}
	}
	if len(p.Variants) > 0 {
		return p.Variants[0].ID
	}
	return 0
}

// scrapeProduct builds a one-variant product from the add-to-cart form.
func (d *Detector) scrapeProduct(handle string) *shopify.StorefrontProduct {
	id := d.formVariantID()
	if id == 0 {
		return nil
	}
	var price int64
	for _, sel := range priceSelectors {
		if cents, ok := ParsePrice(d.page.Text(sel)); ok {
			price = cents
			break
		}
	}
	return &shopify.StorefrontProduct{
		Handle:    handle,
		Title:     d.page.Text("h1"),
		Price:     price,
		Available: true,
		Synthetic: true,
		Variants: []shopify.StorefrontVariant{{
			ID:        id,
			Price:     price,
			Available: true,
		}},
	}
}

func (d *Detector) formVariantID() int64 {
	raw := d.page.Value(addToCartForm + ` [name="id"]`)
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// SetupObservers records the inputs whose changes are tracked: selects,
// radios and the hidden id inside the add-to-cart form, plus the quantity
// input.
func (d *Detector) SetupObservers() {
	names := make(map[string]changeKind)
	d.page.With(func(doc *goquery.Document) {
		doc.Find(addToCartForm).Find(`select, input[type="radio"], input[name="id"]`).Each(func(_ int, s *goquery.Selection) {
			if name, ok := s.Attr("name"); ok && name != "quantity" {
				names[name] = changeVariant
			}
		})
		doc.Find(`select[name^="options["], select.single-option-selector`).Each(func(_ int, s *goquery.Selection) {
			if name, ok := s.Attr("name"); ok {
				names[name] = changeVariant
			}
		})
		if doc.Find(quantityInput).Length() > 0 {
			names["quantity"] = changeQuantity
		}
	})

	d.mu.Lock()
	d.watched = names
	d.mu.Unlock()
	d.logger.Debug("detector: watching %d inputs", len(names))
}

// HandleChange applies a shopper edit of the named input and schedules a
// read once the settle delay has passed. Repeated changes of the same kind
// restart the delay. It reports whether the input is watched.
func (d *Detector) HandleChange(name, value string) bool {
	d.mu.Lock()
	kind, ok := d.watched[name]
	closed := d.closed
	d.mu.Unlock()
	if !ok || closed {
		return false
	}

	sel := fmt.Sprintf(`[name="%s"]`, strings.ReplaceAll(name, `"`, `\"`))
	if kind == changeVariant {
		sel = addToCartForm + " " + sel + `, select` + sel
	}
	d.page.SetValue(sel, value)
	d.schedule(kind)
	return true
}

func (d *Detector) schedule(kind changeKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[kind]; ok && t.Stop() {
		d.pending.Done()
	}
	d.pending.Add(1)
	d.timers[kind] = time.AfterFunc(d.settle, func() {
		defer d.pending.Done()
		d.mu.Lock()
		delete(d.timers, kind)
		d.mu.Unlock()
		if kind == changeQuantity {
			if d.readQuantity() {
				d.emit(EventQuantityChanged)
			}
			return
		}
		if d.readVariant() {
			d.emit(EventVariantChanged)
		}
	})
}

// Wait blocks until every scheduled read has run.
func (d *Detector) Wait() {
	d.pending.Wait()
}

// Close cancels scheduled reads.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for kind, t := range d.timers {
		if t.Stop() {
			d.pending.Done()
		}
		delete(d.timers, kind)
	}
}

// readVariant resolves the selected variant from the hidden id, falling
// back to matching the selected option values. It reports a change.
func (d *Detector) readVariant() bool {
	d.mu.Lock()
	product := d.product
	current := d.variantID
	d.mu.Unlock()
	if product == nil {
		return false
	}

	next := int64(0)
	if id := d.formVariantID(); id != 0 && product.Variant(id) != nil && id != current {
		next = id
	}
	if next == 0 {
		if v := matchOptions(product, d.selectedOptions()); v != nil {
			next = v.ID
		}
	}
	if next == 0 || next == current {
		return false
	}

	d.mu.Lock()
	d.variantID = next
	d.mu.Unlock()
	return true
}

func (d *Detector) selectedOptions() []string {
	var names []string
	d.page.With(func(doc *goquery.Document) {
		seen := make(map[string]bool)
		doc.Find(addToCartForm).Find(`select[name^="options["], input[type="radio"][name^="options["]`).Each(func(_ int, s *goquery.Selection) {
			if name := s.AttrOr("name", ""); !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		})
	})
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, d.page.Value(fmt.Sprintf(`%s [name="%s"]`, addToCartForm, name)))
	}
	return values
}

func matchOptions(p *shopify.StorefrontProduct, values []string) *shopify.StorefrontVariant {
	if len(values) == 0 {
		return nil
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		if len(v.Options) < len(values) {
			continue
		}
		match := true
		for j, want := range values {
			if !strings.EqualFold(v.Options[j], want) {
				match = false
				break
			}
		}
		if match {
			return v
		}
	}
	return nil
}

// readQuantity reports whether the quantity changed.
func (d *Detector) readQuantity() bool {
	q, err := strconv.Atoi(strings.TrimSpace(d.page.Value(quantityInput)))
	if err != nil || q < 1 {
		q = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if q == d.quantity {
		return false
	}
	d.quantity = q
	return true
}

// AddObserver subscribes fn to every future event.
func (d *Detector) AddObserver(fn Observer) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

func (d *Detector) emit(typ EventType) {
	d.mu.Lock()
	observers := append([]Observer(nil), d.observers...)
	ev := Event{
		Type:     typ,
		Product:  d.product,
		Variant:  d.product.Variant(d.variantID),
		Quantity: d.quantity,
	}
	d.mu.Unlock()

	for _, fn := range observers {
		d.notify(fn, ev)
	}
}

func (d *Detector) notify(fn Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("detector: observer panicked on %s: %v", ev.Type, r)
		}
	}()
	fn(ev)
}

// Product returns the cached product, or nil.
func (d *Detector) Product() *shopify.StorefrontProduct {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.product
}

// CurrentVariant returns the selected variant, or nil.
func (d *Detector) CurrentVariant() *shopify.StorefrontVariant {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.product.Variant(d.variantID)
}

func (d *Detector) CurrentVariantID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.variantID
}

// CurrentPrice is the selected variant's price in minor units, falling back
// to the product price; 0 without a product.
func (d *Detector) CurrentPrice() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.product == nil {
		return 0
	}
	if v := d.product.Variant(d.variantID); v != nil {
		return v.Price
	}
	return d.product.Price
}

func (d *Detector) Quantity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quantity
}

func (d *Detector) urlPath() string {
	u := d.page.URL()
	return u.Path
}
