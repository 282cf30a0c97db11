package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitrina-app/vitrina/internal/models"
)

type memRequestStore struct {
	mu          sync.Mutex
	requests    map[string]*models.CatalogRequest
	transitions []models.RequestStatus
	getErr      error
	failOn      models.RequestStatus
}

func newMemRequestStore(ids ...string) *memRequestStore {
	s := &memRequestStore{requests: make(map[string]*models.CatalogRequest)}
	for _, id := range ids {
		s.requests[id] = &models.CatalogRequest{ID: id, Handle: "tienda", Status: models.StatusPending, CreatedAt: time.Now()}
	}
	return s
}

func (s *memRequestStore) Get(ctx context.Context, id string) (*models.CatalogRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (s *memRequestStore) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && status == s.failOn {
		return errors.New("status write failed")
	}
	req, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	req.Status = status
	s.transitions = append(s.transitions, status)
	return nil
}

func (s *memRequestStore) status(id string) models.RequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

type memListingStore struct {
	mu       sync.Mutex
	nextID   int
	listings map[string]*models.Listing
	drafts   map[string]models.Listing
}

func newMemListingStore() *memListingStore {
	return &memListingStore{
		listings: make(map[string]*models.Listing),
		drafts:   make(map[string]models.Listing),
	}
}

func (s *memListingStore) ExistsBySourcePost(ctx context.Context, postURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, listing := range s.listings {
		if listing.SourcePostURL == postURL {
			return true, nil
		}
	}
	return false, nil
}

func (s *memListingStore) AddDraft(ctx context.Context, listing *models.Listing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("listing-%d", s.nextID)
	copied := *listing
	s.listings[id] = &copied
	s.drafts[id] = copied
	return id, nil
}

func (s *memListingStore) Patch(ctx context.Context, id, processedImageURL, paymentLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("listing %s not found", id)
	}
	listing.ProcessedImageURL = processedImageURL
	if paymentLink != "" {
		listing.PaymentLink = paymentLink
	}
	return nil
}

func (s *memListingStore) all() []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Listing
	for _, listing := range s.listings {
		out = append(out, *listing)
	}
	return out
}

func (s *memListingStore) bySource(postURL string) []models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Listing
	for _, listing := range s.listings {
		if listing.SourcePostURL == postURL {
			out = append(out, *listing)
		}
	}
	return out
}

// captionGenerator answers with the canned JSON for whichever caption the
// prompt carries; unknown captions yield a no-product answer.
type captionGenerator struct {
	mu      sync.Mutex
	answers map[string]string
	current int64
	maxSeen int64
	delay   time.Duration
}

func (g *captionGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	concurrent := atomic.AddInt64(&g.current, 1)
	defer atomic.AddInt64(&g.current, -1)

	g.mu.Lock()
	if concurrent > g.maxSeen {
		g.maxSeen = concurrent
	}
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	for caption, answer := range g.answers {
		if strings.Contains(prompt, caption) {
			return answer, nil
		}
	}
	return `{"productName":"","price":null,"size":null}`, nil
}

func newTestOrchestrator(requests *memRequestStore, listings *memListingStore,
	generator TextGenerator, uploader BlobUploader, merchants MerchantStore,
	preferences PreferenceCreator) *Orchestrator {
	return NewOrchestrator(
		requests,
		listings,
		NewDeduplicator(listings),
		NewProductExtractor(generator),
		NewImageNormalizer(&fakeImageEditor{data: []byte("edited"), mime: "image/png"}, uploader),
		NewPaymentLinkGenerator(merchants, preferences, "CLP", 0),
		OrchestratorConfig{BatchSize: 2},
	)
}

func TestRun_BatchScenario(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{
		"Zapatilla Nike 25.000": `{"productName":"Zapatilla Nike","price":25000,"size":null}`,
		"ni.ke polera 5":        `{"productName":"Polera Nike","price":5000,"size":null}`,
	}}
	merchants := &fakeMerchantStore{merchant: &models.Merchant{Handle: "tienda", AccessToken: "seller-token"}}
	preferences := &fakePreferenceCreator{link: "https://mp.example/checkout"}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, merchants, preferences)

	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "Zapatilla Nike 25.000", ImageURL: source.URL + "/1.jpg"},
		{ID: "2", URL: "https://ig.example/p/2", Caption: "", ImageURL: source.URL + "/2.jpg"},
		{ID: "3", URL: "https://ig.example/p/3", Caption: "ni.ke polera 5", ImageURL: source.URL + "/3.jpg"},
	}

	summary, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Processed != 3 {
		t.Errorf("processed: got %d, want 3", summary.Processed)
	}
	if summary.Valid != 2 {
		t.Errorf("valid: got %d, want 2", summary.Valid)
	}

	prices := map[string]float64{}
	for _, listing := range listings.all() {
		prices[listing.ProductName] = listing.Price
	}
	if prices["Zapatilla Nike"] != 25000 {
		t.Errorf("Zapatilla Nike price: got %v, want 25000", prices["Zapatilla Nike"])
	}
	if prices["Polera Nike"] != 5000 {
		t.Errorf("Polera Nike price: got %v, want 5000", prices["Polera Nike"])
	}
	if got := listings.bySource("https://ig.example/p/2"); len(got) != 0 {
		t.Errorf("empty caption produced %d listings, want 0", len(got))
	}

	wantTransitions := []models.RequestStatus{models.StatusProcessing, models.StatusCompleted}
	if len(requests.transitions) != 2 || requests.transitions[0] != wantTransitions[0] || requests.transitions[1] != wantTransitions[1] {
		t.Errorf("transitions: got %v, want %v", requests.transitions, wantTransitions)
	}
}

func TestRun_ReIngestionIsIdempotent(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1", "req-2")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{
		"Zapatilla Nike 25.000": `{"productName":"Zapatilla Nike","price":25000,"size":null}`,
	}}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "Zapatilla Nike 25.000", ImageURL: source.URL + "/1.jpg"},
	}

	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := orchestrator.Run(context.Background(), "req-2", "tienda", posts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if summary.Valid != 0 {
		t.Errorf("second run valid: got %d, want 0", summary.Valid)
	}
	if got := listings.bySource("https://ig.example/p/1"); len(got) != 1 {
		t.Errorf("listings for re-ingested post: got %d, want exactly 1", len(got))
	}
	if requests.status("req-2") != models.StatusCompleted {
		t.Errorf("re-run request status: got %s, want completed", requests.status("req-2"))
	}
}

func TestRun_ImageFailureKeepsOriginalURL(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{
		"Zapatilla Nike 25.000": `{"productName":"Zapatilla Nike","price":25000,"size":null}`,
	}}

	// Upload failing makes the whole image stage degrade to the input URL.
	orchestrator := newTestOrchestrator(requests, listings, generator,
		&fakeBlobUploader{err: errors.New("bucket unavailable")}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	imageURL := source.URL + "/1.jpg"
	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "Zapatilla Nike 25.000", ImageURL: imageURL},
	}

	summary, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Valid != 1 {
		t.Fatalf("valid: got %d, want 1", summary.Valid)
	}

	all := listings.all()
	if len(all) != 1 {
		t.Fatalf("listings: got %d, want 1", len(all))
	}
	if all[0].ProcessedImageURL != all[0].OriginalImageURL {
		t.Errorf("processed image URL: got %q, want the original %q", all[0].ProcessedImageURL, all[0].OriginalImageURL)
	}
	if all[0].ProcessedImageURL == "" {
		t.Error("processed image URL must never be empty")
	}
}

func TestRun_NoMerchantLeavesLinksAbsent(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{
		"Zapatilla Nike 25.000": `{"productName":"Zapatilla Nike","price":25000,"size":null}`,
		"ni.ke polera 5":        `{"productName":"Polera Nike","price":5000,"size":null}`,
	}}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "Zapatilla Nike 25.000", ImageURL: source.URL + "/1.jpg"},
		{ID: "3", URL: "https://ig.example/p/3", Caption: "ni.ke polera 5", ImageURL: source.URL + "/3.jpg"},
	}

	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, listing := range listings.all() {
		if listing.PaymentLink != "" {
			t.Errorf("listing %s: payment link should be absent, got %q", listing.ProductName, listing.PaymentLink)
		}
	}
	if requests.status("req-1") != models.StatusCompleted {
		t.Errorf("request status: got %s, want completed", requests.status("req-1"))
	}
}

func TestRun_DraftThenPatch(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{
		"Zapatilla Nike 25.000": `{"productName":"Zapatilla Nike","price":25000,"size":null}`,
	}}
	merchants := &fakeMerchantStore{merchant: &models.Merchant{Handle: "tienda", AccessToken: "seller-token"}}
	preferences := &fakePreferenceCreator{link: "https://mp.example/checkout"}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, merchants, preferences)

	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "Zapatilla Nike 25.000", ImageURL: source.URL + "/1.jpg"},
	}
	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(listings.drafts) != 1 {
		t.Fatalf("drafts: got %d, want 1", len(listings.drafts))
	}
	for _, draft := range listings.drafts {
		if draft.ProcessedImageURL != "" || draft.PaymentLink != "" {
			t.Errorf("draft must be written before enrichment, got %+v", draft)
		}
	}
	for _, final := range listings.all() {
		if final.ProcessedImageURL == "" {
			t.Error("final listing missing processed image URL")
		}
		if final.PaymentLink != "https://mp.example/checkout" {
			t.Errorf("final listing payment link: got %q", final.PaymentLink)
		}
	}
}

func TestRun_EmptyValidSetCompletes(t *testing.T) {
	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{answers: map[string]string{}}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	posts := []models.RawPost{
		{ID: "1", URL: "https://ig.example/p/1", Caption: "solo buenas vibras"},
	}
	summary, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Valid != 0 {
		t.Errorf("valid: got %d, want 0", summary.Valid)
	}
	if requests.status("req-1") != models.StatusCompleted {
		t.Errorf("status: got %s, want completed (empty valid set is not an error)", requests.status("req-1"))
	}
}

func TestRun_MissingRequestIsFatal(t *testing.T) {
	requests := newMemRequestStore()
	listings := newMemListingStore()
	orchestrator := newTestOrchestrator(requests, listings, &captionGenerator{}, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	_, err := orchestrator.Run(context.Background(), "nope", "tienda", nil)
	if err == nil {
		t.Fatal("expected an error for a missing request")
	}
	if len(requests.transitions) != 0 {
		t.Errorf("no transitions expected, got %v", requests.transitions)
	}
}

func TestRun_StatusWriteFailureIsFatal(t *testing.T) {
	requests := newMemRequestStore("req-1")
	requests.failOn = models.StatusProcessing
	listings := newMemListingStore()
	orchestrator := newTestOrchestrator(requests, listings, &captionGenerator{}, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", nil); err == nil {
		t.Fatal("expected an error when the processing transition fails")
	}

	requests = newMemRequestStore("req-1")
	requests.failOn = models.StatusCompleted
	orchestrator = newTestOrchestrator(requests, listings, &captionGenerator{}, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", nil); err == nil {
		t.Fatal("expected an error when the completed transition fails")
	}
}

func TestRun_CancellationMarksRequestFailed(t *testing.T) {
	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	orchestrator := newTestOrchestrator(requests, listings, &captionGenerator{}, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	posts := []models.RawPost{{ID: "1", URL: "https://ig.example/p/1", Caption: "algo"}}
	if _, err := orchestrator.Run(ctx, "req-1", "tienda", posts); err == nil {
		t.Fatal("expected an error for a cancelled run")
	}
	if requests.status("req-1") != models.StatusFailed {
		t.Errorf("status: got %s, want failed", requests.status("req-1"))
	}
}

func TestRun_ConcurrencyBoundedByBatchSize(t *testing.T) {
	source := imageServer(t, []byte("image-bytes"), "image/jpeg")
	defer source.Close()

	requests := newMemRequestStore("req-1")
	listings := newMemListingStore()
	generator := &captionGenerator{
		answers: map[string]string{},
		delay:   20 * time.Millisecond,
	}

	orchestrator := newTestOrchestrator(requests, listings, generator, &fakeBlobUploader{}, &fakeMerchantStore{}, &fakePreferenceCreator{})

	var posts []models.RawPost
	for i := 0; i < 5; i++ {
		posts = append(posts, models.RawPost{
			ID:      fmt.Sprintf("%d", i),
			URL:     fmt.Sprintf("https://ig.example/p/%d", i),
			Caption: fmt.Sprintf("post numero %d", i),
		})
	}

	if _, err := orchestrator.Run(context.Background(), "req-1", "tienda", posts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if generator.maxSeen > 2 {
		t.Errorf("observed %d concurrent extractions, batch size bounds it to 2", generator.maxSeen)
	}
}
