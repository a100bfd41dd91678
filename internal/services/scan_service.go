package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/receiptfusion/backend/internal/cache"
	"github.com/receiptfusion/backend/internal/config"
	"github.com/receiptfusion/backend/internal/models"
	"github.com/receiptfusion/backend/internal/repository"
	"github.com/receiptfusion/backend/internal/utils"
	"github.com/receiptfusion/backend/pkg/recognition"
	"github.com/receiptfusion/backend/pkg/visionapi"

	"go.uber.org/zap"
)

// ScanService manages live scan sessions: one optimizer instance per
// session, frames in, a merged receipt out, persistence on confirmation.
type ScanService struct {
	receiptRepo *repository.ReceiptRepository
	cache       *cache.CacheService
	vision      *visionapi.Client
	parser      *recognition.Parser
	logger      *zap.Logger

	tuning      recognition.Tuning
	defaultOpts *recognition.Options
	sessionTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*scanSession
	stop     chan struct{}
	stopOnce sync.Once
}

// scanSession holds one receipt stream. The optimizer is single-threaded
// by contract, so every frame goes through the session mutex.
type scanSession struct {
	mu         sync.Mutex
	id         string
	optimizer  *recognition.Optimizer
	opts       *recognition.Options
	frameCount int
	updatedAt  time.Time
	merged     *recognition.Receipt
}

func NewScanService(
	receiptRepo *repository.ReceiptRepository,
	cacheService *cache.CacheService,
	vision *visionapi.Client,
	cfg config.RecognitionConfig,
	logger *zap.Logger,
) *ScanService {
	tuning := recognition.Tuning{
		CacheSize:           cfg.CacheSize,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StabilityThreshold:  cfg.StabilityThreshold,
		InvalidateInterval:  time.Duration(cfg.InvalidateIntervalMs) * time.Millisecond,
		EWMAAlpha:           cfg.EWMAAlpha,
		LoopThreshold:       cfg.LoopThreshold,
		TotalTolerance:      cfg.TotalTolerance,
	}.Normalize()

	s := &ScanService{
		receiptRepo: receiptRepo,
		cache:       cacheService,
		vision:      vision,
		parser:      recognition.NewParser(logger),
		logger:      logger,
		tuning:      tuning,
		defaultOpts: recognition.DefaultOptions(),
		sessionTTL:  cfg.SessionTTL(),
		sessions:    make(map[string]*scanSession),
		stop:        make(chan struct{}),
	}
	go s.janitor()
	return s
}

// CreateSession opens a new scan session. User options merge into the
// defaults with the extend policy.
func (s *ScanService) CreateSession(userOptions map[string]any) *models.ScanSessionResponse {
	opts := s.defaultOpts
	if len(userOptions) > 0 {
		opts = recognition.OptionsFromMap(userOptions).WithDefaults(nil)
	}

	session := &scanSession{
		id:        utils.GenerateSessionID(),
		optimizer: recognition.NewOptimizer(s.tuning, s.logger),
		opts:      opts,
		updatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	s.logger.Info("Scan session created", zap.String("session_id", session.id))
	return &models.ScanSessionResponse{
		SessionID: session.id,
		UpdatedAt: session.updatedAt,
	}
}

// SubmitFrame feeds one frame into a session and returns the merged
// snapshot. The frame is either raw OCR or an image routed through the
// Vision adapter.
func (s *ScanService) SubmitFrame(ctx context.Context, sessionID string, req *models.SubmitFrameRequest) (*models.ScanSessionResponse, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	rec, err := s.resolveFrame(ctx, req)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	parsed := s.parser.Process(rec, session.opts)
	merged := session.optimizer.Optimize(parsed, session.opts)
	session.merged = merged
	session.frameCount++
	session.updatedAt = time.Now()

	resp := s.sessionResponse(session)
	if err := s.cache.Set(ctx, cache.PrefixScanSession+sessionID, resp, cache.TTLScanSession); err != nil {
		s.logger.Debug("Failed to cache session snapshot", zap.Error(err))
	}

	s.logger.Info("Frame processed",
		zap.String("session_id", sessionID),
		zap.Int("frame", session.frameCount),
		zap.Int("positions", len(merged.Positions)),
		zap.Bool("valid", merged.IsValid()),
	)
	return resp, nil
}

// GetSession returns the latest merged snapshot, served from cache when
// possible.
func (s *ScanService) GetSession(ctx context.Context, sessionID string) (*models.ScanSessionResponse, error) {
	var cached models.ScanSessionResponse
	if err := s.cache.Get(ctx, cache.PrefixScanSession+sessionID, &cached); err == nil {
		return &cached, nil
	}

	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return s.sessionResponse(session), nil
}

// ConfirmSession persists the merged receipt and tears the session down.
func (s *ScanService) ConfirmSession(ctx context.Context, sessionID, userID string) (*models.StoredReceipt, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	merged := session.merged
	frameCount := session.frameCount
	session.mu.Unlock()

	if merged == nil || merged.IsEmpty() {
		return nil, fmt.Errorf("session %s has no recognized receipt yet", sessionID)
	}

	stored := &models.StoredReceipt{
		SessionID:       sessionID,
		ConfirmedBy:     userID,
		Store:           merged.StoreName(),
		CalculatedTotal: merged.CalculatedTotal(),
		Positions:       s.toPositions(merged, session.opts),
		IsValid:         merged.IsValid(),
		FrameCount:      frameCount,
	}
	if merged.TotalLabel != nil {
		stored.TotalLabel = merged.TotalLabel.Text
	}
	if total, ok := merged.TotalValue(); ok {
		stored.Total = &total
	}
	if merged.PurchaseDate != nil {
		d := merged.PurchaseDate.Date
		stored.PurchaseDate = &d
	}

	if err := s.receiptRepo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}
	_ = s.cache.InvalidateReceiptLists(ctx)

	s.dropSession(ctx, sessionID)
	s.logger.Info("Scan session confirmed",
		zap.String("session_id", sessionID),
		zap.String("receipt_id", stored.ID.Hex()),
		zap.Int("positions", len(stored.Positions)),
	)
	return stored, nil
}

// AbortSession discards a session without persisting anything.
func (s *ScanService) AbortSession(ctx context.Context, sessionID string) error {
	if _, err := s.session(sessionID); err != nil {
		return err
	}
	s.dropSession(ctx, sessionID)
	return nil
}

// Close stops the janitor and drops all sessions.
func (s *ScanService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		session.optimizer.Close()
		delete(s.sessions, id)
	}
}

func (s *ScanService) session(id string) (*scanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("scan session %s not found", id)
	}
	return session, nil
}

func (s *ScanService) dropSession(ctx context.Context, id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		session.optimizer.Close()
	}
	_ = s.cache.InvalidateSession(ctx, id)
}

func (s *ScanService) resolveFrame(ctx context.Context, req *models.SubmitFrameRequest) (recognition.RecognizedText, error) {
	switch {
	case req.Frame != nil:
		return fromFrameOCR(req.Frame), nil
	case req.ImageURL != "":
		return s.vision.DetectDocument(ctx, req.ImageURL)
	case req.ImageBase64 != "":
		return s.vision.DetectDocument(ctx, req.ImageBase64)
	default:
		return recognition.RecognizedText{}, fmt.Errorf("frame, image_url or image_base64 is required")
	}
}

func fromFrameOCR(f *models.FrameOCR) recognition.RecognizedText {
	var out recognition.RecognizedText
	for _, b := range f.Blocks {
		var lines []recognition.TextLine
		for _, l := range b.Lines {
			lines = append(lines, recognition.TextLine{
				Text: l.Text,
				BBox: recognition.Rect{
					Left:   l.BBox.Left,
					Top:    l.BBox.Top,
					Right:  l.BBox.Right,
					Bottom: l.BBox.Bottom,
				},
				Confidence: l.Confidence,
			})
		}
		out.Blocks = append(out.Blocks, recognition.Block{Lines: lines})
	}
	return out
}

func (s *ScanService) sessionResponse(session *scanSession) *models.ScanSessionResponse {
	resp := &models.ScanSessionResponse{
		SessionID:  session.id,
		FrameCount: session.frameCount,
		UpdatedAt:  session.updatedAt,
	}
	if session.merged != nil {
		r := s.toResponse(session.merged, session.opts)
		resp.Receipt = &r
	}
	return resp
}

func (s *ScanService) toResponse(r *recognition.Receipt, opts *recognition.Options) models.ReceiptResponse {
	resp := models.ReceiptResponse{
		Store:           r.StoreName(),
		CalculatedTotal: r.CalculatedTotal(),
		Positions:       s.toPositions(r, opts),
		IsValid:         r.IsValid(),
		IsEmpty:         r.IsEmpty(),
	}
	if r.TotalLabel != nil {
		resp.TotalLabel = r.TotalLabel.Text
	}
	if total, ok := r.TotalValue(); ok {
		resp.Total = &total
	}
	if r.PurchaseDate != nil {
		d := r.PurchaseDate.Date
		resp.PurchaseDate = &d
	}
	return resp
}

func (s *ScanService) toPositions(r *recognition.Receipt, opts *recognition.Options) []models.ReceiptPosition {
	out := make([]models.ReceiptPosition, 0, len(r.Positions))
	for _, p := range r.Positions {
		pos := models.ReceiptPosition{
			Name:           p.Product.Text,
			NormalizedName: p.Product.NormalizedText,
			Price:          p.Price.Value,
			Confidence:     p.ConfidenceValue(),
			Category:       classify(p, opts),
		}
		pos.AlternativeNames = p.Product.AlternativeTexts
		if p.Unit != nil {
			pos.Quantity = p.Unit.Quantity
			pos.UnitPrice = p.Unit.Price
		}
		out = append(out, pos)
	}
	return out
}

// classify buckets a position by the configured keyword sets. Negative
// prices without a matching keyword still read as discounts.
func classify(p *recognition.Position, opts *recognition.Options) models.PositionCategory {
	text := p.Product.Text
	switch {
	case opts.MatchesDiscount(text) || p.Price.Value < 0:
		return models.CategoryDiscount
	case opts.MatchesDeposit(text):
		return models.CategoryDeposit
	case opts.MatchesFood(text):
		return models.CategoryFood
	case opts.MatchesNonFood(text):
		return models.CategoryNonFood
	default:
		return models.CategoryUnknown
	}
}

// janitor evicts idle sessions past their TTL.
func (s *ScanService) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.sessionTTL)
			s.mu.Lock()
			var expired []string
			for id, session := range s.sessions {
				session.mu.Lock()
				idle := session.updatedAt.Before(cutoff)
				session.mu.Unlock()
				if idle {
					expired = append(expired, id)
				}
			}
			s.mu.Unlock()
			for _, id := range expired {
				s.logger.Info("Evicting idle scan session", zap.String("session_id", id))
				s.dropSession(context.Background(), id)
			}
		}
	}
}
