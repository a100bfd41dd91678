package services

import (
	"context"
	"testing"

	"github.com/receiptfusion/backend/internal/cache"
	"github.com/receiptfusion/backend/internal/config"
	"github.com/receiptfusion/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testService(t *testing.T) *ScanService {
	t.Helper()
	s := NewScanService(nil, cache.NewCacheService(nil), nil, config.RecognitionConfig{}, zap.NewNop())
	t.Cleanup(s.Close)
	return s
}

func testFrame() *models.FrameOCR {
	row := func(text string, left, top, right, bottom float64) models.FrameLine {
		return models.FrameLine{Text: text, BBox: models.FrameRect{Left: left, Top: top, Right: right, Bottom: bottom}}
	}
	return &models.FrameOCR{Blocks: []models.FrameBlock{{
		Lines: []models.FrameLine{
			row("Aldi", 0, 0, 60, 10),
			row("Milch", 0, 50, 60, 60),
			row("1,99", 160, 50, 200, 60),
			row("Summe", 0, 90, 60, 100),
			row("1,99", 160, 90, 200, 100),
		},
	}}}
}

func TestScanSessionLifecycle(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	created := s.CreateSession(nil)
	require.NotEmpty(t, created.SessionID)

	resp, err := s.SubmitFrame(ctx, created.SessionID, &models.SubmitFrameRequest{Frame: testFrame()})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.FrameCount)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, "Aldi", resp.Receipt.Store)
	require.Len(t, resp.Receipt.Positions, 1)
	assert.Equal(t, "Milch", resp.Receipt.Positions[0].Name)
	assert.True(t, resp.Receipt.IsValid)

	got, err := s.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FrameCount)

	require.NoError(t, s.AbortSession(ctx, created.SessionID))
	_, err = s.GetSession(ctx, created.SessionID)
	assert.Error(t, err)
}

func TestSubmitFrameUnknownSession(t *testing.T) {
	s := testService(t)
	_, err := s.SubmitFrame(context.Background(), "missing", &models.SubmitFrameRequest{Frame: testFrame()})
	assert.Error(t, err)
}

func TestSubmitFrameRequiresContent(t *testing.T) {
	s := testService(t)
	created := s.CreateSession(nil)
	_, err := s.SubmitFrame(context.Background(), created.SessionID, &models.SubmitFrameRequest{})
	assert.Error(t, err)
}

func TestCreateSessionWithCustomOptions(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	created := s.CreateSession(map[string]any{
		"storeNames": map[string]any{"spar": "SPAR"},
	})

	frame := testFrame()
	frame.Blocks[0].Lines[0].Text = "SPAR"
	resp, err := s.SubmitFrame(ctx, created.SessionID, &models.SubmitFrameRequest{Frame: frame})
	require.NoError(t, err)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, "SPAR", resp.Receipt.Store)
}

func TestClassifyDiscountByNegativePrice(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	created := s.CreateSession(nil)

	frame := testFrame()
	frame.Blocks[0].Lines = append(frame.Blocks[0].Lines[:3],
		models.FrameLine{Text: "Sonderpreis", BBox: models.FrameRect{Left: 0, Top: 70, Right: 60, Bottom: 80}},
		models.FrameLine{Text: "-0,50", BBox: models.FrameRect{Left: 160, Top: 70, Right: 200, Bottom: 80}},
		models.FrameLine{Text: "Summe", BBox: models.FrameRect{Left: 0, Top: 90, Right: 60, Bottom: 100}},
		models.FrameLine{Text: "1,49", BBox: models.FrameRect{Left: 160, Top: 90, Right: 200, Bottom: 100}},
	)

	resp, err := s.SubmitFrame(ctx, created.SessionID, &models.SubmitFrameRequest{Frame: frame})
	require.NoError(t, err)
	require.NotNil(t, resp.Receipt)
	require.Len(t, resp.Receipt.Positions, 2)
	assert.Equal(t, models.CategoryDiscount, resp.Receipt.Positions[1].Category)
}