package visionapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/receiptfusion/backend/pkg/recognition"
)

// Client wraps Google Cloud Vision API and converts its document layout
// into the recognition input contract (blocks of text lines with
// bounding boxes).
type Client struct {
	client *vision.ImageAnnotatorClient
	logger *zap.Logger
	apiKey string // Fallback: use REST API with key if client is nil
}

// NewClient creates a new Vision API client
// If credentials are available, uses gRPC client; otherwise falls back to API key
func NewClient(logger *zap.Logger, credentialsFile string, apiKey string) (*Client, error) {
	c := &Client{
		logger: logger,
		apiKey: apiKey,
	}

	if credentialsFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credentialsFile))
		if err != nil {
			logger.Warn("Failed to create Vision gRPC client, will use API key fallback", zap.Error(err))
		} else {
			c.client = client
			logger.Info("Google Vision API client initialized (gRPC)")
		}
	}

	if c.client == nil && apiKey == "" {
		logger.Warn("No Vision API credentials configured - OCR will use mock/demo mode")
	}

	return c, nil
}

// DetectDocument performs OCR on an image and returns the structured text
// with per-line bounding boxes.
func (c *Client) DetectDocument(ctx context.Context, imageSource string) (recognition.RecognizedText, error) {
	startTime := time.Now()

	var rec recognition.RecognizedText
	var err error

	if c.client != nil {
		rec, err = c.detectDocumentGRPC(ctx, imageSource)
	} else if c.apiKey != "" {
		rec, err = c.detectDocumentREST(ctx, imageSource)
	} else {
		// Demo mode - return mock data for development
		rec = mockReceiptText()
	}

	lines := 0
	for _, b := range rec.Blocks {
		lines += len(b.Lines)
	}
	c.logger.Info("OCR detection completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int("blocks", len(rec.Blocks)),
		zap.Int("lines", lines),
		zap.Error(err),
	)

	return rec, err
}

// detectDocumentGRPC uses the gRPC Vision API client with
// DOCUMENT_TEXT_DETECTION to keep the layout structure.
func (c *Client) detectDocumentGRPC(ctx context.Context, imageSource string) (recognition.RecognizedText, error) {
	image, err := buildImage(imageSource)
	if err != nil {
		return recognition.RecognizedText{}, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: image,
				Features: []*visionpb.Feature{
					{
						Type:       visionpb.Feature_DOCUMENT_TEXT_DETECTION,
						MaxResults: 1,
					},
				},
			},
		},
	}

	resp, err := c.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return recognition.RecognizedText{}, fmt.Errorf("vision API error: %w", err)
	}
	if len(resp.Responses) == 0 {
		return recognition.RecognizedText{}, fmt.Errorf("no response from Vision API")
	}
	response := resp.Responses[0]
	if response.Error != nil {
		return recognition.RecognizedText{}, fmt.Errorf("vision API response error: %s", response.Error.Message)
	}
	annotation := response.GetFullTextAnnotation()
	if annotation == nil {
		return recognition.RecognizedText{}, fmt.Errorf("no text detected in image")
	}
	return fromFullTextAnnotation(annotation), nil
}

func buildImage(imageSource string) (*visionpb.Image, error) {
	if strings.HasPrefix(imageSource, "http://") || strings.HasPrefix(imageSource, "https://") {
		return &visionpb.Image{
			Source: &visionpb.ImageSource{ImageUri: imageSource},
		}, nil
	}
	b64Data := imageSource
	if idx := strings.Index(b64Data, ","); idx != -1 && strings.HasPrefix(b64Data, "data:") {
		b64Data = b64Data[idx+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(b64Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return &visionpb.Image{Content: decoded}, nil
}

// fromFullTextAnnotation flattens the Vision document hierarchy
// (pages > blocks > paragraphs > words > symbols) into blocks of text
// lines. A paragraph becomes one line; detected breaks become spaces.
func fromFullTextAnnotation(annotation *visionpb.TextAnnotation) recognition.RecognizedText {
	var out recognition.RecognizedText
	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			var lines []recognition.TextLine
			for _, para := range block.GetParagraphs() {
				text := paragraphText(para)
				if strings.TrimSpace(text) == "" {
					continue
				}
				lines = append(lines, recognition.TextLine{
					Text:       text,
					BBox:       boundingRect(para.GetBoundingBox()),
					Confidence: float64(para.GetConfidence()) * 100,
				})
			}
			if len(lines) > 0 {
				out.Blocks = append(out.Blocks, recognition.Block{Lines: lines})
			}
		}
	}
	return out
}

func paragraphText(para *visionpb.Paragraph) string {
	var b strings.Builder
	for _, word := range para.GetWords() {
		for _, symbol := range word.GetSymbols() {
			b.WriteString(symbol.GetText())
			if brk := symbol.GetProperty().GetDetectedBreak(); brk != nil {
				switch brk.GetType() {
				case visionpb.TextAnnotation_DetectedBreak_SPACE,
					visionpb.TextAnnotation_DetectedBreak_SURE_SPACE,
					visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE:
					b.WriteByte(' ')
				}
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func boundingRect(poly *visionpb.BoundingPoly) recognition.Rect {
	var rect recognition.Rect
	for i, v := range poly.GetVertices() {
		x, y := float64(v.GetX()), float64(v.GetY())
		if i == 0 {
			rect = recognition.Rect{Left: x, Top: y, Right: x, Bottom: y}
			continue
		}
		if x < rect.Left {
			rect.Left = x
		}
		if y < rect.Top {
			rect.Top = y
		}
		if x > rect.Right {
			rect.Right = x
		}
		if y > rect.Bottom {
			rect.Bottom = y
		}
	}
	return rect
}

// REST response subset for the API-key fallback.
type restResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description  string `json:"description"`
			BoundingPoly struct {
				Vertices []struct {
					X float64 `json:"x"`
					Y float64 `json:"y"`
				} `json:"vertices"`
			} `json:"boundingPoly"`
		} `json:"textAnnotations"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// detectDocumentREST uses the REST API with an API key. The word-level
// annotations are regrouped into lines by their vertical overlap.
func (c *Client) detectDocumentREST(ctx context.Context, imageSource string) (recognition.RecognizedText, error) {
	body := map[string]any{
		"requests": []map[string]any{
			{
				"features": []map[string]any{{"type": "TEXT_DETECTION"}},
			},
		},
	}
	reqEntry := body["requests"].([]map[string]any)[0]
	if strings.HasPrefix(imageSource, "http://") || strings.HasPrefix(imageSource, "https://") {
		reqEntry["image"] = map[string]any{"source": map[string]any{"imageUri": imageSource}}
	} else {
		b64Data := imageSource
		if idx := strings.Index(b64Data, ","); idx != -1 && strings.HasPrefix(b64Data, "data:") {
			b64Data = b64Data[idx+1:]
		}
		reqEntry["image"] = map[string]any{"content": b64Data}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return recognition.RecognizedText{}, err
	}

	url := fmt.Sprintf("https://vision.googleapis.com/v1/images:annotate?key=%s", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return recognition.RecognizedText{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return recognition.RecognizedText{}, fmt.Errorf("vision API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return recognition.RecognizedText{}, fmt.Errorf("vision API error (status %d)", resp.StatusCode)
	}

	var decoded restResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return recognition.RecognizedText{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Responses) == 0 {
		return recognition.RecognizedText{}, fmt.Errorf("no response from Vision API")
	}
	if decoded.Responses[0].Error != nil {
		return recognition.RecognizedText{}, fmt.Errorf("vision API response error: %s", decoded.Responses[0].Error.Message)
	}

	// The first annotation is the whole text; the rest are word boxes.
	annotations := decoded.Responses[0].TextAnnotations
	if len(annotations) <= 1 {
		return recognition.RecognizedText{}, fmt.Errorf("no text detected in image")
	}

	type wordBox struct {
		text string
		rect recognition.Rect
	}
	words := make([]wordBox, 0, len(annotations)-1)
	for _, a := range annotations[1:] {
		rect := recognition.Rect{}
		for i, v := range a.BoundingPoly.Vertices {
			if i == 0 {
				rect = recognition.Rect{Left: v.X, Top: v.Y, Right: v.X, Bottom: v.Y}
				continue
			}
			if v.X < rect.Left {
				rect.Left = v.X
			}
			if v.Y < rect.Top {
				rect.Top = v.Y
			}
			if v.X > rect.Right {
				rect.Right = v.X
			}
			if v.Y > rect.Bottom {
				rect.Bottom = v.Y
			}
		}
		words = append(words, wordBox{text: a.Description, rect: rect})
	}

	// Group word boxes into lines: a word joins the current line when its
	// vertical center falls inside the line's row.
	var lines []recognition.TextLine
	for _, w := range words {
		joined := false
		for i := range lines {
			l := &lines[i]
			cy := w.rect.CenterY()
			if cy >= l.BBox.Top && cy <= l.BBox.Bottom {
				l.Text += " " + w.text
				l.BBox = l.BBox.Union(w.rect)
				joined = true
				break
			}
		}
		if !joined {
			lines = append(lines, recognition.TextLine{Text: w.text, BBox: w.rect})
		}
	}
	if len(lines) == 0 {
		return recognition.RecognizedText{}, fmt.Errorf("no text detected in image")
	}
	return recognition.RecognizedText{Blocks: []recognition.Block{{Lines: lines}}}, nil
}

// mockReceiptText returns a synthetic receipt layout for development and
// testing without Vision credentials.
func mockReceiptText() recognition.RecognizedText {
	row := func(text string, left, top, right float64) recognition.TextLine {
		return recognition.TextLine{
			Text: text,
			BBox: recognition.Rect{Left: left, Top: top, Right: right, Bottom: top + 14},
		}
	}
	return recognition.RecognizedText{Blocks: []recognition.Block{{
		Lines: []recognition.TextLine{
			row("ALDI", 0, 0, 80),
			row("15.01.2025", 0, 20, 90),
			row("Milch 1L", 0, 60, 90),
			row("1,19", 260, 60, 300),
			row("Brot", 0, 80, 60),
			row("2,49", 260, 80, 300),
			row("Butter", 0, 100, 70),
			row("1,89", 260, 100, 300),
			row("Summe", 0, 140, 80),
			row("5,57", 260, 140, 300),
		},
	}}}
}

// Close closes the Vision API client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
