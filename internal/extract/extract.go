// Package extract asks a hosted model to read a municipal collection
// calendar PDF and returns the result as a candidate schedule. Nothing is
// persisted here; callers show the proposal and save it on confirmation.
package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	appLog "trashcal/internal/log"
	"trashcal/internal/migrate"
	"trashcal/internal/model"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2048
)

var (
	ErrNoAPIKey = errors.New("extract: API key is not set")
	ErrNoJSON   = errors.New("extract: response contains no JSON object")
	ErrEmptyPDF = errors.New("extract: PDF is empty")
)

const prompt = `これは日本の自治体が配布しているゴミ収集カレンダーのPDFです。
曜日ごとのゴミ回収スケジュールを抽出してください。

各曜日（0=日曜日〜6=土曜日）について、回収されるゴミの種類を特定してください。
回収がない日は空文字列を使用してください。

以下の形式の有効なJSONのみを返してください:
{
  "0": { "name": "", "icon": "" },
  "1": { "name": "", "icon": "" },
  "2": { "name": "燃えるゴミ", "icon": "burn" },
  "3": { "name": "", "icon": "" },
  "4": { "name": "", "icon": "" },
  "5": { "name": "", "icon": "" },
  "6": { "name": "", "icon": "" }
}

注意:
- nameにはゴミの種類を日本語で記載してください
- iconは burn, nonburn, recycle, plastic, bottle, can, paper, cloth, oversized, hazardous, battery, other のいずれか、不明なら空文字列にしてください
- JSONのみを返し、説明は不要です`

// jsonObject spans the first "{" to the last "}".
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Proposal is a normalized candidate schedule and what normalization did.
type Proposal struct {
	Schedule model.Schedule `json:"schedule"`
	FromV1   bool           `json:"fromV1"`
	Dropped  int            `json:"dropped"`
}

type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int64
}

// New returns a client for apiKey. An empty model selects DefaultModel;
// opts are passed to the SDK (base URL, retries, HTTP client).
func New(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// FromPDF sends pdf with the extraction prompt and normalizes the reply.
func (c *Client) FromPDF(ctx context.Context, pdf []byte) (Proposal, error) {
	if len(pdf) == 0 {
		return Proposal{}, ErrEmptyPDF
	}

	appLog.Info("extract: requesting schedule", "model", c.model, "bytes", len(pdf))
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: base64.StdEncoding.EncodeToString(pdf),
				}),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("extract: request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseResponse(text.String())
}

// ParseResponse pulls the JSON object out of a model reply and normalizes
// it. Both the weekday map and the current schedule shape are accepted.
func ParseResponse(text string) (Proposal, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return Proposal{}, ErrNoJSON
	}
	s, res, err := migrate.Normalize([]byte(raw))
	if err != nil {
		return Proposal{}, fmt.Errorf("extract: %w", err)
	}
	return Proposal{Schedule: s, FromV1: res.FromV1, Dropped: res.Discarded}, nil
}
