package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
)

// OpenRouterImageGen renders planned diagrams through OpenRouter's image
// modality. The endpoint speaks the chat-completions shape but returns
// base64 data URIs, which the official client does not surface, so this
// adapter talks raw HTTP.
type OpenRouterImageGen struct {
	apiKey string
	base   string
	model  string
	client *http.Client
	log    *zerolog.Logger
}

var _ adapter.ImageGenerator = (*OpenRouterImageGen)(nil)

func NewOpenRouterImageGen(cfg *config.AIConfig, log *zerolog.Logger) (*OpenRouterImageGen, error) {
	if cfg.OpenRouterKey == "" {
		return nil, errors.New("openrouter api key empty")
	}
	return &OpenRouterImageGen{
		apiKey: cfg.OpenRouterKey,
		base:   strings.TrimRight(cfg.OpenRouterBase, "/"),
		model:  cfg.ImageModel,
		client: &http.Client{Timeout: 120 * time.Second},
		log:    log,
	}, nil
}

func (o *OpenRouterImageGen) Generate(ctx context.Context, plan model.ImagePlan) (*model.GeneratedImage, error) {
	reqBody := struct {
		Model      string   `json:"model"`
		Modalities []string `json:"modalities"`
		Messages   []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}{
		Model:      o.model,
		Modalities: []string{"image", "text"},
		Messages: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "user", Content: plan.Prompt},
		},
	}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openrouter image http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Images []struct {
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"images"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	for _, c := range payload.Choices {
		for _, img := range c.Message.Images {
			mime, data, err := decodeDataURI(img.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			return &model.GeneratedImage{
				Slot:    plan.Slot,
				Caption: plan.Caption,
				MIME:    mime,
				Data:    data,
			}, nil
		}
	}
	return nil, errors.New("no image in response")
}

// decodeDataURI splits data:image/png;base64,... into MIME type and bytes.
func decodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	mime, _, _ := strings.Cut(meta, ";")
	if mime == "" {
		mime = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image payload: %w", err)
	}
	return mime, data, nil
}
