package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// Modality 期望的输出形态
type Modality int

const (
	ModalityText Modality = iota
	ModalityAudio
	ModalityImage
)

// GenerateRequest 一次远程生成请求
type GenerateRequest struct {
	Model             string
	Contents          string        // 用户输入（纯文本或 JSON 上下文）
	SystemInstruction string        // 可选
	Schema            *genai.Schema // 非空时要求 JSON 输出并声明结构
	Modality          Modality
	Voice             string // 仅 ModalityAudio
}

// GenerateResult 远程生成结果
type GenerateResult struct {
	Text     string
	Data     []byte // 音频/图片的二进制数据
	MIMEType string
}

// Generator 远程生成能力
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Dialer 每次尝试前按当前凭据创建新的 Generator，不跨尝试复用
type Dialer interface {
	Dial(ctx context.Context) (Generator, error)
}

// CredentialStore 当前 API 密钥（可被刷新）
type CredentialStore struct {
	mu     sync.RWMutex
	apiKey string
}

// NewCredentialStore 创建凭据存储
func NewCredentialStore(apiKey string) *CredentialStore {
	return &CredentialStore{apiKey: strings.TrimSpace(apiKey)}
}

// APIKey 当前密钥
func (s *CredentialStore) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// SetAPIKey 替换密钥，下一次尝试生效
func (s *CredentialStore) SetAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = strings.TrimSpace(key)
	s.mu.Unlock()
}

// IsConfigured 是否已配置密钥
func (s *CredentialStore) IsConfigured() bool {
	return s.APIKey() != ""
}

// GeminiDialer 基于 google.golang.org/genai 的 Dialer
type GeminiDialer struct {
	creds *CredentialStore
}

// NewGeminiDialer 创建 Dialer
func NewGeminiDialer(creds *CredentialStore) *GeminiDialer {
	return &GeminiDialer{creds: creds}
}

// Dial 读取当前密钥并创建新客户端
func (d *GeminiDialer) Dial(ctx context.Context) (Generator, error) {
	key := d.creds.APIKey()
	if key == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// GeminiClient 单次尝试使用的短生命周期客户端
type GeminiClient struct {
	client *genai.Client
}

// Generate 调用 Models.GenerateContent
func (c *GeminiClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	var cfg *genai.GenerateContentConfig
	if req.SystemInstruction != "" || req.Schema != nil || req.Modality == ModalityAudio {
		cfg = &genai.GenerateContentConfig{}
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.Schema
	}
	if req.Modality == ModalityAudio {
		cfg.ResponseModalities = []string{"AUDIO"}
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		}
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Contents, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini 调用失败: %w", err)
	}

	out := &GenerateResult{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && out.Data == nil {
			out.Data = part.InlineData.Data
			out.MIMEType = part.InlineData.MIMEType
		}
		text.WriteString(part.Text)
	}
	out.Text = text.String()

	slog.Debug("Gemini API 调用成功", "model", req.Model, "text_len", len(out.Text), "data_len", len(out.Data))
	return out, nil
}

// Embed 调用 Models.EmbedContent
func (c *GeminiClient) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := c.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Gemini 嵌入失败: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}
