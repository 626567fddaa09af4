package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/yuqie6/VirtualSelf/internal/schema"
)

// MemoryService 经历记忆：用向量检索找出与当前话题相关的旧经历
type MemoryService struct {
	db          *chromem.DB
	collection  *chromem.Collection
	embedder    Embedder
	storagePath string
}

// MemoryConfig 配置
type MemoryConfig struct {
	StoragePath string // 为空时只在内存中保存
}

// MemoryHit 记忆查询结果
type MemoryHit struct {
	EntryID    string
	Content    string
	Category   schema.ExperienceCategory
	Date       string
	Similarity float32
}

// NewMemoryService 创建记忆服务
func NewMemoryService(embedder Embedder, cfg *MemoryConfig) (*MemoryService, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder 不能为空")
	}
	if cfg == nil {
		cfg = &MemoryConfig{}
	}

	var db *chromem.DB
	if cfg.StoragePath == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
			return nil, fmt.Errorf("创建记忆存储目录失败: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.StoragePath, false)
		if err != nil {
			return nil, fmt.Errorf("创建向量数据库失败: %w", err)
		}
	}

	// 向量总是由 embedder 预先生成，不使用 collection 自带的 embedding 函数
	collection, err := db.GetOrCreateCollection("experiences", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 collection 失败: %w", err)
	}

	return &MemoryService{
		db:          db,
		collection:  collection,
		embedder:    embedder,
		storagePath: cfg.StoragePath,
	}, nil
}

func entryDocument(e schema.ExperienceEntry) string {
	var b strings.Builder
	b.WriteString(e.Content)
	if len(e.Tags) > 0 {
		b.WriteString("\n标签: ")
		b.WriteString(strings.Join(e.Tags, "、"))
	}
	b.WriteString("\n分类: ")
	b.WriteString(e.Category.Label())
	return b.String()
}

// IndexEntries 索引经历（同 ID 覆盖）
func (s *MemoryService) IndexEntries(ctx context.Context, entries []schema.ExperienceEntry) error {
	if len(entries) == 0 {
		return nil
	}

	contents := make([]string, len(entries))
	for i, e := range entries {
		contents[i] = entryDocument(e)
	}
	embeddings, err := s.embedder.EmbedTexts(ctx, contents)
	if err != nil {
		return fmt.Errorf("生成嵌入失败: %w", err)
	}
	if len(embeddings) != len(entries) {
		return fmt.Errorf("嵌入数量不匹配: got=%d want=%d", len(embeddings), len(entries))
	}

	docs := make([]chromem.Document, 0, len(entries))
	for i, e := range entries {
		if len(embeddings[i]) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Content:   contents[i],
			Embedding: embeddings[i],
			Metadata: map[string]string{
				"content":   e.Content,
				"category":  string(e.Category),
				"date":      FormatDateMs(e.Timestamp),
				"timestamp": strconv.FormatInt(e.Timestamp, 10),
			},
		})
	}
	for _, doc := range docs {
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("添加文档失败: %w", err)
		}
	}

	slog.Debug("索引经历", "count", len(docs))
	return nil
}

// Remove 删除经历
func (s *MemoryService) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("删除文档失败: %w", err)
	}
	return nil
}

// Recall 查询与 query 相关的经历
func (s *MemoryService) Recall(ctx context.Context, query string, topK int) ([]MemoryHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 3
	}
	// chromem 要求 nResults 不超过文档数
	if n := s.collection.Count(); n == 0 {
		return nil, nil
	} else if topK > n {
		topK = n
	}

	queryEmb, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("生成查询嵌入失败: %w", err)
	}
	if len(queryEmb) == 0 || len(queryEmb[0]) == 0 {
		return nil, fmt.Errorf("查询嵌入为空")
	}

	results, err := s.collection.QueryEmbedding(ctx, queryEmb[0], topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	hits := make([]MemoryHit, len(results))
	for i, r := range results {
		hits[i] = MemoryHit{
			EntryID:    r.ID,
			Content:    r.Metadata["content"],
			Category:   schema.ExperienceCategory(r.Metadata["category"]),
			Date:       r.Metadata["date"],
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}

// Count 已索引的经历数
func (s *MemoryService) Count() int {
	return s.collection.Count()
}

// StoragePath 存储路径（内存模式为空）
func (s *MemoryService) StoragePath() string {
	return s.storagePath
}
