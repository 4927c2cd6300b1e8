// Package extractor 将 PDF 转换为有预算限制的纯文本，作为 LLM 上下文使用。
package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"om-intel-chat/pkg/log"
)

const (
	DefaultMaxPages       = 10
	DefaultMaxChars       = 100000
	DefaultEarlyExitRatio = 0.8

	// TruncationMarker 追加在被截断文本的末尾
	TruncationMarker = "\n\n[Content truncated due to length]"

	pageSeparator = "\n\n"
)

// EventType 是提取进度事件的类型。
type EventType string

const (
	EventStart        EventType = "start"
	EventProgress     EventType = "progress"
	EventLimitReached EventType = "limit_reached"
	EventEarlyExit    EventType = "early_exit"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// StopReason 说明页循环为何结束。
type StopReason string

const (
	StopPagesExhausted StopReason = "pages_exhausted"
	StopLimitReached   StopReason = "limit_reached"
	StopEarlyExit      StopReason = "early_exit"
)

// Event 是一条提取进度事件，JSON 形式直接写入 SSE。
type Event struct {
	Type              EventType `json:"type"`
	Page              int       `json:"page,omitempty"`
	TotalPages        int       `json:"totalPages,omitempty"`
	PagesToProcess    int       `json:"pagesToProcess,omitempty"`
	CharCount         int       `json:"charCount"`
	Keywords          []string  `json:"keywords,omitempty"`
	MatchedCategories int       `json:"matchedCategories,omitempty"`
	TextLength        int       `json:"textLength,omitempty"`
	Truncated         bool      `json:"truncated,omitempty"`
	Message           string    `json:"message,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// EmitFunc 接收进度事件，可以为 nil。
type EmitFunc func(Event)

// Result 是一次提取的结果。
type Result struct {
	Text            string
	Truncated       bool
	PagesProcessed  int
	TotalPages      int
	MatchedKeywords []string
	StopReason      StopReason
}

// Config 配置提取预算，零值字段使用默认值。
type Config struct {
	MaxPages       int
	MaxChars       int
	EarlyExitRatio float64
}

// Extractor 按页提取文本，带页数上限、字符上限和关键词提前结束。
type Extractor struct {
	maxPages       int
	maxChars       int
	earlyExitRatio float64
}

// New 创建 Extractor。
func New(cfg Config) *Extractor {
	e := &Extractor{
		maxPages:       cfg.MaxPages,
		maxChars:       cfg.MaxChars,
		earlyExitRatio: cfg.EarlyExitRatio,
	}
	if e.maxPages <= 0 {
		e.maxPages = DefaultMaxPages
	}
	// 字符上限至少要放得下截断标记
	if e.maxChars <= utf8.RuneCountInString(TruncationMarker) {
		e.maxChars = DefaultMaxChars
	}
	if e.earlyExitRatio <= 0 || e.earlyExitRatio > 1 {
		e.earlyExitRatio = DefaultEarlyExitRatio
	}
	return e
}

// MaxChars 返回字符上限。
func (e *Extractor) MaxChars() int {
	return e.maxChars
}

// Extract 解析 PDF 字节并提取文本。
func (e *Extractor) Extract(ctx context.Context, data []byte, emit EmitFunc) (*Result, error) {
	src, err := Open(data)
	if err != nil {
		return nil, err
	}
	return e.ExtractPages(ctx, src, emit)
}

// ExtractPages 严格按顺序处理第 1..min(总页数, MaxPages) 页。每页处理完后先检查字符上限，
// 再检查关键词类别命中率，任一满足即停止。最终文本总是被限制在 MaxChars 以内。
func (e *Extractor) ExtractPages(ctx context.Context, src PageSource, emit EmitFunc) (*Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	total := src.NumPage()
	toProcess := min(total, e.maxPages)
	emit(Event{Type: EventStart, TotalPages: total, PagesToProcess: toProcess})

	var (
		sb       strings.Builder
		chars    int
		matched  = make(map[string]bool, len(Categories))
		res      = &Result{TotalPages: total, StopReason: StopPagesExhausted}
		required = e.earlyExitRatio * float64(len(Categories))
	)

	for page := 1; page <= toProcess; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := src.PageText(page)
		if err != nil {
			return nil, asExtractionError(err, page)
		}
		text := normalize(raw)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString(pageSeparator)
				chars += utf8.RuneCountInString(pageSeparator)
			}
			sb.WriteString(text)
			chars += utf8.RuneCountInString(text)
		}
		res.PagesProcessed = page

		pageKeywords := matchCategories(text)
		for _, k := range pageKeywords {
			matched[k] = true
		}
		emit(Event{
			Type:              EventProgress,
			Page:              page,
			PagesToProcess:    toProcess,
			CharCount:         chars,
			Keywords:          pageKeywords,
			MatchedCategories: len(matched),
		})

		if chars >= e.maxChars {
			res.StopReason = StopLimitReached
			emit(Event{
				Type:      EventLimitReached,
				Page:      page,
				CharCount: chars,
				Message:   "character limit reached",
			})
			break
		}
		if float64(len(matched)) >= required {
			res.StopReason = StopEarlyExit
			emit(Event{
				Type:              EventEarlyExit,
				Page:              page,
				CharCount:         chars,
				MatchedCategories: len(matched),
				Message:           "sufficient financial content found",
			})
			break
		}
	}

	res.Text, res.Truncated = clamp(sb.String(), e.maxChars)
	for _, c := range Categories {
		if matched[c.Name] {
			res.MatchedKeywords = append(res.MatchedKeywords, c.Name)
		}
	}
	log.Infof("[Extractor] 提取完成: 总页数=%d, 已处理=%d, 字符数=%d, 截断=%t, 结束原因=%s",
		total, res.PagesProcessed, utf8.RuneCountInString(res.Text), res.Truncated, res.StopReason)
	return res, nil
}

// normalize 折叠页面内的空白字符。
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// clamp 按字符数截断文本。截断后的文本以 TruncationMarker 结尾且总长度不超过 maxChars。
func clamp(text string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	keep := maxChars - utf8.RuneCountInString(TruncationMarker)
	runes := []rune(text)
	return string(runes[:keep]) + TruncationMarker, true
}

// SplitText 将长文本按指定大小和重叠切分成字符窗口。
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	step := chunkSize - chunkOverlap
	if step <= 0 {
		// 重叠无效时退化为不重叠切分
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
