package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix = "data:"
	doneToken  = "[DONE]"
)

// sseStream 逐行解析上游 SSE。bufio.Reader 会把跨越多次网络读取的半行拼接完整，
// 非 data: 行被忽略，[DONE] 表示上游结束且不会作为内容返回。
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

func (s *sseStream) Recv() (string, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("failed to read from stream: %w", err)
			}
			// 最后一行可能没有换行符，处理完后结束
			s.done = true
		}

		content, ok, finished := parseLine(line)
		if finished {
			s.done = true
			break
		}
		if ok {
			return content, nil
		}
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// parseLine 解析一行 SSE，返回增量文本、是否有内容以及是否遇到结束标记。
func parseLine(line string) (content string, ok bool, finished bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == doneToken {
		return "", false, true
	}
	if data == "" {
		return "", false, false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false, false
	}
	return chunk.Choices[0].Delta.Content, true, false
}
