package extractor

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageSource 按页提供文本，页码从 1 开始。
type PageSource interface {
	NumPage() int
	PageText(page int) (string, error)
}

// ExtractionError 表示 PDF 无法解析，Msg 保留底层错误原文。
type ExtractionError struct {
	Msg string
	Err error
}

func (e *ExtractionError) Error() string {
	return e.Msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func newExtractionError(err error, format string, args ...any) *ExtractionError {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &ExtractionError{Msg: msg, Err: err}
}

// pdfSource 是基于 ledongthuc/pdf 的 PageSource。
type pdfSource struct {
	reader *pdf.Reader
}

// Open 解析 PDF 字节。解析库在遇到损坏文件时可能 panic，这里统一转换为 ExtractionError。
func Open(data []byte) (src PageSource, err error) {
	if len(data) == 0 {
		return nil, newExtractionError(nil, "pdf is empty")
	}
	defer func() {
		if r := recover(); r != nil {
			src = nil
			err = newExtractionError(fmt.Errorf("%v", r), "invalid pdf")
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, newExtractionError(err, "invalid pdf")
	}
	if reader.NumPage() <= 0 {
		return nil, newExtractionError(nil, "pdf has no pages")
	}
	return &pdfSource{reader: reader}, nil
}

func (s *pdfSource) NumPage() int {
	return s.reader.NumPage()
}

func (s *pdfSource) PageText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = newExtractionError(fmt.Errorf("%v", r), "page %d", page)
		}
	}()

	p := s.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	content, err := p.GetPlainText(nil)
	if err != nil {
		return "", newExtractionError(err, "page %d", page)
	}
	return content, nil
}

// asExtractionError 确保返回给调用方的解析失败都是 ExtractionError。
func asExtractionError(err error, page int) error {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr
	}
	return newExtractionError(err, "page %d", page)
}
