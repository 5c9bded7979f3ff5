package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is what a caller learns from one run's messages.
type Result struct {
	Success              bool     `json:"success"`
	FileName             string   `json:"file_name"`
	TextProcessed        bool     `json:"text_processed"`
	TextAlreadyExisted   bool     `json:"text_already_existed"`
	TextChunks           int      `json:"text_chunks"`
	ImagesProcessed      bool     `json:"images_processed"`
	ImagesAlreadyExisted bool     `json:"images_already_existed"`
	ImageCount           int      `json:"image_count"`
	Messages             []string `json:"messages"`
	Error                string   `json:"error,omitempty"`
}

var (
	addedTextRe  = regexp.MustCompile(`Added (\d+) text chunks`)
	addedImageRe = regexp.MustCompile(`Added (\d+) image captions`)
)

// Summarize recovers a Result from event messages by their matchable
// substrings. Success means no error and at least one domain was either
// written or found already present.
func Summarize(fileName string, messages []string) Result {
	res := Result{FileName: fileName, Messages: messages}
	for _, msg := range messages {
		if strings.Contains(msg, "already ingested (text)") {
			res.TextAlreadyExisted = true
		}
		if m := addedTextRe.FindStringSubmatch(msg); m != nil {
			res.TextProcessed = true
			res.TextChunks, _ = strconv.Atoi(m[1])
		}
		if strings.Contains(msg, "already exists in image store") {
			res.ImagesAlreadyExisted = true
		}
		if m := addedImageRe.FindStringSubmatch(msg); m != nil {
			res.ImagesProcessed = true
			res.ImageCount, _ = strconv.Atoi(m[1])
		}
		// The first error line carries the cause; the trace follows it.
		if strings.HasPrefix(msg, "Error") && res.Error == "" {
			res.Error = msg
		}
	}
	res.Success = res.Error == "" &&
		(res.TextProcessed || res.TextAlreadyExisted || res.ImagesProcessed || res.ImagesAlreadyExisted)
	return res
}

// Collect drains events, passing each to sink when it is non-nil, and
// summarises the run. The report is nil unless the run reached DONE.
func Collect(fileName string, events <-chan Event, sink func(Event)) (Result, *Report) {
	var (
		messages []string
		report   *Report
	)
	for ev := range events {
		if sink != nil {
			sink(ev)
		}
		messages = append(messages, ev.Message)
		if ev.Report != nil {
			report = ev.Report
		}
	}
	return Summarize(fileName, messages), report
}
