package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд.
//
// Данные идут в w (stdout), служебные сообщения в errW (stderr),
// поэтому `pipesim run list --json | jq` получает чистый JSON.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output для stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с явными writers.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print выводит rows таблицей, а в JSON-режиме — jsonData.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выравнивает колонки; под заголовком строка из дефисов.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	for _, line := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Success печатает служебное сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Event печатает кадр потока: строку лога или JSON как есть.
//
//	[3f0c…] build    Starting build
//	[3f0c…] pipeline done
func (o *Output) Event(msg StreamMessage, ev LogEvent) {
	switch {
	case o.jsonMode:
		o.JSON(msg)
	case msg.Event == "pipeline_done":
		fmt.Fprintf(o.w, "[%s] pipeline done\n", ev.PID)
	default:
		fmt.Fprintf(o.w, "[%s] %-8s %s\n", ev.PID, ev.Stage, ev.Msg)
	}
}
