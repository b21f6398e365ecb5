package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// correlationKeys lead every line, in this order, so one request, session or
// trip can be followed through the log.
var correlationKeys = []string{"request_id", "session_id", "user_id", "trip_id", "booking_id"}

var isCorrelationKey = func() map[string]bool {
	m := make(map[string]bool, len(correlationKeys))
	for _, k := range correlationKeys {
		m[k] = true
	}
	return m
}()

// JSONFormatter writes one JSON object per line with a stable key order.
type JSONFormatter struct {
	TimestampFormat string
	AppName         string
	Version         string
}

// TextFormatter writes human readable lines for local development.
type TextFormatter struct {
	TimestampFormat string
	Colors          bool
	AppName         string
}

// normalize turns values that marshal badly into readable scalars.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case error:
		return val.Error()
	case primitive.ObjectID:
		return val.Hex()
	case time.Duration:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// orderedKeys returns correlation keys present in data, then the rest sorted.
func orderedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for _, k := range correlationKeys {
		if _, ok := data[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(data))
	for k := range data {
		if !isCorrelationKey[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func entryBuffer(entry *logrus.Entry) *bytes.Buffer {
	if entry.Buffer != nil {
		return entry.Buffer
	}
	return &bytes.Buffer{}
}

func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}

	b := entryBuffer(entry)
	b.WriteByte('{')
	first := true
	write := func(key string, value interface{}) {
		encoded, err := json.Marshal(normalize(value))
		if err != nil {
			// unencodable values fall back to their printed form
			encoded, _ = json.Marshal(fmt.Sprintf("%+v", value))
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(key)
		b.Write(keyJSON)
		b.WriteByte(':')
		b.Write(encoded)
	}

	write("time", entry.Time.Format(layout))
	write("level", entry.Level.String())
	write("msg", entry.Message)
	if f.AppName != "" {
		write("app", f.AppName)
	}
	if f.Version != "" {
		write("version", f.Version)
	}
	if entry.HasCaller() {
		write("caller", fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line))
	}
	for _, k := range orderedKeys(entry.Data) {
		switch k {
		case "time", "level", "msg", "app", "version", "caller":
			write("fields."+k, entry.Data[k])
		default:
			write(k, entry.Data[k])
		}
	}
	b.WriteString("}\n")
	return b.Bytes(), nil
}

var levelColors = map[logrus.Level]string{
	logrus.PanicLevel: "\033[31m",
	logrus.FatalLevel: "\033[31m",
	logrus.ErrorLevel: "\033[31m",
	logrus.WarnLevel:  "\033[33m",
	logrus.InfoLevel:  "\033[36m",
	logrus.DebugLevel: "\033[90m",
}

func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = "15:04:05.000"
	}

	b := entryBuffer(entry)
	b.WriteString(entry.Time.Format(layout))
	b.WriteByte(' ')

	level := fmt.Sprintf("%-5s", strings.ToUpper(entry.Level.String()))
	if color, ok := levelColors[entry.Level]; ok && f.Colors {
		level = color + level + "\033[0m"
	}
	b.WriteString(level)
	b.WriteByte(' ')

	if f.AppName != "" {
		fmt.Fprintf(b, "[%s] ", f.AppName)
	}
	b.WriteString(entry.Message)
	if entry.HasCaller() {
		fmt.Fprintf(b, " (%s:%d)", entry.Caller.File, entry.Caller.Line)
	}

	for _, k := range orderedKeys(entry.Data) {
		b.WriteByte(' ')
		b.WriteString(formatTextField(k, normalize(entry.Data[k])))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatTextField(key string, value interface{}) string {
	text := fmt.Sprintf("%v", value)
	if text == "" || strings.ContainsAny(text, " \t\"=") {
		text = fmt.Sprintf("%q", text)
	}
	return key + "=" + text
}
