package gemini

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ubermorgenland/yas-mcp/pkg/mcp/protocol"
)

// Direction of a transcript entry
type Direction string

const (
	ClientToServer Direction = ">>"
	ServerToClient Direction = "<<"
)

// Entry is one transcript line: the message object with direction and
// timestamp keys merged in
type Entry struct {
	Direction Direction
	Timestamp string
	Message   json.RawMessage
}

// MarshalJSON flattens the message into the entry object
func (e Entry) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Message) > 0 {
		if err := json.Unmarshal(e.Message, &fields); err != nil {
			return nil, fmt.Errorf("message is not a JSON object: %w", err)
		}
	}
	dir, _ := json.Marshal(e.Direction)
	fields["direction"] = dir
	if e.Timestamp != "" {
		ts, _ := json.Marshal(e.Timestamp)
		fields["timestamp"] = ts
	}
	return json.Marshal(fields)
}

// UnmarshalJSON splits direction and timestamp from the message fields
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var dir string
	if err := json.Unmarshal(fields["direction"], &dir); err != nil {
		return fmt.Errorf("missing or invalid direction")
	}
	switch Direction(dir) {
	case ClientToServer, ServerToClient:
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
	delete(fields, "direction")

	var ts string
	if raw, ok := fields["timestamp"]; ok {
		if err := json.Unmarshal(raw, &ts); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		delete(fields, "timestamp")
	}

	msg, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	*e = Entry{Direction: Direction(dir), Timestamp: ts, Message: msg}
	return nil
}

// ParseError reports the line of a malformed transcript entry
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
}

// ParseString parses a JSONL transcript. Blank lines are skipped; line
// numbers in errors are 1-based positions in content.
func ParseString(content string) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, &ParseError{Line: line, Message: err.Error()}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParseFile parses the transcript at path
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseString(string(data))
}

// RecordExchange turns a request and its response into two entries
func RecordExchange(req *protocol.Request, resp *protocol.Response) ([]Entry, error) {
	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	respData, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return []Entry{
		{Direction: ClientToServer, Timestamp: now(), Message: reqData},
		{Direction: ServerToClient, Timestamp: now(), Message: respData},
	}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
