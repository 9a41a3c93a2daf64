// This file contains the command codec: the wire representation of
// DOM-mutation commands sent to clients, and the decoder for inbound
// frames originating from frontend script.
package webui

import (
	"encoding/json"
	"strings"
)

type op string

const (
	opSetText     op = "el_text"
	opAppendText  op = "el_text_append"
	opSetValue    op = "el_value"
	opAppendValue op = "el_value_append"
	opSetHTML     op = "el_html"
	opSetAttr     op = "el_set_attr"
	opSetStyle    op = "el_set_style"
	opClassAdd    op = "el_class_add"
	opClassRemove op = "el_class_remove"
	opEnable      op = "el_enable"
	opDisable     op = "el_disable"
	opSetTitle    op = "pg_set_title"
	opEval        op = "pg_eval"
)

var knownOps = map[op]bool{
	opSetText:     true,
	opAppendText:  true,
	opSetValue:    true,
	opAppendValue: true,
	opSetHTML:     true,
	opSetAttr:     true,
	opSetStyle:    true,
	opClassAdd:    true,
	opClassRemove: true,
	opEnable:      true,
	opDisable:     true,
	opSetTitle:    true,
	opEval:        true,
}

const codecEntity = "CODEC"

// Command is one immutable DOM-mutation or page-level instruction.
// Element-targeted commands carry the selector list and either a plain
// payload (Data) or a name+value pair. Page-level commands carry only Data.
// Commands are constructed by the facade and consumed once by the
// dispatcher; they are never mutated after construction.
type Command struct {
	Op        op       `json:"op"`
	Selectors []string `json:"selectors,omitempty"`
	Data      string   `json:"data,omitempty"`
	Name      string   `json:"name,omitempty"`
	Value     string   `json:"value,omitempty"`
}

func (c Command) pageLevel() bool {
	return strings.HasPrefix(string(c.Op), "pg_")
}

// encodeCommand validates and marshals a command into its wire frame.
// Encoding is deterministic and total over valid commands: selectors travel
// as a JSON array so selector syntax containing delimiters stays unambiguous.
func encodeCommand(c Command) ([]byte, error) {
	if !knownOps[c.Op] {
		return nil, badRequest(codecEntity, "unknown command op "+string(c.Op))
	}
	if !c.pageLevel() && len(c.Selectors) == 0 {
		return nil, badRequest(codecEntity, "command "+string(c.Op)+" requires at least one selector")
	}
	data, err := json.Marshal(c)

	if err != nil {
		return nil, wrapF(err, "failed to encode %s command", c.Op)
	}
	return data, nil
}

// Event is one inbound client event: a name and an arbitrary
// JSON-compatible payload. It exists only for the duration of one handler
// dispatch.
type Event struct {
	Name string
	Data interface{}
}

type inboundFrame struct {
	Type string      `json:"type,omitempty"`
	Name string      `json:"name"`
	Data interface{} `json:"data"`
}

// decodeInbound parses one frame received from a client. It returns the
// decoded event, or control=true for transport-level keepalive frames that
// are acknowledged silently and never reach the event handler. A decode
// error is recoverable and tied to that one frame; it must not terminate
// the connection.
func decodeInbound(data []byte) (ev *Event, control bool, err error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, false, wrapF(err, "malformed inbound frame")
	}
	if frame.Type == "ping" {
		return nil, true, nil
	}
	if frame.Name == "" {
		return nil, false, badRequest(codecEntity, "inbound frame is missing an event name")
	}
	return &Event{Name: frame.Name, Data: frame.Data}, false, nil
}
