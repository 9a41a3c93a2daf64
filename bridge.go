// This file contains the UI facade handed to every handler invocation, and
// the broadcast dispatcher behind it. Each facade method builds one command,
// encodes it once, and attempts delivery to every registered connection.
package webui

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
)

// commandTopic is the PubSub topic command frames are relayed on in
// multi-node deployments.
const commandTopic = "webui:commands"

const bridgeEntity = "BRIDGE"

// UI is the bridge facade: one method per DOM or page operation. Methods
// return an error only for invalid arguments or template failures; delivery
// is fire-and-forget and individual client failures are never surfaced.
// A UI is safe for concurrent use and safe to call from inside event,
// background and init handlers.
type UI struct {
	registry *registry
	pubsub   PubSub
	nodeID   string
	logger   *slog.Logger
	hooks    *Hooks
}

// relayFrame wraps an encoded command for cross-node transport. The node ID
// lets each process skip frames it published itself, so local delivery
// order is decided locally and never round-trips through the broker.
type relayFrame struct {
	Node  string          `json:"node"`
	Frame json.RawMessage `json:"frame"`
}

func newUI(reg *registry, pubsub PubSub, nodeID string, logger *slog.Logger, hooks *Hooks) *UI {
	return &UI{
		registry: reg,
		pubsub:   pubsub,
		nodeID:   nodeID,
		logger:   logger,
		hooks:    hooks,
	}
}

// broadcast encodes the command once and attempts delivery to every
// connection live at snapshot time. It returns after all delivery attempts
// have been initiated; it never reports per-connection failure.
func (ui *UI) broadcast(cmd Command) error {
	frame, err := encodeCommand(cmd)

	if err != nil {
		return err
	}
	ui.fanout(frame, string(cmd.Op))

	if ui.pubsub != nil {
		relay, err := json.Marshal(relayFrame{Node: ui.nodeID, Frame: frame})

		if err == nil {
			err = ui.pubsub.Publish(commandTopic, relay)
		}
		if err != nil {
			ui.logger.Warn("failed to relay command to other nodes", "op", cmd.Op, "error", err)

			ui.hooks.metrics().Error(bridgeEntity, err)
		}
	}
	return nil
}

// fanout delivers one encoded frame to every registered connection
// independently. A connection that fails delivery (closed transport or full
// outbound buffer) is removed from the registry and closed; the rest of the
// batch is unaffected.
func (ui *UI) fanout(frame []byte, opName string) {
	conns := ui.registry.snapshot()

	for _, c := range conns {
		if err := c.enqueue(frame); err != nil {
			ui.registry.remove(c.ID)

			ui.logger.Debug("dropping connection after failed delivery", "conn", c.ID, "error", err)

			ui.hooks.metrics().Error(gatewayEntity, err)

			go c.Close()

			continue
		}
		ui.hooks.metrics().CommandSent(c.ID, len(frame))
	}
	ui.hooks.metrics().CommandBroadcast(opName, len(conns))
}

// handleRelay processes a frame received from the PubSub topic, fanning it
// out to local connections unless this node published it.
func (ui *UI) handleRelay(data []byte) {
	var relay relayFrame
	if err := json.Unmarshal(data, &relay); err != nil {
		ui.logger.Debug("dropping malformed relay frame", "error", err)

		return
	}
	if relay.Node == ui.nodeID {
		return
	}
	ui.fanout(relay.Frame, "relay")
}

// ConnectionCount returns the number of currently registered connections.
func (ui *UI) ConnectionCount() int {
	return ui.registry.size()
}

// ElSetText sets the innerText of every element matching the selectors, on
// every connected client.
func (ui *UI) ElSetText(selectors []string, content string) error {
	return ui.broadcast(Command{Op: opSetText, Selectors: selectors, Data: content})
}

// ElAppendText appends to the innerText of every element matching the
// selectors, on every connected client.
func (ui *UI) ElAppendText(selectors []string, content string) error {
	return ui.broadcast(Command{Op: opAppendText, Selectors: selectors, Data: content})
}

// ElSetValue sets the value of every element matching the selectors.
func (ui *UI) ElSetValue(selectors []string, content string) error {
	return ui.broadcast(Command{Op: opSetValue, Selectors: selectors, Data: content})
}

// ElAppendValue appends to the value of every element matching the selectors.
func (ui *UI) ElAppendValue(selectors []string, content string) error {
	return ui.broadcast(Command{Op: opAppendValue, Selectors: selectors, Data: content})
}

// ElSetHTMLTempl renders an html/template string with the supplied data and
// sets the result as the innerHTML of every element matching the selectors.
// Templates are evaluated server-side; only final rendered HTML reaches the
// wire, and template values are escaped per html/template rules.
func (ui *UI) ElSetHTMLTempl(selectors []string, tmpl string, data map[string]interface{}) error {
	t, err := template.New("fragment").Parse(tmpl)

	if err != nil {
		return wrapF(err, "failed to parse html template")
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return wrapF(err, "failed to render html template")
	}
	return ui.broadcast(Command{Op: opSetHTML, Selectors: selectors, Data: buf.String()})
}

// ElSetHTMLUnsafe sets the given string directly as innerHTML, with no
// escaping of any kind. The caller is responsible for its safety.
func (ui *UI) ElSetHTMLUnsafe(selectors []string, content string) error {
	return ui.broadcast(Command{Op: opSetHTML, Selectors: selectors, Data: content})
}

// ElSetAttribute sets an attribute on every element matching the selectors.
func (ui *UI) ElSetAttribute(selectors []string, name, value string) error {
	return ui.broadcast(Command{Op: opSetAttr, Selectors: selectors, Name: name, Value: value})
}

// ElSetStyle sets one style property (camelCase name) on every element
// matching the selectors.
func (ui *UI) ElSetStyle(selectors []string, name, value string) error {
	return ui.broadcast(Command{Op: opSetStyle, Selectors: selectors, Name: name, Value: value})
}

// ElClassAdd adds a class to every element matching the selectors.
func (ui *UI) ElClassAdd(selectors []string, name string) error {
	return ui.broadcast(Command{Op: opClassAdd, Selectors: selectors, Data: name})
}

// ElClassRemove removes a class from every element matching the selectors.
func (ui *UI) ElClassRemove(selectors []string, name string) error {
	return ui.broadcast(Command{Op: opClassRemove, Selectors: selectors, Data: name})
}

// ElEnable clears the disabled flag on every element matching the selectors.
func (ui *UI) ElEnable(selectors []string) error {
	return ui.broadcast(Command{Op: opEnable, Selectors: selectors})
}

// ElDisable sets the disabled flag on every element matching the selectors.
func (ui *UI) ElDisable(selectors []string) error {
	return ui.broadcast(Command{Op: opDisable, Selectors: selectors})
}

// PgSetTitle sets the page title on every connected client.
func (ui *UI) PgSetTitle(title string) error {
	return ui.broadcast(Command{Op: opSetTitle, Data: title})
}

// PgEval evaluates a JavaScript string on every connected client.
func (ui *UI) PgEval(script string) error {
	return ui.broadcast(Command{Op: opEval, Data: script})
}
